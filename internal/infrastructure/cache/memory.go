package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pricepilot/backend/internal/domain"
)

// DefaultMemoryEntries bounds the in-memory cache when no size is configured
const DefaultMemoryEntries = 1024

const cleanupInterval = 10 * time.Minute

// cacheItem represents a single item in the cache with expiration
type cacheItem struct {
	Value      []byte
	Expiration time.Time
}

// MemoryCache is a bounded, thread-safe in-memory LRU cache with per-entry TTL
type MemoryCache struct {
	entries   *lru.Cache[string, cacheItem]
	stop      chan struct{}
	closeOnce sync.Once
}

// NewMemoryCache creates an in-memory cache holding at most size entries
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	entries, err := lru.New[string, cacheItem](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}

	cache := &MemoryCache{
		entries: entries,
		stop:    make(chan struct{}),
	}

	// Start cleanup goroutine to remove expired entries every 10 minutes
	go cache.cleanupExpired(cleanupInterval)

	return cache, nil
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	item, exists := c.entries.Get(key)
	if !exists {
		return nil, domain.ErrCacheMiss
	}

	if time.Now().After(item.Expiration) {
		c.entries.Remove(key)
		return nil, domain.ErrCacheMiss
	}

	out := make([]byte, len(item.Value))
	copy(out, item.Value)
	return out, nil
}

// Set stores a copy of value with TTL, evicting the least recently used entry when full
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	c.entries.Add(key, cacheItem{
		Value:      stored,
		Expiration: time.Now().Add(ttl),
	})
	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

// Exists checks if a key exists in the cache and is not expired
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	item, exists := c.entries.Peek(key)
	if !exists {
		return false, nil
	}
	return !time.Now().After(item.Expiration), nil
}

// cleanupExpired removes expired entries from the cache periodically
func (c *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired(time.Now())
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) removeExpired(now time.Time) int {
	removed := 0
	for _, key := range c.entries.Keys() {
		if item, ok := c.entries.Peek(key); ok && now.After(item.Expiration) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Close stops the cleanup goroutine
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

// Size returns the current number of items in the cache (for debugging/monitoring)
func (c *MemoryCache) Size() int {
	return c.entries.Len()
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.entries.Purge()
}
