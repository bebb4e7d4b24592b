package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pricepilot/backend/internal/domain"
)

// DefaultProviderTTL is how long provider responses are reused
const DefaultProviderTTL = 15 * time.Minute

// CachedProvider serves repeated searches for the same provider, country and
// query from a cache. Cache failures fall through to the wrapped provider.
type CachedProvider struct {
	inner domain.ProviderClient
	store domain.CacheRepository
	ttl   time.Duration
}

// NewCachedProvider wraps a provider with a response cache
func NewCachedProvider(inner domain.ProviderClient, store domain.CacheRepository, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultProviderTTL
	}
	return &CachedProvider{inner: inner, store: store, ttl: ttl}
}

// ProviderKey builds the cache key for one provider search
func ProviderKey(provider domain.ProviderName, country, query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return fmt.Sprintf("provider:%s:%s:%s", provider, strings.ToUpper(country), normalized)
}

// Name returns the wrapped provider's name
func (p *CachedProvider) Name() domain.ProviderName {
	return p.inner.Name()
}

// Supports delegates to the wrapped provider
func (p *CachedProvider) Supports(country *domain.Country) bool {
	return p.inner.Supports(country)
}

// Search returns cached records when present, otherwise calls the wrapped
// provider and caches a successful result. Errors are never cached.
func (p *CachedProvider) Search(ctx context.Context, country *domain.Country, query string) ([]domain.RawRecord, error) {
	key := ProviderKey(p.inner.Name(), country.Code, query)

	if data, err := p.store.Get(ctx, key); err == nil {
		var records []domain.RawRecord
		if err := json.Unmarshal(data, &records); err == nil {
			return records, nil
		}
		log.Printf("[CACHE] Dropping undecodable entry %s", key)
		_ = p.store.Delete(ctx, key)
	} else if !errors.Is(err, domain.ErrCacheMiss) {
		log.Printf("[CACHE] Get %s failed: %v", key, err)
	}

	records, err := p.inner.Search(ctx, country, query)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(records)
	if err != nil {
		log.Printf("[CACHE] Encode %s failed: %v", key, err)
		return records, nil
	}
	if err := p.store.Set(ctx, key, data, p.ttl); err != nil {
		log.Printf("[CACHE] Set %s failed: %v", key, err)
	}
	return records, nil
}
