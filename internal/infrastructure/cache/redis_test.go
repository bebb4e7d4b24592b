package cache

import (
	"context"
	"testing"
	"time"

	"github.com/pricepilot/backend/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableRedis points at a port nothing listens on
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	cache, err := NewRedisCache(RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})

	assert.Nil(t, cache)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
}

func TestRedisCache_ErrorsWrapUnavailable(t *testing.T) {
	cache := NewRedisCacheWithClient(unreachableRedis(), "pricepilot:")
	defer cache.Close()
	ctx := context.Background()

	_, err := cache.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
	assert.NotErrorIs(t, err, domain.ErrCacheMiss)

	assert.ErrorIs(t, cache.Set(ctx, "k", []byte("v"), time.Minute), domain.ErrCacheUnavailable)
	assert.ErrorIs(t, cache.Delete(ctx, "k"), domain.ErrCacheUnavailable)

	_, err = cache.Exists(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	cache := NewRedisCacheWithClient(unreachableRedis(), "pricepilot:")
	defer cache.Close()

	assert.Equal(t, "pricepilot:amazon:US:kindle", cache.key("amazon:US:kindle"))
}
