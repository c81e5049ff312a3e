package storage

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graph-scanner/internal/config"
)

// setupTestRedis starts an in-process Redis and connects a RedisCache
// to it through the normal constructor.
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cache, err := NewRedisCache(&config.RedisConfig{
		Host:           mr.Host(),
		Port:           mr.Port(),
		DB:             0,
		MaxConnections: 10,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	return cache, mr
}

func TestNewRedisCache(t *testing.T) {
	t.Run("connects and pings", func(t *testing.T) {
		cache, _ := setupTestRedis(t)
		assert.NoError(t, cache.Ping(testContext(t)))
		assert.NotNil(t, cache.Client())
	})

	t.Run("fails when server is unreachable", func(t *testing.T) {
		_, err := NewRedisCache(&config.RedisConfig{
			Host:           "127.0.0.1",
			Port:           "1", // nothing listens here
			MaxConnections: 1,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to Redis")
	})
}

func TestRedisCache_SetGet(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := testContext(t)

	require.NoError(t, cache.Set(ctx, "metrics:5abc", "payload", time.Minute))

	got, err := cache.Get(ctx, "metrics:5abc")
	require.NoError(t, err)
	assert.Equal(t, "payload", got)

	_, err = cache.Get(ctx, "metrics:missing")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestRedisCache_DelAndExists(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := testContext(t)

	require.NoError(t, cache.Set(ctx, "k1", "v1", time.Minute))
	require.NoError(t, cache.Set(ctx, "k2", "v2", time.Minute))

	exists, err := cache.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, cache.Del(ctx, "k1", "k2"))

	exists, err = cache.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisCache_Expire(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := testContext(t)

	require.NoError(t, cache.Set(ctx, "short", "v", time.Minute))
	require.NoError(t, cache.Expire(ctx, "short", time.Second))

	// miniredis only expires keys when its clock is advanced
	mr.FastForward(2 * time.Second)

	exists, err := cache.Exists(ctx, "short")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisCache_Keys(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := testContext(t)

	require.NoError(t, cache.Set(ctx, "metrics:a", "1", time.Minute))
	require.NoError(t, cache.Set(ctx, "metrics:b", "2", time.Minute))
	require.NoError(t, cache.Set(ctx, "patterns:a", "3", time.Minute))

	keys, err := cache.Keys(ctx, "metrics:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"metrics:a", "metrics:b"}, keys)
}
