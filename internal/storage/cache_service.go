package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/graph-scanner/internal/models"
	"github.com/redis/go-redis/v9"
)

// CacheService provides high-level snapshot caching for computed node
// metrics and pattern results. The cache is an optimization only:
// callers log cache errors and fall through to the store.
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis: redis,
		ttl:   ttl,
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyMetrics is for node metrics snapshots
	CacheKeyMetrics CacheKeyType = "metrics"
	// CacheKeyPatterns is for pattern detection snapshots
	CacheKeyPatterns CacheKeyType = "patterns"
	// CacheKeySubgraph is for extracted subgraph results
	CacheKeySubgraph CacheKeyType = "subgraph"
)

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: <type>:<param1>:<param2>:...
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	// Normalize all parameters to lowercase for consistency
	normalizedParams := make([]string, len(params))
	for i, param := range params {
		normalizedParams[i] = strings.ToLower(param)
	}

	parts := append([]string{string(keyType)}, normalizedParams...)
	return strings.Join(parts, ":")
}

// GenerateMetricsKey generates a cache key for a node metrics snapshot
// Format: metrics:<address>
func (c *CacheService) GenerateMetricsKey(address string) string {
	return c.GenerateCacheKey(CacheKeyMetrics, address)
}

// GeneratePatternsKey generates a cache key for pattern results
// Format: patterns:<address>
func (c *CacheService) GeneratePatternsKey(address string) string {
	return c.GenerateCacheKey(CacheKeyPatterns, address)
}

// Set stores a value in cache with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value in cache with a custom TTL
func (c *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.redis.Set(ctx, key, data, ttl)
}

// Get retrieves a value from cache and deserializes it. The boolean
// reports whether the key was present.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		// Key not found is not an error, just a cache miss
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return true, nil
}

// Invalidate removes one or more keys from cache
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// InvalidatePattern removes all keys matching a pattern
// Pattern examples: "metrics:*", "patterns:1abc*"
func (c *CacheService) InvalidatePattern(ctx context.Context, pattern string) error {
	keys, err := c.redis.Keys(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to find keys matching pattern: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	return c.redis.Del(ctx, keys...)
}

// InvalidateAddress invalidates all cache entries for an address
func (c *CacheService) InvalidateAddress(ctx context.Context, address string) error {
	address = strings.ToLower(address)

	keys := []string{
		c.GenerateMetricsKey(address),
		c.GeneratePatternsKey(address),
	}
	if err := c.Invalidate(ctx, keys...); err != nil {
		return fmt.Errorf("failed to invalidate address cache: %w", err)
	}

	pattern := fmt.Sprintf("%s:%s:*", CacheKeySubgraph, address)
	return c.InvalidatePattern(ctx, pattern)
}

// Exists checks if a key exists in cache
func (c *CacheService) Exists(ctx context.Context, key string) (bool, error) {
	return c.redis.Exists(ctx, key)
}

// Refresh updates the TTL on an existing key
func (c *CacheService) Refresh(ctx context.Context, key string) error {
	return c.redis.Expire(ctx, key, c.ttl)
}

// GetTTL returns the configured TTL for this cache service
func (c *CacheService) GetTTL() time.Duration {
	return c.ttl
}

// CachedNodeMetrics represents a cached node metrics snapshot
type CachedNodeMetrics struct {
	Address  string              `json:"address"`
	Metrics  *models.NodeMetrics `json:"metrics"`
	CachedAt time.Time           `json:"cachedAt"`
}

// CachedPatterns represents cached pattern results for an address
type CachedPatterns struct {
	Address  string                  `json:"address"`
	Results  []*models.PatternResult `json:"results"`
	CachedAt time.Time               `json:"cachedAt"`
}
