// Package cache provides the C2 caching layer: short-TTL snapshots
// fronting hot read paths, backed by Redis with an in-process LRU
// fallback when the configured Redis cannot be reached at startup, and
// a NullCache when no Redis endpoint is configured. The cache is a
// performance hint only — every miss or backend outage falls through
// to the slow path (C1); see cache.go's teacher precedent
// (control-plane/internal/cache/cache.go) for the Get/Set/JSON shape.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "iiot:cache:"

// Cache is the C2 capability: Get/Set/Delete with TTL, tolerant of
// backend unavailability.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
}

// RedisCache is the production Cache backed by Redis, grounded
// directly on the teacher's control-plane/internal/cache/cache.go.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

// New creates a new Redis-backed cache. Per §4.2/§6 ("CACHE_URL absent
// => cache disabled, slow path only"), callers should only construct
// this when CACHE_URL is set; use NullCache otherwise.
func New(redisURL string, logger *slog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache connection failed: %w", err)
	}

	return &RedisCache{client: client, logger: logger}, nil
}

// Ping reports whether Redis is reachable, used by internal/health's
// readiness check.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		// The cache tolerates unavailability: reads return miss rather
		// than propagating the error to the caller.
		c.logger.Warn("cache get failed, treating as miss", "key", key, "error", err)
		return nil, false, nil
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed, continuing on slow path", "key", key, "error", err)
	}
	return nil
}

func (c *RedisCache) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *RedisCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.Set(ctx, key, data, ttl)
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", "key", key, "error", err)
	}
	return nil
}

func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	keys, err := c.client.Keys(ctx, keyPrefix+pattern).Result()
	if err != nil {
		c.logger.Warn("cache pattern scan failed", "pattern", pattern, "error", err)
		return nil
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			c.logger.Warn("cache pattern invalidation failed", "pattern", pattern, "error", err)
		}
	}
	return nil
}
