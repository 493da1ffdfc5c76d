package ensemble

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raspverry/ai-ocr/internal/config"
	"github.com/raspverry/ai-ocr/internal/engine"
	"github.com/raspverry/ai-ocr/internal/errors"
)

const defaultCacheTimeout = 2 * time.Second

// RedisCache stores results as JSON strings with SET ... EX
type RedisCache struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// NewRedisCache wraps an existing client; every call is bounded by timeout
func NewRedisCache(client redis.UniversalClient, timeout time.Duration) *RedisCache {
	if timeout <= 0 {
		timeout = defaultCacheTimeout
	}
	return &RedisCache{client: client, timeout: timeout}
}

// NewRedisCacheFromURL connects to redis://... and pings it
func NewRedisCacheFromURL(ctx context.Context, redisURL string, timeout time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	c := NewRedisCache(client, timeout)

	pingCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return c, nil
}

// Get implements Cache
func (c *RedisCache) Get(ctx context.Context, key string) (*engine.Result, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.client.Get(ctx, key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var result engine.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &result, true, nil
}

// Set implements Cache
func (c *RedisCache) Set(ctx context.Context, key string, result *engine.Result, ttl time.Duration) error {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(result.WithoutRegions())
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete implements Cache
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Del(ctx, key).Err()
}

// Close closes the underlying client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NewCacheFromConfig picks the CACHE_BACKEND implementation. "none" yields a
// nil Cache, which the coordinator treats as caching disabled.
func NewCacheFromConfig(ctx context.Context, cfg *config.Config) (Cache, error) {
	switch cfg.CacheBackend {
	case "none":
		return nil, nil
	case "redis":
		c, err := NewRedisCacheFromURL(ctx, cfg.RedisURL, cfg.CacheTimeout)
		if err != nil {
			return nil, errors.NewCacheFailedError("connect", err)
		}
		return c, nil
	case "memory", "":
		return NewMemoryCache(), nil
	default:
		return nil, errors.NewInvalidConfigError("CACHE_BACKEND", fmt.Sprintf("unknown cache backend %q", cfg.CacheBackend))
	}
}
