// Package cache provides a two-tier byte cache: an in-process LRU in front
// of an optional shared Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/disease-risk-api/internal/domain"
)

const keyPrefix = "disease-risk:"

// Stats represents cache performance statistics
type Stats struct {
	MemoryHits   int64 `json:"memory_hits"`
	MemoryMisses int64 `json:"memory_misses"`
	RedisHits    int64 `json:"redis_hits"`
	RedisMisses  int64 `json:"redis_misses"`
	RedisErrors  int64 `json:"redis_errors"`
}

// TieredCache is safe for concurrent use. Redis failures degrade to misses.
type TieredCache struct {
	memory *expirable.LRU[string, []byte] // Tier 1
	redis  *redis.Client                  // Tier 2, nil when disabled
	ttl    time.Duration
	logger *logrus.Logger

	memoryHits   atomic.Int64
	memoryMisses atomic.Int64
	redisHits    atomic.Int64
	redisMisses  atomic.Int64
	redisErrors  atomic.Int64
}

// New creates a cache from config. An empty RedisURL disables tier 2.
func New(ctx context.Context, config domain.CacheConfig, logger *logrus.Logger) (*TieredCache, error) {
	var client *redis.Client
	if config.RedisURL != "" {
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		if config.PoolSize > 0 {
			opts.PoolSize = config.PoolSize
		}
		if config.PoolTimeout > 0 {
			opts.PoolTimeout = config.PoolTimeout
		}
		opts.MaxRetries = config.MaxRetries

		client = redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}
	return NewWithClient(config.MemorySize, client, config.DefaultTTL, logger), nil
}

// NewWithClient creates a cache over an existing Redis client, which may be nil
func NewWithClient(memorySize int, client *redis.Client, ttl time.Duration, logger *logrus.Logger) *TieredCache {
	if memorySize <= 0 {
		memorySize = 64
	}
	c := &TieredCache{
		memory: expirable.NewLRU[string, []byte](memorySize, nil, ttl),
		redis:  client,
		ttl:    ttl,
		logger: logger,
	}

	logger.WithFields(logrus.Fields{
		"memory_size":   memorySize,
		"redis_enabled": client != nil,
		"ttl":           ttl.String(),
	}).Info("Cache initialized")
	return c
}

// Get returns the cached value for key. A Redis hit is promoted to memory.
func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := c.memory.Get(key); ok {
		c.memoryHits.Add(1)
		return v, true
	}
	c.memoryMisses.Add(1)

	if c.redis == nil {
		return nil, false
	}

	v, err := c.redis.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.redisMisses.Add(1)
		return nil, false
	}
	if err != nil {
		c.redisErrors.Add(1)
		c.logger.WithError(err).WithField("key", key).Warn("Redis cache read failed")
		return nil, false
	}

	c.redisHits.Add(1)
	c.memory.Add(key, v)
	return v, true
}

// Set stores value in both tiers
func (c *TieredCache) Set(ctx context.Context, key string, value []byte) {
	c.memory.Add(key, value)

	if c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, keyPrefix+key, value, c.ttl).Err(); err != nil {
		c.redisErrors.Add(1)
		c.logger.WithError(err).WithField("key", key).Warn("Redis cache write failed")
	}
}

// Invalidate removes key from both tiers
func (c *TieredCache) Invalidate(ctx context.Context, key string) error {
	c.memory.Remove(key)
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, keyPrefix+key).Err()
}

// Ping checks the Redis tier; it always succeeds when Redis is disabled
func (c *TieredCache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// RedisEnabled reports whether tier 2 is configured
func (c *TieredCache) RedisEnabled() bool {
	return c.redis != nil
}

// Stats returns a snapshot of the hit and miss counters
func (c *TieredCache) Stats() Stats {
	return Stats{
		MemoryHits:   c.memoryHits.Load(),
		MemoryMisses: c.memoryMisses.Load(),
		RedisHits:    c.redisHits.Load(),
		RedisMisses:  c.redisMisses.Load(),
		RedisErrors:  c.redisErrors.Load(),
	}
}

// Close releases the Redis connection pool
func (c *TieredCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}
