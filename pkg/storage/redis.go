package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cachewright/httpcache/pkg/cache"
)

const (
	// DefaultRedisPrefix namespaces cache records in a shared Redis.
	DefaultRedisPrefix = "httpcache:"

	// DefaultRedisTTL bounds how long a record survives without being
	// refreshed. Freshness is decided by the engine, not by Redis; the TTL
	// only keeps abandoned records from accumulating.
	DefaultRedisTTL = 24 * time.Hour
)

var _ cache.Storage = (*Redis)(nil)

// Redis is a cache.Storage backed by a Redis server. It is safe for
// concurrent use and can be shared across processes.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis storage over the given client. A nil client
// panics. Prefix and TTL fall back to the package defaults when zero.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Get implements cache.Storage.
func (r *Redis) Get(ctx context.Context, key string) (*cache.Entry, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, cache.ErrNotFound
		}
		storageErrors.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		storageCorrupt.WithLabelValues("redis").Inc()
		_ = r.client.Del(ctx, r.prefix+key).Err()
		return nil, cache.ErrNotFound
	}
	return entry, nil
}

// Put implements cache.Storage.
func (r *Redis) Put(ctx context.Context, key string, entry *cache.Entry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		storageErrors.WithLabelValues("redis", "put").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Remove implements cache.Storage.
func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		storageErrors.WithLabelValues("redis", "remove").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
