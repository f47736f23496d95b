package cache

import (
	"context"
	"time"

	rediscommon "github.com/quillwiki/attachd/common/redis"
)

// RedisCache is a Cache backed by a shared Redis instance, for deployments
// running more than one attachd replica.
type RedisCache struct {
	client *rediscommon.Client
	prefix string
}

// NewRedisCache creates a Redis-backed cache. All keys are namespaced
// under the given prefix.
func NewRedisCache(client *rediscommon.Client, prefix string) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
	}
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return c.client.Get(ctx, c.prefix+key)
}

// Set stores a value in cache with TTL
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.SetWithExpiry(ctx, c.prefix+key, value, ttl)
}

// Delete removes a value from cache
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Delete(ctx, c.prefix+key)
}

// Close is a no-op; the underlying client is owned by the container.
func (c *RedisCache) Close() error {
	return nil
}
