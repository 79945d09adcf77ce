package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisSetKey prefixes the Redis set shared by every worker instance.
const DefaultRedisSetKey = "cookflow:provisioned"

// MemoryCache keeps provisioned keys for the lifetime of the process.
type MemoryCache struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{keys: make(map[string]struct{})}
}

func (c *MemoryCache) Contains(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.keys[key]
	return ok, nil
}

func (c *MemoryCache) Add(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = struct{}{}
	return nil
}

func (c *MemoryCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

// Len reports how many keys are cached.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// RedisCache shares provisioned keys across processes through one Redis set.
type RedisCache struct {
	client redis.Cmdable
	setKey string
}

func NewRedisCache(client redis.Cmdable, setKey string) *RedisCache {
	if setKey == "" {
		setKey = DefaultRedisSetKey
	}
	return &RedisCache{client: client, setKey: setKey}
}

func (c *RedisCache) Contains(ctx context.Context, key string) (bool, error) {
	return c.client.SIsMember(ctx, c.setKey, key).Result()
}

func (c *RedisCache) Add(ctx context.Context, key string) error {
	return c.client.SAdd(ctx, c.setKey, key).Err()
}

func (c *RedisCache) Remove(ctx context.Context, key string) error {
	return c.client.SRem(ctx, c.setKey, key).Err()
}

// RedisSetKey scopes the shared set to the storage the keys describe, so
// deployments on different accounts or backends never share entries. Empty
// scope parts are skipped.
func RedisSetKey(scope ...string) string {
	key := DefaultRedisSetKey
	for _, part := range scope {
		if part != "" {
			key += ":" + part
		}
	}
	return key
}

// NewRedisClient parses a redis:// URL and checks the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, errors.New("provision: redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}
