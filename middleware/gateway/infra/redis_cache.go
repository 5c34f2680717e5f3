package infra

import (
	"context"
	"strings"
	"time"

	"classifier-gateway/middleware/gateway/domain"

	"github.com/redis/go-redis/v9"
)

// RedisCache é o tier durável do cache, sob o namespace "cache:".
type RedisCache struct {
	rdb     redis.UniversalClient
	prefix  string
	timeout time.Duration
}

type RedisCacheOption func(*RedisCache)

func WithCachePrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) { c.prefix = strings.Trim(prefix, ":") }
}

func WithCacheTimeout(d time.Duration) RedisCacheOption {
	return func(c *RedisCache) { c.timeout = d }
}

func NewRedisCache(rdb redis.UniversalClient, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		rdb:     rdb,
		prefix:  "cache",
		timeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) key(k string) string { return c.prefix + ":" + k }

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	b, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if isNil(err) {
		return nil, domain.ErrNotFound
	}
	return b, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	return c.rdb.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.rdb.Del(ctx, c.key(key)).Result()
	return n > 0, err
}

// DeletePattern apaga em lote as chaves que casam com pattern (glob do Redis,
// relativo ao namespace) e retorna quantas foram removidas.
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	ctx, cancel := withTimeout(ctx, c.timeout*4)
	defer cancel()

	var removed int64
	err := scanKeys(ctx, c.rdb, c.key(pattern), func(keys []string) error {
		n, err := c.rdb.Del(ctx, keys...).Result()
		removed += n
		return err
	})
	return removed, err
}

func (c *RedisCache) Count(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, c.timeout*4)
	defer cancel()

	return countKeys(ctx, c.rdb, c.prefix+":*")
}

var _ domain.RemoteCache = (*RedisCache)(nil)
