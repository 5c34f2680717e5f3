package application

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"classifier-gateway/middleware/gateway/domain"
)

// Cache é o cache de dois tiers: local (em processo) na frente do Remote Store.
//
// Falhas do Remote Store nunca sobem: leitura vira miss e escrita retorna false
// com a cópia local mantida.
type Cache struct {
	local  domain.LocalCache
	remote domain.RemoteCache

	rules       domain.TTLRules
	localTTL    time.Duration
	fallbackTTL time.Duration

	logger  *slog.Logger
	metrics domain.MetricsRecorder
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

type CacheOption func(*Cache)

func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithCacheMetrics(m domain.MetricsRecorder) CacheOption {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTTLRules substitui a tabela prefixo→TTL (avaliada em ordem).
func WithTTLRules(rules domain.TTLRules) CacheOption {
	return func(c *Cache) { c.rules = rules }
}

func WithLocalTTL(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.localTTL = d
		}
	}
}

func WithFallbackTTL(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.fallbackTTL = d
		}
	}
}

func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func NewCache(local domain.LocalCache, remote domain.RemoteCache, opts ...CacheOption) *Cache {
	c := &Cache{
		local:       local,
		remote:      remote,
		rules:       domain.DefaultTTLRules(),
		localTTL:    domain.DefaultLocalTTL,
		fallbackTTL: domain.DefaultCacheTTL,
		logger:      slog.Default(),
		metrics:     domain.NoOpMetricsRecorder{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get procura key no tier local e depois no Remote Store.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	now := c.now()

	// cópia local vencida não é removida aqui: um Set concorrente pode já ter
	// gravado outra no lugar. O hit remoto sobrescreve e o LRU despeja o resto.
	if e, ok := c.local.Get(key); ok && now.Sub(e.InsertedAt) < e.TTL {
		c.lookup("local", "hit")
		return e.Value, true
	}

	v, err := c.remote.Get(ctx, key)
	switch {
	case err == nil:
		c.local.Put(c.entry(key, v, now, c.localTTL))
		c.lookup("remote", "hit")
		return v, true
	case errors.Is(err, domain.ErrNotFound):
		c.lookup("remote", "miss")
	default:
		c.logger.Warn("cache remote get failed", "key", key, "err", err)
		c.lookup("remote", "error")
		c.storeError()
	}
	return nil, false
}

// Set grava nos dois tiers. ttl <= 0 usa a regra do prefixo da chave ou o fallback.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.rules.Lookup(key, c.fallbackTTL)
	}

	c.local.Put(c.entry(key, value, c.now(), ttl))

	if err := c.remote.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("cache remote set failed", "key", key, "ttl", ttl, "err", err)
		c.metrics.Add("cache.write", 1, map[string]string{"result": "error"})
		c.storeError()
		return false
	}
	c.metrics.Add("cache.write", 1, map[string]string{"result": "ok"})
	return true
}

// Delete remove key dos dois tiers e informa se alguma cópia existia.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	removedLocal := c.local.Delete(key)

	removedRemote, err := c.remote.Delete(ctx, key)
	if err != nil {
		c.logger.Warn("cache remote delete failed", "key", key, "err", err)
		c.storeError()
	}
	return removedLocal || removedRemote
}

// ClearByPattern remove as chaves que casam com pattern (glob do SCAN MATCH) nos dois
// tiers e retorna quantas foram removidas do Remote Store.
func (c *Cache) ClearByPattern(ctx context.Context, pattern string) int64 {
	localRemoved := c.local.DeleteMatching(globMatcher(pattern))

	n, err := c.remote.DeletePattern(ctx, pattern)
	if err != nil {
		c.logger.Warn("cache clear pattern failed", "pattern", pattern, "removed", n, "err", err)
		c.storeError()
	}
	c.logger.Info("cache cleared", "pattern", pattern, "remote", n, "local", localRemoved)
	return n
}

// Stats retorna um retrato do cache. Falha na contagem remota deixa RemoteKeys em -1.
func (c *Cache) Stats(ctx context.Context) domain.CacheStats {
	st := domain.CacheStats{
		LocalEntries: c.local.Len(),
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
	}
	n, err := c.remote.Count(ctx)
	if err != nil {
		c.logger.Warn("cache remote count failed", "err", err)
		c.storeError()
		n = -1
	}
	st.RemoteKeys = n
	return st
}

// entry limita a validade da cópia local ao menor entre ttl e localTTL.
func (c *Cache) entry(key string, value []byte, at time.Time, ttl time.Duration) domain.CacheEntry {
	if ttl <= 0 || ttl > c.localTTL {
		ttl = c.localTTL
	}
	return domain.CacheEntry{Key: key, Value: value, InsertedAt: at, TTL: ttl}
}

func (c *Cache) lookup(tier, result string) {
	if result == "hit" {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.metrics.Add("cache.lookup", 1, map[string]string{"tier": tier, "result": result})
}

func (c *Cache) storeError() {
	c.metrics.Add("store.error", 1, map[string]string{"component": "cache"})
}
