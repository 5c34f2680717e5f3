package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"classifier-gateway/middleware/gateway/domain"
	"classifier-gateway/middleware/gateway/infra"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, capacity int, opts ...CacheOption) (*Cache, *miniredis.Miniredis, *infra.LocalCache) {
	t.Helper()
	mr, rdb := newTestRedis(t)
	local := infra.NewLocalCache(capacity)
	return NewCache(local, infra.NewRedisCache(rdb), opts...), mr, local
}

func TestCache_ReadYourWriteAcrossEviction(t *testing.T) {
	c, _, local := newTestCache(t, 3)
	ctx := context.Background()

	require.True(t, c.Set(ctx, "scam_detection:target", []byte("v"), 0))
	for i := 0; i < 10; i++ {
		c.Set(ctx, fmt.Sprintf("scam_detection:fill-%d", i), []byte("x"), 0)
	}
	assert.Equal(t, 3, local.Len())

	got, ok := c.Get(ctx, "scam_detection:target")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))

	// repopulado no tier local
	_, ok = local.Get("scam_detection:target")
	assert.True(t, ok)
}

func TestCache_RemoteTTLFollowsPrefixRules(t *testing.T) {
	c, mr, _ := newTestCache(t, 10)
	ctx := context.Background()

	c.Set(ctx, "agent_reply:1", []byte("a"), 0)
	c.Set(ctx, "intelligence:1", []byte("b"), 0)
	c.Set(ctx, "unknown:1", []byte("c"), 0)
	c.Set(ctx, "agent_reply:2", []byte("d"), 10*time.Second)

	assert.Equal(t, 30*time.Minute, mr.TTL("cache:agent_reply:1"))
	assert.Equal(t, 24*time.Hour, mr.TTL("cache:intelligence:1"))
	assert.Equal(t, domain.DefaultCacheTTL, mr.TTL("cache:unknown:1"))
	assert.Equal(t, 10*time.Second, mr.TTL("cache:agent_reply:2"))
}

func TestCache_StaleLocalCopyIsRevalidated(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	c, mr, _ := newTestCache(t, 10, WithCacheClock(clock.Now), WithLocalTTL(time.Minute))
	ctx := context.Background()

	c.Set(ctx, "scam_detection:k", []byte("old"), time.Hour)
	require.NoError(t, mr.Set("cache:scam_detection:k", "new"))

	got, _ := c.Get(ctx, "scam_detection:k")
	assert.Equal(t, "old", string(got), "local copy still fresh")

	clock.Advance(2 * time.Minute)
	got, ok := c.Get(ctx, "scam_detection:k")
	require.True(t, ok)
	assert.Equal(t, "new", string(got))
}

// racingLocal dispara afterGet uma vez logo depois de um Get, simulando um Set
// concorrente entre a leitura da cópia local e o resto do lookup.
type racingLocal struct {
	*infra.LocalCache
	afterGet func()
}

func (l *racingLocal) Get(key string) (domain.CacheEntry, bool) {
	e, ok := l.LocalCache.Get(key)
	if fn := l.afterGet; fn != nil {
		l.afterGet = nil
		fn()
	}
	return e, ok
}

func TestCache_StaleLookupKeepsConcurrentWrite(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	mr, rdb := newTestRedis(t)
	local := &racingLocal{LocalCache: infra.NewLocalCache(10)}
	c := NewCache(local, infra.NewRedisCache(rdb), WithCacheClock(clock.Now), WithLocalTTL(time.Minute))
	ctx := context.Background()

	c.Set(ctx, "scam_detection:k", []byte("old"), time.Hour)
	clock.Advance(2 * time.Minute)
	mr.Del("cache:scam_detection:k")

	// o Set concorrente só consegue gravar no tier local
	local.afterGet = func() {
		mr.SetError("LOADING")
		c.Set(ctx, "scam_detection:k", []byte("fresh"), time.Hour)
	}
	_, ok := c.Get(ctx, "scam_detection:k")
	assert.False(t, ok)

	e, ok := local.LocalCache.Get("scam_detection:k")
	require.True(t, ok, "concurrent write survives the stale lookup")
	assert.Equal(t, "fresh", string(e.Value))

	got, ok := c.Get(ctx, "scam_detection:k")
	require.True(t, ok)
	assert.Equal(t, "fresh", string(got))
}

func TestCache_StaleLocalCopyIsNotServed(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	c, mr, _ := newTestCache(t, 10, WithCacheClock(clock.Now), WithLocalTTL(time.Minute))
	ctx := context.Background()

	c.Set(ctx, "scam_detection:k", []byte("old"), time.Hour)
	mr.Del("cache:scam_detection:k")
	clock.Advance(2 * time.Minute)

	_, ok := c.Get(ctx, "scam_detection:k")
	assert.False(t, ok)
}

func TestCache_RemoteFailureDegrades(t *testing.T) {
	c, mr, local := newTestCache(t, 10)
	ctx := context.Background()

	mr.SetError("LOADING")

	assert.False(t, c.Set(ctx, "scam_detection:k", []byte("v"), 0), "remote write failure reported")
	assert.Equal(t, 1, local.Len(), "local write stands")

	got, ok := c.Get(ctx, "scam_detection:k")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))

	_, ok = c.Get(ctx, "scam_detection:other")
	assert.False(t, ok, "remote error is a miss")

	assert.EqualValues(t, -1, c.Stats(ctx).RemoteKeys)
}

func TestCache_ClearByPatternScoping(t *testing.T) {
	c, mr, local := newTestCache(t, 10)
	ctx := context.Background()

	c.Set(ctx, "scam_detection:1", []byte("a"), 0)
	c.Set(ctx, "scam_detection:2", []byte("b"), 0)
	c.Set(ctx, "agent_reply:1", []byte("c"), 0)
	require.NoError(t, mr.Set("rate_limit:1.2.3.4", "3"))

	n := c.ClearByPattern(ctx, "scam_detection:*")
	assert.EqualValues(t, 2, n)

	_, ok := c.Get(ctx, "scam_detection:1")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "agent_reply:1")
	assert.True(t, ok)
	assert.Equal(t, 1, local.Len())
	assert.True(t, mr.Exists("rate_limit:1.2.3.4"))
}

func TestCache_DeleteAndStats(t *testing.T) {
	c, _, _ := newTestCache(t, 10)
	ctx := context.Background()

	c.Set(ctx, "analytics:x", []byte("1"), 0)
	_, _ = c.Get(ctx, "analytics:x")
	_, _ = c.Get(ctx, "analytics:missing")

	st := c.Stats(ctx)
	assert.Equal(t, 1, st.LocalEntries)
	assert.EqualValues(t, 1, st.RemoteKeys)
	assert.EqualValues(t, 1, st.Hits)
	assert.EqualValues(t, 1, st.Misses)

	assert.True(t, c.Delete(ctx, "analytics:x"))
	assert.False(t, c.Delete(ctx, "analytics:x"))
	_, ok := c.Get(ctx, "analytics:x")
	assert.False(t, ok)
}
