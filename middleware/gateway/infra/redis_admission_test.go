package infra

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"classifier-gateway/middleware/gateway/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisAdmissionStore_FixedWindowAllowsExactlyQuota(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisAdmissionStore(rdb)
	ctx := context.Background()
	quota := domain.Quota{Requests: 3, Window: time.Hour}

	for i := 1; i <= 3; i++ {
		w, ok, err := s.Allow(ctx, "10.0.0.1", quota)
		require.NoError(t, err)
		require.True(t, ok, "request %d should be allowed", i)
		assert.EqualValues(t, i, w.Count)
		assert.EqualValues(t, 3-i, w.Remaining())
	}

	w, ok, err := s.Allow(ctx, "10.0.0.1", quota)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 3, w.Count, "denied request must not increment the counter")
	assert.Greater(t, w.ResetIn, time.Duration(0))

	got, err := mr.Get("rate_limit:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	mr.FastForward(time.Hour + time.Second)

	w, ok, err = s.Allow(ctx, "10.0.0.1", quota)
	require.NoError(t, err)
	assert.True(t, ok, "new window after expiry")
	assert.EqualValues(t, 1, w.Count)
}

func TestRedisAdmissionStore_WindowIsNotExtendedByLaterRequests(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisAdmissionStore(rdb)
	ctx := context.Background()
	quota := domain.Quota{Requests: 100, Window: time.Hour}

	_, _, err := s.Allow(ctx, "a", quota)
	require.NoError(t, err)
	mr.FastForward(40 * time.Minute)

	_, _, err = s.Allow(ctx, "a", quota)
	require.NoError(t, err)

	assert.LessOrEqual(t, mr.TTL("rate_limit:a"), 20*time.Minute)
}

func TestRedisAdmissionStore_ConcurrentAllowNeverOvercounts(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewRedisAdmissionStore(rdb)
	quota := domain.Quota{Requests: 10, Window: time.Hour}

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Allow(context.Background(), "burst", quota)
			if err == nil && ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, allowed.Load())
}

func TestRedisAdmissionStore_APIKeys(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisAdmissionStore(rdb)
	ctx := context.Background()

	_, err := s.APIKey(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := domain.APIKeyRecord{Key: "k1", Tier: domain.TierPremium, CreatedAt: created, LastReset: created}
	require.NoError(t, s.SaveAPIKey(ctx, rec, 30*24*time.Hour))

	got, err := s.APIKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "k1", got.Key)
	assert.Equal(t, domain.TierPremium, got.Tier)
	assert.True(t, created.Equal(got.CreatedAt))

	require.NoError(t, mr.Set("api_key:broken", "{not json"))
	_, err = s.APIKey(ctx, "broken")
	assert.ErrorIs(t, err, domain.ErrMalformed)

	n, err := s.CountAPIKeys(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestRedisAdmissionStore_BlockAndSuspicion(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisAdmissionStore(rdb)
	ctx := context.Background()

	blocked, err := s.IsBlocked(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, s.Block(ctx, "1.2.3.4", time.Hour))
	blocked, err = s.IsBlocked(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, blocked)

	mr.FastForward(time.Hour + time.Second)
	blocked, err = s.IsBlocked(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, blocked)

	for i := int64(1); i <= 3; i++ {
		n, err := s.IncrSuspicion(ctx, "5.6.7.8", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	assert.Equal(t, time.Hour, mr.TTL("suspicious_ip:5.6.7.8"))
}

func TestRedisAdmissionStore_EventsAreCappedAndNewestFirst(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisAdmissionStore(rdb)
	ctx := context.Background()

	for i := 0; i < maxSecurityEvents+5; i++ {
		require.NoError(t, s.AppendEvent(ctx, domain.SecurityEvent{
			ID:        fmt.Sprintf("ev-%d", i),
			Timestamp: time.Now().UTC(),
			Type:      domain.EventSuspiciousRequest,
		}))
	}

	list, err := mr.List("security_events")
	require.NoError(t, err)
	assert.Len(t, list, maxSecurityEvents)
	assert.Equal(t, securityEventsTTL, mr.TTL("security_events"))

	evs, err := s.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, fmt.Sprintf("ev-%d", maxSecurityEvents+4), evs[0].ID)
}

func TestRedisAdmissionStore_SweepGivesExpiryToPersistentKeys(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisAdmissionStore(rdb)
	ctx := context.Background()

	require.NoError(t, mr.Set("rate_limit:orphan", "4"))
	require.NoError(t, mr.Set("blocked_ip:9.9.9.9", "1"))
	require.NoError(t, s.Block(ctx, "8.8.8.8", time.Minute))

	fixed, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)
	assert.Equal(t, sweepRateLimitTTL, mr.TTL("rate_limit:orphan"))
	assert.Equal(t, sweepBlockedTTL, mr.TTL("blocked_ip:9.9.9.9"))
	assert.Equal(t, time.Minute, mr.TTL("blocked_ip:8.8.8.8"))

	active, err := s.CountRateWindows(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, active)
}

func TestRedisAdmissionStore_SweepAcrossScanBatches(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisAdmissionStore(rdb)
	ctx := context.Background()

	orphans := scanBatch + 50
	for i := 0; i < orphans; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("rate_limit:10.0.%d.%d", i/256, i%256), "1"))
	}
	require.NoError(t, s.Block(ctx, "8.8.8.8", time.Minute))

	fixed, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, orphans, fixed)
	assert.Equal(t, sweepRateLimitTTL, mr.TTL("rate_limit:10.0.0.7"))
	assert.Equal(t, time.Minute, mr.TTL("blocked_ip:8.8.8.8"))

	fixed, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}

func TestRedisAdmissionStore_RootPrefix(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisAdmissionStore(rdb, WithAdmissionRoot("staging:"))

	require.NoError(t, s.Block(context.Background(), "1.1.1.1", time.Minute))
	assert.True(t, mr.Exists("staging:blocked_ip:1.1.1.1"))
}
