package infra

import (
	"context"
	"testing"
	"time"

	"classifier-gateway/middleware/gateway/domain"
)

func TestBurstStore_GetSameKeyReturnsSameLimiter(t *testing.T) {
	s := NewBurstStore(10, 1)

	l1 := s.Get(domain.Key("10.0.0.1"))
	l2 := s.Get(domain.Key("10.0.0.1"))
	if l1 != l2 {
		t.Fatalf("expected same limiter for same client")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 tracked client, got %d", s.Len())
	}
}

func TestBurstStore_LowBurstRejectsSecondImmediateAllow(t *testing.T) {
	s := NewBurstStore(0.02, 1)

	lim := s.Get(domain.Key("10.0.0.1"))
	if !lim.Allow() {
		t.Fatalf("expected first Allow to be true")
	}
	if lim.Allow() {
		t.Fatalf("expected second immediate Allow to be false (burst=1)")
	}

	other := s.Get(domain.Key("10.0.0.2"))
	if !other.Allow() {
		t.Fatalf("expected a different client to have its own bucket")
	}
}

func TestBurstStore_CleanupRemovesIdleEntries(t *testing.T) {
	s := NewBurstStore(10, 1, WithIdleTTL(2*time.Millisecond), WithCleanupEvery(0))

	before := s.Get(domain.Key("k"))
	time.Sleep(4 * time.Millisecond)

	s.Cleanup()
	if s.Len() != 0 {
		t.Fatalf("expected idle entry to be removed, got %d", s.Len())
	}

	after := s.Get(domain.Key("k"))
	if before == after {
		t.Fatalf("expected limiter to be recreated after cleanup")
	}
}

func TestBurstStore_JanitorStopsWithContext(t *testing.T) {
	s := NewBurstStore(10, 1, WithIdleTTL(time.Millisecond), WithCleanupEvery(2*time.Millisecond))
	_ = s.Get(domain.Key("k"))

	ctx, cancel := context.WithCancel(context.Background())
	s.StartJanitor(ctx)

	deadline := time.Now().Add(time.Second)
	for s.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()

	if s.Len() != 0 {
		t.Fatalf("expected janitor to clean idle entry")
	}
}
