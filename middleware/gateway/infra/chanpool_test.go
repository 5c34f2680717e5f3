package infra

import (
	"context"
	"testing"
	"time"
)

func TestChanPool_AcquireUpToCapacity(t *testing.T) {
	p := NewChanPool(2)

	r1, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	r2, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected second acquire to succeed")
	}
	if p.InUse() != 2 {
		t.Fatalf("expected 2 slots in use, got %d", p.InUse())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected acquire to time out when pool is full")
	}

	r1()
	r1() // release é idempotente
	if p.InUse() != 1 {
		t.Fatalf("expected 1 slot in use after double release, got %d", p.InUse())
	}
	r2()
}

func TestChanPool_FreeSlotWinsOverCancelledContext(t *testing.T) {
	p := NewChanPool(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	release, ok := p.Acquire(ctx)
	if !ok {
		t.Fatalf("expected acquire to succeed with a free slot")
	}
	release()
}

func TestChanPool_NonPositiveMaxMeansOne(t *testing.T) {
	p := NewChanPool(0)

	release, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected acquire to succeed")
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected capacity 1")
	}
}
