package application

import (
	"context"
	"sync"
	"time"

	"classifier-gateway/middleware/gateway/domain"
)

type fakeLimiter struct {
	allow bool
}

func (f fakeLimiter) Allow() bool { return f.allow }

type fakeLimiterStore struct {
	lim domain.Limiter
}

func (s fakeLimiterStore) Get(domain.Key) domain.Limiter { return s.lim }

type blockingPool struct{}

func (p *blockingPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-time.After(5 * time.Second):
		// não deve chegar aqui nos testes
		return nil, false
	}
}

func (p *blockingPool) InUse() int { return 1 }

type immediatePool struct {
	acquired int
}

func (p *immediatePool) Acquire(ctx context.Context) (func(), bool) {
	p.acquired++
	return func() {}, true
}

func (p *immediatePool) InUse() int { return p.acquired }

// recordingMetrics guarda os Adds por nome + tags.
type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]float64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counts: make(map[string]float64)}
}

func (m *recordingMetrics) Add(name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[metricKey(name, tags)] += value
}

func (m *recordingMetrics) Observe(name string, value float64, tags map[string]string) {
	m.Add(name+".observed", 1, tags)
}

func (m *recordingMetrics) get(name string, tags map[string]string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[metricKey(name, tags)]
}

func metricKey(name string, tags map[string]string) string {
	// só uma tag relevante por métrica nos testes
	for k, v := range tags {
		if k == "result" || k == "outcome" || k == "reason" || k == "component" || k == "cached" {
			name += "|" + k + "=" + v
		}
	}
	return name
}
