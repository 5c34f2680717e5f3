package application

import (
	"time"

	"classifier-gateway/middleware/gateway/domain"
)

// BurstGuard decide se um cliente ainda tem tokens no bucket local.
//
// É a primeira barreira do pipeline: barata, sem I/O e sem estado
// compartilhado entre réplicas. A quota real fica no AdmissionService.
type BurstGuard struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
	Metrics    domain.MetricsRecorder
}

func (g BurstGuard) Decide(key domain.Key) domain.Decision {
	if g.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if g.RetryAfter <= 0 {
		g.RetryAfter = time.Second
	}

	lim := g.Store.Get(key)
	if lim == nil || lim.Allow() {
		return domain.Decision{Allowed: true}
	}

	if g.Metrics != nil {
		g.Metrics.Add("upstream.rejected", 1, map[string]string{"reason": "burst"})
	}
	return domain.Decision{Allowed: false, RetryAfter: g.RetryAfter}
}
