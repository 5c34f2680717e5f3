package application

import (
	"context"
	"time"

	"classifier-gateway/middleware/gateway/domain"
)

// ConcurrencyService limita quantas requisições chegam ao classificador ao
// mesmo tempo. Não conhece HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	Metrics        domain.MetricsRecorder
}

// Acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, espera até ctx cancelar.
// - Se `AcquireTimeout > 0`, espera no máximo o timeout.
// Com ok=false nenhuma vaga foi adquirida e release é nil.
func (s ConcurrencyService) Acquire(ctx context.Context) (release func(), ok bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok = s.Pool.Acquire(ctx)
	if !ok && s.Metrics != nil {
		s.Metrics.Add("upstream.rejected", 1, map[string]string{"reason": "concurrency"})
	}
	return release, ok
}

// InUse retorna quantas vagas estão ocupadas (0 sem pool).
func (s ConcurrencyService) InUse() int {
	if s.Pool == nil {
		return 0
	}
	return s.Pool.InUse()
}
