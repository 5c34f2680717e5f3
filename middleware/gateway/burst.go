package gateway

import (
	"net/http"
	"time"

	"classifier-gateway/middleware/gateway/application"
	"classifier-gateway/middleware/gateway/domain"
)

type BurstOptions struct {
	Store               domain.LimiterStore
	Metrics             domain.MetricsRecorder
	KeyFn               KeyFunc
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// BurstMiddleware corta rajadas de um mesmo cliente antes de qualquer I/O.
func BurstMiddleware(opts BurstOptions) func(next http.Handler) http.Handler {
	if opts.Store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = ClientAddressFunc(opts.TrustXForwardedFor)
	}

	guard := application.BurstGuard{
		Store:      opts.Store,
		RetryAfter: opts.RetryAfter,
		Metrics:    opts.Metrics,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				if ri, ok := opts.Store.(rateInfo); ok {
					w.Header().Set("X-Burst-RPS", formatFloat(ri.RPS()))
					w.Header().Set("X-Burst-Size", formatInt(int64(ri.Burst())))
				}
			}

			dec := guard.Decide(domain.Key(key))
			if !dec.Allowed {
				w.Header().Set("Retry-After", retryAfterSeconds(dec.RetryAfter))
				writeError(w, opts.RejectStatus, "Too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
