package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"classifier-gateway/middleware/gateway/application"
	"classifier-gateway/middleware/gateway/domain"
)

const defaultRecordTimeout = 2 * time.Second

type AnalyticsOptions struct {
	Analytics *application.Analytics
	// Security, quando presente, recebe um evento scam_detected por detecção.
	Security *application.AdmissionService
	Metrics  domain.MetricsRecorder
	// Async grava fora do caminho da resposta.
	Async         bool
	RecordTimeout time.Duration
	AddressFn     KeyFunc
	MaxBody       int
	Logger        *slog.Logger
}

// AnalyticsMiddleware mede a latência, lê o resultado do classificador na
// resposta e registra a requisição. Falhas de gravação nunca afetam a resposta.
func AnalyticsMiddleware(opts AnalyticsOptions) func(next http.Handler) http.Handler {
	if opts.Analytics == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.Metrics == nil {
		opts.Metrics = domain.NoOpMetricsRecorder{}
	}
	if opts.RecordTimeout <= 0 {
		opts.RecordTimeout = defaultRecordTimeout
	}
	if opts.AddressFn == nil {
		opts.AddressFn = ClientAddressFunc(false)
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = defaultMaxCachedBody
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			cw := newCaptureWriter(w, opts.MaxBody)
			next.ServeHTTP(cw, r)
			latency := time.Since(start)

			cached := cw.Header().Get(CacheHeader) == "HIT"
			opts.Metrics.Observe("request.latency", latency.Seconds(), map[string]string{"cached": boolString(cached)})

			meta, ok := RequestMetaFromContext(r.Context())
			if !ok {
				meta = RequestMetaFrom(r, opts.AddressFn)
			}
			tier := domain.TierDefault
			if adm, ok := AdmissionFrom(r.Context()); ok && adm.Tier != "" {
				tier = adm.Tier
			}

			var result domain.ResultMeta
			if cw.Status() == http.StatusOK && isJSON(cw.Header()) {
				result, _ = ParseResultMeta(cw.Body())
			}

			record := func(ctx context.Context) {
				ctx, cancel := context.WithTimeout(ctx, opts.RecordTimeout)
				defer cancel()

				opts.Analytics.RecordRequest(ctx, meta, tier, result, latency)
				if result.IsScam && opts.Security != nil {
					if _, err := opts.Security.RecordSecurityEvent(ctx, domain.EventScamDetected, map[string]any{
						"ip":       meta.ClientAddress,
						"path":     meta.Path,
						"patterns": result.DetectedPatterns,
						"cached":   cached,
					}); err != nil {
						opts.Logger.Warn("could not persist scam event", "err", err)
					}
				}
			}

			// sem cancelamento: a requisição já terminou quando o registro roda
			ctx := context.WithoutCancel(r.Context())
			if opts.Async {
				go record(ctx)
				return
			}
			record(ctx)
		})
	}
}

// ParseResultMeta lê {is_scam, detected_patterns, extracted_intel} do corpo,
// no topo do documento ou dentro de "result".
func ParseResultMeta(body []byte) (domain.ResultMeta, bool) {
	if len(body) == 0 {
		return domain.ResultMeta{}, false
	}

	var doc struct {
		domain.ResultMeta
		Result *domain.ResultMeta `json:"result"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return domain.ResultMeta{}, false
	}
	if doc.Result != nil {
		return *doc.Result, true
	}
	return doc.ResultMeta, true
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
