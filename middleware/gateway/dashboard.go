package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"classifier-gateway/middleware/gateway/application"
	"classifier-gateway/middleware/gateway/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type DashboardOptions struct {
	Analytics *application.Analytics
	Admission *application.AdmissionService
	Cache     *application.Cache
	// Invalidator, quando presente, também limpa os namespaces dependentes
	// em DELETE /admin/cache/{namespace}.
	Invalidator *application.Invalidator
	// DashboardTTL > 0 guarda /analytics/dashboard no namespace "analytics".
	DashboardTTL time.Duration
	// AdminTier é o tier exigido nas rotas /admin (default premium).
	AdminTier domain.Tier
	Metrics   http.Handler
	Logger    *slog.Logger
}

type dashboard struct {
	opts DashboardOptions
}

// NewDashboardRouter monta as rotas de leitura do analytics e as rotas de
// administração. Tudo exige uma API key válida.
func NewDashboardRouter(opts DashboardOptions) http.Handler {
	if opts.AdminTier == "" {
		opts.AdminTier = domain.TierPremium
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &dashboard{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(d.requireKey(""))

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/dashboard", d.handleDashboard)
			r.Get("/realtime", d.handleRealtime)
			r.Get("/intel", d.handleIntel)
			r.Get("/performance", d.handlePerformance)
			r.Get("/trending", d.handleTrending)
			r.Get("/export", d.handleExport)
		})
		r.Get("/security/stats", d.handleSecurityStats)
		r.Get("/cache/stats", d.handleCacheStats)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(d.requireKey(opts.AdminTier))
		r.Post("/api-keys", d.handleIssueKey)
		r.Delete("/cache/{namespace}", d.handleClearNamespace)
	})

	return r
}

// requireKey valida a API key; com tier != "", exige também esse tier.
func (d *dashboard) requireKey(tier domain.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d.opts.Admission == nil {
				writeError(w, http.StatusServiceUnavailable, "admission control not configured")
				return
			}
			rec, err := d.opts.Admission.ValidateAPIKey(r.Context(), APIKeyFromRequest(r))
			if err != nil {
				writeRejection(w, err)
				return
			}
			if tier != "" && rec.Tier != tier {
				writeError(w, http.StatusForbidden, "insufficient tier")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (d *dashboard) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if d.opts.Analytics == nil {
		writeError(w, http.StatusServiceUnavailable, "analytics not configured")
		return
	}
	load := d.opts.Analytics.Dashboard
	if d.opts.Cache != nil && d.opts.DashboardTTL > 0 {
		load = func(ctx context.Context) (domain.Dashboard, error) {
			return application.ComputeOrFetch(ctx, d.opts.Cache, "analytics", "dashboard", d.opts.DashboardTTL, d.opts.Analytics.Dashboard)
		}
	}
	d.respond(w, r, func(ctx context.Context) (any, error) { return load(ctx) })
}

func (d *dashboard) handleRealtime(w http.ResponseWriter, r *http.Request) {
	d.analytics(w, r, func(ctx context.Context, a *application.Analytics) (any, error) { return a.RealTimeStats(ctx) })
}

func (d *dashboard) handleIntel(w http.ResponseWriter, r *http.Request) {
	d.analytics(w, r, func(ctx context.Context, a *application.Analytics) (any, error) { return a.IntelSummary(ctx) })
}

func (d *dashboard) handlePerformance(w http.ResponseWriter, r *http.Request) {
	d.analytics(w, r, func(ctx context.Context, a *application.Analytics) (any, error) { return a.PerformanceMetrics(ctx) })
}

func (d *dashboard) handleTrending(w http.ResponseWriter, r *http.Request) {
	d.analytics(w, r, func(ctx context.Context, a *application.Analytics) (any, error) { return a.TrendingAnalysis(ctx) })
}

func (d *dashboard) handleExport(w http.ResponseWriter, r *http.Request) {
	if d.opts.Analytics == nil {
		writeError(w, http.StatusServiceUnavailable, "analytics not configured")
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = application.FormatJSON
	}

	var (
		data any
		err  error
	)
	switch format {
	case application.FormatJSON:
		data, err = d.opts.Analytics.Export(r.Context())
	case "text", application.FormatYAML:
		var raw []byte
		raw, err = d.opts.Analytics.ExportText(r.Context(), format)
		data = string(raw)
	default:
		writeError(w, http.StatusBadRequest, "unsupported format: "+format)
		return
	}
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Format: format, Timestamp: time.Now().UTC()})
}

func (d *dashboard) handleSecurityStats(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, d.opts.Admission.SecurityStats(r.Context()))
}

func (d *dashboard) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if d.opts.Cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache not configured")
		return
	}
	writeData(w, http.StatusOK, d.opts.Cache.Stats(r.Context()))
}

type issueKeyRequest struct {
	Tier domain.Tier `json:"tier"`
}

type issuedKey struct {
	APIKey    string      `json:"api_key"`
	Tier      domain.Tier `json:"tier"`
	CreatedAt time.Time   `json:"created_at"`
}

func (d *dashboard) handleIssueKey(w http.ResponseWriter, r *http.Request) {
	req := issueKeyRequest{Tier: domain.TierFree}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if !domain.ValidKeyTier(req.Tier) {
		writeError(w, http.StatusBadRequest, "invalid tier: "+string(req.Tier))
		return
	}

	rec, err := d.opts.Admission.IssueAPIKey(r.Context(), req.Tier)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, issuedKey{APIKey: rec.Key, Tier: rec.Tier, CreatedAt: rec.CreatedAt})
}

func (d *dashboard) handleClearNamespace(w http.ResponseWriter, r *http.Request) {
	if d.opts.Cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache not configured")
		return
	}
	ns := strings.Trim(chi.URLParam(r, "namespace"), ":*? ")
	if ns == "" {
		writeError(w, http.StatusBadRequest, "namespace required")
		return
	}
	n := d.opts.Cache.ClearByPattern(r.Context(), ns+":*")
	var dependents []string
	if d.opts.Invalidator != nil {
		dependents = d.opts.Invalidator.Dependents(ns)
		n += d.opts.Invalidator.Invalidate(r.Context(), ns)
	}
	writeData(w, http.StatusOK, map[string]any{"namespace": ns, "dependents": dependents, "removed": n})
}

func (d *dashboard) analytics(w http.ResponseWriter, r *http.Request, fn func(context.Context, *application.Analytics) (any, error)) {
	if d.opts.Analytics == nil {
		writeError(w, http.StatusServiceUnavailable, "analytics not configured")
		return
	}
	d.respond(w, r, func(ctx context.Context) (any, error) { return fn(ctx, d.opts.Analytics) })
}

func (d *dashboard) respond(w http.ResponseWriter, r *http.Request, fn func(context.Context) (any, error)) {
	data, err := fn(r.Context())
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, data)
}

func (d *dashboard) fail(w http.ResponseWriter, r *http.Request, err error) {
	d.opts.Logger.Error("dashboard request failed", "path", r.URL.Path, "err", err)
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, "analytics store timed out")
		return
	}
	writeError(w, http.StatusServiceUnavailable, "analytics store unavailable")
}
