package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"classifier-gateway/middleware/gateway/domain"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const (
	realtimeHours   = 24
	topPatternsN    = 10
	trendWindowDays = 7
	intelSampleSize = 50
	intelRecentSize = 10
)

// Formatos aceitos por ExportText.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Analytics agrega contadores de requisições e monta os snapshots de leitura.
//
// RecordRequest é fire-and-forget: falhas são logadas e nunca chegam ao
// chamador. As leituras devolvem erro do store para o handler decidir.
type Analytics struct {
	store domain.AnalyticsStore

	categories []string

	logger  *slog.Logger
	metrics domain.MetricsRecorder
	now     func() time.Time
}

type AnalyticsOption func(*Analytics)

func WithAnalyticsLogger(l *slog.Logger) AnalyticsOption {
	return func(a *Analytics) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithAnalyticsMetrics(m domain.MetricsRecorder) AnalyticsOption {
	return func(a *Analytics) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithIntelCategories define as categorias mostradas no resumo de inteligência.
func WithIntelCategories(categories ...string) AnalyticsOption {
	return func(a *Analytics) {
		if len(categories) > 0 {
			a.categories = categories
		}
	}
}

func WithAnalyticsClock(now func() time.Time) AnalyticsOption {
	return func(a *Analytics) { a.now = now }
}

func NewAnalytics(store domain.AnalyticsStore, opts ...AnalyticsOption) *Analytics {
	a := &Analytics{
		store:      store,
		categories: domain.DefaultIntelCategories,
		logger:     slog.Default(),
		metrics:    domain.NoOpMetricsRecorder{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RecordRequest registra uma requisição atendida.
func (a *Analytics) RecordRequest(ctx context.Context, req domain.RequestMeta, tier domain.Tier, result domain.ResultMeta, latency time.Duration) {
	rec := domain.RequestRecord{
		Request: req,
		Tier:    tier,
		Result:  result,
		Latency: latency,
		At:      a.now(),
	}
	if err := a.store.Record(ctx, rec); err != nil {
		a.logger.Warn("analytics record failed", "path", req.Path, "err", err)
		a.metrics.Add("store.error", 1, map[string]string{"component": "analytics"})
	}
}

func (a *Analytics) RealTimeStats(ctx context.Context) (domain.RealTimeStats, error) {
	var st domain.RealTimeStats

	total, scams, unique, err := a.store.Totals(ctx)
	if err != nil {
		return st, fmt.Errorf("totals: %w", err)
	}
	rts, err := a.store.ResponseTimes(ctx)
	if err != nil {
		return st, fmt.Errorf("response times: %w", err)
	}

	now := a.now()
	hours := make([]string, 0, realtimeHours)
	for i := 0; i < realtimeHours; i++ {
		hours = append(hours, domain.HourBucket(now.Add(-time.Duration(i)*time.Hour)))
	}
	buckets, err := a.store.HourBuckets(ctx, hours)
	if err != nil {
		return st, fmt.Errorf("hour buckets: %w", err)
	}

	patterns, err := a.store.PatternCounts(ctx)
	if err != nil {
		return st, fmt.Errorf("patterns: %w", err)
	}
	tiers, err := a.store.TierCounts(ctx)
	if err != nil {
		return st, fmt.Errorf("tiers: %w", err)
	}

	st = domain.RealTimeStats{
		TotalRequests:      total,
		ScamRequests:       scams,
		ScamRate:           ScamRate(scams, total),
		UniqueAddressCount: unique,
		AvgLatency:         round3(mean(rts)),
		HourlyBuckets:      buckets,
		TopPatterns:        TopPatterns(patterns, topPatternsN),
		TierCounts:         tiers,
	}
	return st, nil
}

// IntelSummary conta os valores mais recentes de cada categoria.
func (a *Analytics) IntelSummary(ctx context.Context) (domain.IntelSummary, error) {
	out := make(domain.IntelSummary, len(a.categories))
	for _, c := range a.categories {
		values, err := a.store.Intel(ctx, c, intelSampleSize)
		if err != nil {
			return nil, fmt.Errorf("intel %s: %w", c, err)
		}
		recent := values
		if len(recent) > intelRecentSize {
			recent = recent[:intelRecentSize]
		}
		if recent == nil {
			recent = []string{}
		}
		out[c] = domain.IntelCategory{Count: len(values), RecentValues: recent}
	}
	return out, nil
}

func (a *Analytics) PerformanceMetrics(ctx context.Context) (domain.PerformanceMetrics, error) {
	rts, err := a.store.ResponseTimes(ctx)
	if err != nil {
		return domain.PerformanceMetrics{}, fmt.Errorf("response times: %w", err)
	}
	return ComputePerformance(rts), nil
}

// TrendingAnalysis compara os últimos 7 dias com os 7 anteriores.
func (a *Analytics) TrendingAnalysis(ctx context.Context) (domain.TrendingAnalysis, error) {
	now := a.now()

	recentDays := make([]string, 0, trendWindowDays)
	previousDays := make([]string, 0, trendWindowDays)
	for i := 0; i < trendWindowDays; i++ {
		recentDays = append(recentDays, domain.DayBucket(now.AddDate(0, 0, -i)))
		previousDays = append(previousDays, domain.DayBucket(now.AddDate(0, 0, -(i+trendWindowDays))))
	}

	recent, err := a.store.DailyPatternCounts(ctx, recentDays)
	if err != nil {
		return domain.TrendingAnalysis{}, fmt.Errorf("recent patterns: %w", err)
	}
	previous, err := a.store.DailyPatternCounts(ctx, previousDays)
	if err != nil {
		return domain.TrendingAnalysis{}, fmt.Errorf("previous patterns: %w", err)
	}

	return domain.TrendingAnalysis{
		TrendingPatterns: ComputeTrending(recent, previous),
		Period: domain.TrendPeriod{
			RecentStart:   recentDays[len(recentDays)-1],
			RecentEnd:     recentDays[0],
			PreviousStart: previousDays[len(previousDays)-1],
		},
	}, nil
}

// Dashboard monta as quatro visões em paralelo.
func (a *Analytics) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	var d domain.Dashboard
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		d.RealTime, err = a.RealTimeStats(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Intel, err = a.IntelSummary(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Performance, err = a.PerformanceMetrics(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Trending, err = a.TrendingAnalysis(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return domain.Dashboard{}, err
	}
	return d, nil
}

// Export retorna o snapshot completo, com o horário da exportação.
func (a *Analytics) Export(ctx context.Context) (domain.AnalyticsSnapshot, error) {
	d, err := a.Dashboard(ctx)
	if err != nil {
		return domain.AnalyticsSnapshot{}, err
	}
	return domain.AnalyticsSnapshot{
		Timestamp:   a.now().UTC(),
		RealTime:    d.RealTime,
		Intel:       d.Intel,
		Performance: d.Performance,
		Trending:    d.Trending,
	}, nil
}

// ExportText serializa o snapshot em JSON indentado ou YAML.
func (a *Analytics) ExportText(ctx context.Context, format string) ([]byte, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" || format == "text" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatYAML {
		return nil, fmt.Errorf("unsupported export format %q", format)
	}

	snap, err := a.Export(ctx)
	if err != nil {
		return nil, err
	}

	if format == FormatYAML {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return json.MarshalIndent(snap, "", "  ")
}

// ScamRate é scams/total em porcentagem, 0 quando total = 0.
func ScamRate(scams, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(scams) / float64(total) * 100
}

// ComputePerformance calcula avg/min/max/p95 (índice floor(0.95n) da amostra
// ordenada). Amostra vazia dá zeros.
func ComputePerformance(sample []float64) domain.PerformanceMetrics {
	n := len(sample)
	if n == 0 {
		return domain.PerformanceMetrics{}
	}

	sorted := slices.Clone(sample)
	slices.Sort(sorted)

	idx := (95 * n) / 100
	if idx >= n {
		idx = n - 1
	}

	return domain.PerformanceMetrics{
		Avg:   round3(mean(sorted)),
		Min:   round3(sorted[0]),
		Max:   round3(sorted[n-1]),
		P95:   round3(sorted[idx]),
		Count: n,
	}
}

// ComputeTrending retorna a taxa de crescimento (%) de cada padrão da janela
// recente sobre a anterior, da maior para a menor. Padrões sem ocorrência na
// janela anterior ficam de fora.
func ComputeTrending(recent, previous map[string]int64) []domain.TrendingPattern {
	out := make([]domain.TrendingPattern, 0, len(recent))
	for p, rc := range recent {
		pc := previous[p]
		if pc <= 0 {
			continue
		}
		out = append(out, domain.TrendingPattern{
			Pattern:       p,
			RecentCount:   rc,
			PreviousCount: pc,
			GrowthRate:    round3(float64(rc-pc) / float64(pc) * 100),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].GrowthRate != out[j].GrowthRate {
			return out[i].GrowthRate > out[j].GrowthRate
		}
		if out[i].RecentCount != out[j].RecentCount {
			return out[i].RecentCount > out[j].RecentCount
		}
		return out[i].Pattern < out[j].Pattern
	})
	return out
}

// TopPatterns retorna os n padrões mais frequentes (empate: ordem alfabética).
func TopPatterns(counts map[string]int64, n int) []domain.PatternCount {
	out := make([]domain.PatternCount, 0, len(counts))
	for p, c := range counts {
		out = append(out, domain.PatternCount{Pattern: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Pattern < out[j].Pattern
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
