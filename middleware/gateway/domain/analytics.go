package domain

import (
	"context"
	"time"
)

const (
	HourBucketLayout = "2006-01-02-15"
	DayBucketLayout  = "2006-01-02"
)

// HourBucket e DayBucket formatam t (em UTC) como sufixo das chaves de série.
func HourBucket(t time.Time) string { return t.UTC().Format(HourBucketLayout) }
func DayBucket(t time.Time) string  { return t.UTC().Format(DayBucketLayout) }

// DefaultIntelCategories são as categorias de inteligência extraída mostradas no resumo.
var DefaultIntelCategories = []string{"upi_ids", "links", "bank_accounts", "phone_numbers", "emails"}

// ResultMeta é o que o classificador devolveu para uma requisição.
type ResultMeta struct {
	IsScam           bool                `json:"is_scam"`
	DetectedPatterns []string            `json:"detected_patterns,omitempty"`
	ExtractedIntel   map[string][]string `json:"extracted_intel,omitempty"`
}

// RequestRecord é um evento de analytics.
type RequestRecord struct {
	Request RequestMeta
	Tier    Tier
	Result  ResultMeta
	Latency time.Duration
	At      time.Time
}

type Bucket struct {
	Total int64 `json:"total" yaml:"total"`
	Scams int64 `json:"scams" yaml:"scams"`
}

type PatternCount struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Count   int64  `json:"count" yaml:"count"`
}

type RealTimeStats struct {
	TotalRequests      int64             `json:"total_requests" yaml:"total_requests"`
	ScamRequests       int64             `json:"scam_requests" yaml:"scam_requests"`
	ScamRate           float64           `json:"scam_rate" yaml:"scam_rate"`
	UniqueAddressCount int64             `json:"unique_ips" yaml:"unique_ips"`
	AvgLatency         float64           `json:"avg_response_time" yaml:"avg_response_time"`
	HourlyBuckets      map[string]Bucket `json:"hourly_stats" yaml:"hourly_stats"`
	TopPatterns        []PatternCount    `json:"top_patterns" yaml:"top_patterns"`
	TierCounts         map[string]int64  `json:"tier_counts,omitempty" yaml:"tier_counts,omitempty"`
}

type PerformanceMetrics struct {
	Avg   float64 `json:"avg_response_time" yaml:"avg_response_time"`
	Min   float64 `json:"min_response_time" yaml:"min_response_time"`
	Max   float64 `json:"max_response_time" yaml:"max_response_time"`
	P95   float64 `json:"p95_response_time" yaml:"p95_response_time"`
	Count int     `json:"total_requests" yaml:"total_requests"`
}

type TrendingPattern struct {
	Pattern       string  `json:"pattern" yaml:"pattern"`
	RecentCount   int64   `json:"recent_count" yaml:"recent_count"`
	PreviousCount int64   `json:"previous_count" yaml:"previous_count"`
	GrowthRate    float64 `json:"growth_rate" yaml:"growth_rate"`
}

type TrendPeriod struct {
	RecentStart   string `json:"recent_start" yaml:"recent_start"`
	RecentEnd     string `json:"recent_end" yaml:"recent_end"`
	PreviousStart string `json:"previous_start" yaml:"previous_start"`
}

type TrendingAnalysis struct {
	TrendingPatterns []TrendingPattern `json:"trending_patterns" yaml:"trending_patterns"`
	Period           TrendPeriod       `json:"analysis_period" yaml:"analysis_period"`
}

type IntelCategory struct {
	Count        int      `json:"count" yaml:"count"`
	RecentValues []string `json:"recent_values" yaml:"recent_values"`
}

type IntelSummary map[string]IntelCategory

// Dashboard agrega as quatro visões de leitura.
type Dashboard struct {
	RealTime    RealTimeStats      `json:"real_time" yaml:"real_time"`
	Intel       IntelSummary       `json:"intel" yaml:"intel"`
	Performance PerformanceMetrics `json:"performance" yaml:"performance"`
	Trending    TrendingAnalysis   `json:"trending" yaml:"trending"`
}

// AnalyticsSnapshot é o documento de export.
type AnalyticsSnapshot struct {
	Timestamp   time.Time          `json:"timestamp" yaml:"timestamp"`
	RealTime    RealTimeStats      `json:"real_time_stats" yaml:"real_time_stats"`
	Intel       IntelSummary       `json:"extracted_intel" yaml:"extracted_intel"`
	Performance PerformanceMetrics `json:"performance_metrics" yaml:"performance_metrics"`
	Trending    TrendingAnalysis   `json:"trending_analysis" yaml:"trending_analysis"`
}

// AnalyticsStore é a persistência do agregador.
//
// Record deve ser tratado como best-effort pelo chamador (não derrubar request).
type AnalyticsStore interface {
	Record(ctx context.Context, rec RequestRecord) error

	Totals(ctx context.Context) (total, scams, uniqueIPs int64, err error)
	ResponseTimes(ctx context.Context) ([]float64, error)
	HourBuckets(ctx context.Context, hours []string) (map[string]Bucket, error)
	// PatternCounts varre as chaves de padrão (custo proporcional ao número de padrões).
	PatternCounts(ctx context.Context) (map[string]int64, error)
	DailyPatternCounts(ctx context.Context, days []string) (map[string]int64, error)
	Intel(ctx context.Context, category string, n int64) ([]string, error)
	TierCounts(ctx context.Context) (map[string]int64, error)
}
