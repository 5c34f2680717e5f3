package infra

import (
	"net/http"

	"classifier-gateway/middleware/gateway/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implementa domain.MetricsRecorder com vetores fixos por
// nome conhecido. Nomes desconhecidos são ignorados.
type PrometheusRecorder struct {
	reg      *prometheus.Registry
	counters map[string]*counterMetric
	hists    map[string]*histMetric
}

type counterMetric struct {
	vec    *prometheus.CounterVec
	labels []string
}

type histMetric struct {
	vec    *prometheus.HistogramVec
	labels []string
}

func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	counter := func(name, help string, labels ...string) *counterMetric {
		return &counterMetric{
			vec: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      name,
				Help:      help,
			}, labels),
			labels: labels,
		}
	}

	return &PrometheusRecorder{
		reg: reg,
		counters: map[string]*counterMetric{
			"cache.lookup":       counter("cache_lookups_total", "Cache lookups by tier and result.", "tier", "result"),
			"cache.write":        counter("cache_writes_total", "Cache writes to the remote tier.", "result"),
			"admission.decision": counter("admission_decisions_total", "Admission control decisions.", "outcome"),
			"store.error":        counter("store_errors_total", "Remote store failures by component.", "component"),
			"upstream.rejected":  counter("upstream_rejected_total", "Requests rejected before reaching the upstream.", "reason"),
		},
		hists: map[string]*histMetric{
			"request.latency": {
				vec: f.NewHistogramVec(prometheus.HistogramOpts{
					Namespace: "gateway",
					Name:      "request_latency_seconds",
					Help:      "Latency of classification requests.",
					Buckets:   prometheus.DefBuckets,
				}, []string{"cached"}),
				labels: []string{"cached"},
			},
		},
	}
}

func (r *PrometheusRecorder) Add(name string, value float64, tags map[string]string) {
	m, ok := r.counters[name]
	if !ok {
		return
	}
	m.vec.WithLabelValues(labelValues(m.labels, tags)...).Add(value)
}

func (r *PrometheusRecorder) Observe(name string, value float64, tags map[string]string) {
	m, ok := r.hists[name]
	if !ok {
		return
	}
	m.vec.WithLabelValues(labelValues(m.labels, tags)...).Observe(value)
}

// Handler expõe o registry no formato de exposição do Prometheus.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *PrometheusRecorder) Registry() *prometheus.Registry { return r.reg }

func labelValues(labels []string, tags map[string]string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = tags[l]
	}
	return out
}

var _ domain.MetricsRecorder = (*PrometheusRecorder)(nil)
