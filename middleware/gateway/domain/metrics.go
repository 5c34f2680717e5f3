package domain

// MetricsRecorder recebe contadores e observações dos serviços.
//
// Nomes conhecidos:
//
//	cache.lookup        Add, tags: tier=local|remote, result=hit|miss|error
//	cache.write         Add, tags: result=ok|error
//	admission.decision  Add, tags: outcome=allowed|unauthorized|rate_limited|forbidden|bad_request
//	store.error         Add, tags: component=cache|admission|analytics
//	request.latency     Observe (segundos), tags: cached=true|false
//	upstream.rejected   Add, tags: reason=burst|concurrency
type MetricsRecorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// NoOpMetricsRecorder não faz nada. Evita checar nil no caminho quente.
type NoOpMetricsRecorder struct{}

func (NoOpMetricsRecorder) Add(string, float64, map[string]string)     {}
func (NoOpMetricsRecorder) Observe(string, float64, map[string]string) {}
