package classify

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/gpfinder/internal/practice"
)

// Metrics names as constants for consistency.
const (
	MetricDecisions        = "classify_decisions_total"
	MetricUnavailable      = "classify_website_unavailable_total"
	MetricCallDuration     = "classify_website_call_duration_seconds"
	MetricVerdictCacheHit  = "classify_verdict_cache_hits_total"
	MetricVerdictCacheMiss = "classify_verdict_cache_misses_total"
)

// Metrics contains Prometheus metrics for private-practice classification.
// All operations are thread-safe.
type Metrics struct {
	decisions    *prometheus.CounterVec
	unavailable  prometheus.Counter
	callDuration prometheus.Histogram
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricDecisions,
			Help: "Classification outcomes by deciding stage (name, website) and result",
		}, []string{"stage", "private"}),
		unavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricUnavailable,
			Help: "Website classification calls that failed and were treated as not private",
		}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricCallDuration,
			Help:    "Duration of website classification calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricVerdictCacheHit,
			Help: "Website verdicts served from cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricVerdictCacheMiss,
			Help: "Website verdict cache misses",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncDecision counts one resolved candidate.
func (m *Metrics) IncDecision(stage string, status practice.PrivateStatus) {
	m.decisions.WithLabelValues(stage, status.String()).Inc()
}

// IncUnavailable counts one failed website classification.
func (m *Metrics) IncUnavailable() {
	m.unavailable.Inc()
}

// ObserveCallDuration records a website classification call duration.
func (m *Metrics) ObserveCallDuration(seconds float64) {
	m.callDuration.Observe(seconds)
}

// IncCacheHit increments the verdict cache hit counter.
func (m *Metrics) IncCacheHit() {
	m.cacheHits.Inc()
}

// IncCacheMiss increments the verdict cache miss counter.
func (m *Metrics) IncCacheMiss() {
	m.cacheMisses.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.decisions,
		m.unavailable,
		m.callDuration,
		m.cacheHits,
		m.cacheMisses,
	}
}
