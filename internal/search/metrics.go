package search

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricPasses       = "search_passes_total"
	MetricPassDuration = "search_pass_duration_seconds"
	MetricRanked       = "search_ranked_candidates"
	MetricStalePasses  = "search_stale_passes_total"
)

// Metrics contains Prometheus metrics for search passes.
// All operations are thread-safe.
type Metrics struct {
	passes       *prometheus.CounterVec
	passDuration prometheus.Histogram
	ranked       prometheus.Histogram
	stalePasses  prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPasses,
			Help: "Search passes by outcome (ok, no_candidates, empty_after_filter, upstream_failure, cancelled, error)",
		}, []string{"outcome"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricPassDuration,
			Help:    "End-to-end search pass duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}),
		ranked: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRanked,
			Help:    "Number of candidates returned by successful passes",
			Buckets: []float64{1, 3, 5, 10, 20, 40, 60},
		}),
		stalePasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricStalePasses,
			Help: "Passes discarded because a newer pass superseded them",
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

// ObservePass records a finished pass.
func (m *Metrics) ObservePass(outcome string, seconds float64) {
	m.passes.WithLabelValues(outcome).Inc()
	m.passDuration.Observe(seconds)
}

// ObserveCandidates records the size of a successful pass.
func (m *Metrics) ObserveCandidates(n int) {
	m.ranked.Observe(float64(n))
}

// IncStalePass increments the stale pass counter.
func (m *Metrics) IncStalePass() {
	m.stalePasses.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.passes,
		m.passDuration,
		m.ranked,
		m.stalePasses,
	}
}
