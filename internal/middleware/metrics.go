package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names exported for dashboards and tests.
const (
	MetricRateLimitRequests     = "rate_limit_requests_total"
	MetricRateLimitBlocked      = "rate_limit_blocked_total"
	MetricRateLimitRedisErrors  = "rate_limit_redis_errors_total"
	MetricHTTPRequestDuration   = "http_request_duration_seconds"
	MetricHTTPRequestsTotal     = "http_requests_total"
	MetricHTTPResponseSizeBytes = "http_response_size_bytes"
	MetricStreamConnections     = "search_stream_connections"
	MetricStreamMessages        = "search_stream_messages_total"
)

// Stream message outcomes.
const (
	StreamAccepted    = "accepted"
	StreamRejected    = "rejected"
	StreamRateLimited = "rate_limited"
)

// Metrics holds the HTTP surface counters. All methods are safe for
// concurrent use.
type Metrics struct {
	rateLimitRequests    *prometheus.CounterVec
	rateLimitBlocked     *prometheus.CounterVec
	rateLimitRedisErrors prometheus.Counter
	requestDuration      *prometheus.HistogramVec
	requests             *prometheus.CounterVec
	responseSize         *prometheus.HistogramVec
	streamConnections    prometheus.Gauge
	streamMessages       *prometheus.CounterVec
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	httpLabels := []string{"method", "route", "status"}
	return &Metrics{
		rateLimitRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitRequests,
			Help: "Rate limit checks by route",
		}, []string{"route"}),
		rateLimitBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitBlocked,
			Help: "Requests rejected by the rate limiter by route",
		}, []string{"route"}),
		rateLimitRedisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRateLimitRedisErrors,
			Help: "Redis errors during rate limiting; each one let the request through",
		}),
		// Search passes fan out to the directory and the classifier, so the
		// buckets reach well past a typical API call.
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestDuration,
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.25, 1, 2.5, 5, 10, 30},
		}, httpLabels),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "HTTP requests by method, route and status",
		}, httpLabels),
		responseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPResponseSizeBytes,
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, httpLabels),
		streamConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricStreamConnections,
			Help: "Open search stream websocket connections",
		}),
		streamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricStreamMessages,
			Help: "Search stream client messages by type and outcome",
		}, []string{"type", "outcome"}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRateLimitRequests counts a rate limit check on route.
func (m *Metrics) IncRateLimitRequests(route string) {
	m.rateLimitRequests.WithLabelValues(route).Inc()
}

// IncRateLimitBlocked counts a request rejected on route.
func (m *Metrics) IncRateLimitBlocked(route string) {
	m.rateLimitBlocked.WithLabelValues(route).Inc()
}

// IncRateLimitRedisErrors counts a fail-open Redis error.
func (m *Metrics) IncRateLimitRedisErrors() {
	m.rateLimitRedisErrors.Inc()
}

// ObserveHTTPRequest records one completed request. route must already be
// normalized.
func (m *Metrics) ObserveHTTPRequest(method, route, status string, seconds float64, responseSize int64) {
	labels := prometheus.Labels{"method": method, "route": route, "status": status}
	m.requestDuration.With(labels).Observe(seconds)
	m.requests.With(labels).Inc()
	m.responseSize.With(labels).Observe(float64(responseSize))
}

// StreamOpened records a new search stream connection.
func (m *Metrics) StreamOpened() {
	m.streamConnections.Inc()
}

// StreamClosed records a closed search stream connection.
func (m *Metrics) StreamClosed() {
	m.streamConnections.Dec()
}

// StreamMessage counts a client frame. Unknown types should be passed as
// "unknown" to keep the label set bounded.
func (m *Metrics) StreamMessage(msgType, outcome string) {
	m.streamMessages.WithLabelValues(msgType, outcome).Inc()
}

// Collectors returns every collector, in registration order.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.rateLimitRequests,
		m.rateLimitBlocked,
		m.rateLimitRedisErrors,
		m.requestDuration,
		m.requests,
		m.responseSize,
		m.streamConnections,
		m.streamMessages,
	}
}
