package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"
)

// knownRoutes are recorded under their own path label.
var knownRoutes = map[string]bool{
	"/":              true,
	"/search":        true,
	"/search/stream": true,
	"/score":         true,
	"/health":        true,
	"/ready":         true,
	"/metrics":       true,
}

// unmatchedRoute labels every path the router does not serve so scanners
// probing random URLs cannot blow up metric cardinality.
const unmatchedRoute = "other"

// normalizePath maps a request path to a bounded route label.
func normalizePath(path string) string {
	if knownRoutes[path] {
		return path
	}
	if n := len(path); n > 1 && path[n-1] == '/' && knownRoutes[path[:n-1]] {
		return path[:n-1]
	}
	return unmatchedRoute
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// Hijack lets websocket upgrades pass through the metrics middleware.
func (mrw *metricsResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return hijack(mrw.ResponseWriter, func() {
		mrw.statusCode = http.StatusSwitchingProtocols
	})
}

// newMetricsResponseWriter creates a new metricsResponseWriter with default 200 status.
func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics is a middleware that records HTTP request metrics.
// It captures duration, response size, and request counts.
// Health check endpoints (/health, /ready) are excluded from metrics.
// For the search stream the duration is the lifetime of the connection.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := newMetricsResponseWriter(w)

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				mrw.size,
			)
		})
	}
}
