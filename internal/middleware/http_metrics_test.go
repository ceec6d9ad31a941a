package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func labelsOf(m *dto.Metric) map[string]string {
	out := make(map[string]string, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		out[l.GetName()] = l.GetValue()
	}
	return out
}

func serveWithMetrics(t *testing.T, path string, status int, body string) *prometheus.Registry {
	t.Helper()
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	handler := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != status {
		t.Fatalf("status = %d, want %d", rec.Code, status)
	}
	return reg
}

func TestHTTPMetrics_RecordsRoute(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantRoute string
	}{
		{"search", "/search?lat=51.5&lng=-0.12", http.StatusOK, "/search"},
		{"score", "/score?rating=4.6&reviews=50", http.StatusOK, "/score"},
		{"trailing slash", "/search/", http.StatusOK, "/search"},
		{"validation failure", "/search?lat=95", http.StatusBadRequest, "/search"},
		{"unknown path", "/wp-login.php", http.StatusNotFound, unmatchedRoute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := serveWithMetrics(t, tt.path, tt.status, `{}`)

			mf := findFamily(t, reg, MetricHTTPRequestsTotal)
			if mf == nil || len(mf.GetMetric()) != 1 {
				t.Fatalf("expected one %s series", MetricHTTPRequestsTotal)
			}
			labels := labelsOf(mf.GetMetric()[0])
			if labels["route"] != tt.wantRoute {
				t.Errorf("route = %q, want %q", labels["route"], tt.wantRoute)
			}
			if labels["method"] != http.MethodGet {
				t.Errorf("method = %q, want GET", labels["method"])
			}
			if want := strconv.Itoa(tt.status); labels["status"] != want {
				t.Errorf("status = %q, want %q", labels["status"], want)
			}
			if findFamily(t, reg, MetricHTTPRequestDuration) == nil {
				t.Errorf("%s not recorded", MetricHTTPRequestDuration)
			}
		})
	}
}

func TestHTTPMetrics_SkipsProbes(t *testing.T) {
	for _, path := range []string{"/health", "/ready"} {
		t.Run(path, func(t *testing.T) {
			reg := serveWithMetrics(t, path, http.StatusOK, `{"status":"healthy"}`)
			if mf := findFamily(t, reg, MetricHTTPRequestsTotal); mf != nil && len(mf.GetMetric()) > 0 {
				t.Errorf("expected %s to be excluded", path)
			}
		})
	}
}

func TestHTTPMetrics_ResponseSize(t *testing.T) {
	body := `{"practices":[{"id":"a"}]}`
	reg := serveWithMetrics(t, "/search", http.StatusOK, body)

	mf := findFamily(t, reg, MetricHTTPResponseSizeBytes)
	if mf == nil || len(mf.GetMetric()) != 1 {
		t.Fatal("response size not recorded")
	}
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() != float64(len(body)) {
		t.Errorf("sample sum = %v, want %d", h.GetSampleSum(), len(body))
	}
}

func TestObserveHTTPRequest_SeriesPerStatus(t *testing.T) {
	m := NewMetrics()
	m.ObserveHTTPRequest("GET", "/search", "200", 0.8, 900)
	m.ObserveHTTPRequest("GET", "/search", "404", 1.2, 120)
	m.ObserveHTTPRequest("GET", "/search", "200", 2.1, 700)

	if got := testutil.CollectAndCount(m.requests); got != 2 {
		t.Errorf("series = %d, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/search", "200")); got != 2 {
		t.Errorf("200 count = %v, want 2", got)
	}
}

func TestMetricsResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	mrw := newMetricsResponseWriter(rec)

	mrw.WriteHeader(http.StatusBadGateway)
	mrw.WriteHeader(http.StatusOK)
	_, _ = mrw.Write([]byte("upstream "))
	_, _ = mrw.Write([]byte("failure"))

	if mrw.statusCode != http.StatusBadGateway {
		t.Errorf("statusCode = %d, want %d", mrw.statusCode, http.StatusBadGateway)
	}
	if mrw.size != int64(len("upstream failure")) {
		t.Errorf("size = %d, want %d", mrw.size, len("upstream failure"))
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/search", "/search"},
		{"/search/", "/search"},
		{"/search/stream", "/search/stream"},
		{"/metrics", "/metrics"},
		{"/wp-admin/setup.php", unmatchedRoute},
		{"/search/ChIJ123", unmatchedRoute},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
