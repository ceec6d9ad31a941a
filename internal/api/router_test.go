package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/gpfinder/internal/middleware"
	"github.com/onnwee/gpfinder/internal/search"
)

func newTestRouter(t *testing.T, limit int) (http.Handler, *fakeSearcher) {
	t.Helper()
	fs := &fakeSearcher{fn: func(_ context.Context, q search.Query) (*search.Result, error) {
		return rankedResult(q), nil
	}}
	metrics := middleware.NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("register metrics: %v", err)
	}

	router := NewRouter(RouterConfig{
		Search:         NewSearchHandlers(fs, discardLogger()),
		Stream:         NewStreamHandlers(fs, nil, discardLogger()),
		Health:         NewHealthHandlers(HealthHandlersConfig{Logger: discardLogger()}),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:         discardLogger(),
		HTTPMetrics:    metrics,
		RateLimitStore: middleware.NewInMemoryRateLimitStore(),
		RateLimit:      middleware.SearchLimit(limit),
		CORSOrigins:    []string{"https://gp.example"},
		Version:        "test",
	})
	return router, fs
}

func TestRouter_Routes(t *testing.T) {
	router, _ := newTestRouter(t, 10)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/search?lat=51.5&lng=-0.12", http.StatusOK},
		{http.MethodGet, "/score?rating=4&reviews=10", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/practices", http.StatusNotFound},
		{http.MethodPost, "/search", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if w.Header().Get(middleware.RequestIDHeader) == "" {
				t.Error("expected X-Request-ID header")
			}
		})
	}
}

func TestRouter_NotFoundEnvelope(t *testing.T) {
	router, _ := newTestRouter(t, 10)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if resp := decodeError(t, w.Body.Bytes()); resp.Error.Code != ErrCodeNotFound {
		t.Errorf("expected %s, got %s", ErrCodeNotFound, resp.Error.Code)
	}
}

func TestRouter_Root(t *testing.T) {
	router, _ := newTestRouter(t, 10)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["service"] != ServiceName || body["version"] != "test" {
		t.Errorf("unexpected root body %v", body)
	}
}

func TestRouter_RateLimitsSearchOnly(t *testing.T) {
	router, fs := newTestRouter(t, 1)

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search?lat=51.5&lng=-0.12", nil))
		if w.Code != want {
			t.Fatalf("request %d: expected status %d, got %d", i, want, w.Code)
		}
		if want == http.StatusTooManyRequests {
			if resp := decodeError(t, w.Body.Bytes()); resp.Error.Code != ErrCodeRateLimited {
				t.Errorf("expected %s, got %s", ErrCodeRateLimited, resp.Error.Code)
			}
		}
	}
	if n := len(fs.Queries()); n != 1 {
		t.Errorf("expected 1 search to reach the searcher, got %d", n)
	}

	// Scoring is local and never limited.
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/score?rating=4&reviews=10", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("score request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestRouter_CORS(t *testing.T) {
	router, _ := newTestRouter(t, 10)

	req := httptest.NewRequest(http.MethodOptions, "/search", nil)
	req.Header.Set("Origin", "https://gp.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected preflight 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://gp.example" {
		t.Errorf("unexpected Access-Control-Allow-Origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/search?lat=1&lng=1", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for disallowed origin, got %d", w.Code)
	}
}

func TestRouter_MetricsExposeHTTPRequests(t *testing.T) {
	router, _ := newTestRouter(t, 10)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/search?lat=51.5&lng=-0.12", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), middleware.MetricHTTPRequestsTotal) {
		t.Errorf("expected %s in metrics output", middleware.MetricHTTPRequestsTotal)
	}
}
