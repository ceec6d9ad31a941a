package api

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/gpfinder/internal/middleware"
)

// ServiceName identifies the API in traces and the root response.
const ServiceName = "gpfinder-api"

// RouterConfig wires handlers and middleware into the API handler.
type RouterConfig struct {
	Search  *SearchHandlers
	Stream  *StreamHandlers
	Health  *HealthHandlers
	Metrics http.Handler

	Logger      *slog.Logger
	HTTPMetrics *middleware.Metrics

	// RateLimitStore limits /search and /search/stream upgrades; nil disables limiting.
	RateLimitStore middleware.RateLimitStore
	RateLimit      middleware.RateLimitConfig

	CORSOrigins    []string
	TracingEnabled bool
	Version        string
}

// NewRouter returns the API handler with the standard middleware chain:
// Recover -> RequestID -> Tracing -> Logging -> HTTPMetrics -> CORS -> routes.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limited := func(h http.HandlerFunc) http.Handler {
		if cfg.RateLimitStore == nil {
			return h
		}
		return middleware.RateLimiter(cfg.RateLimitStore, cfg.RateLimit, middleware.IPKeyFunc(), cfg.HTTPMetrics)(h)
	}

	mux := http.NewServeMux()
	if cfg.Search != nil {
		mux.Handle("GET /search", limited(cfg.Search.Search))
		mux.HandleFunc("GET /score", cfg.Search.Score)
	}
	if cfg.Stream != nil {
		mux.Handle("GET /search/stream", limited(cfg.Stream.Stream))
	}
	if cfg.Health != nil {
		mux.HandleFunc("GET /health", cfg.Health.Health)
		mux.HandleFunc("GET /ready", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]string{"service": ServiceName, "version": version})
	})

	var handler http.Handler = mux
	handler = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins))(handler)
	if cfg.HTTPMetrics != nil {
		handler = middleware.HTTPMetrics(cfg.HTTPMetrics)(handler)
	}
	handler = middleware.Logging(logger)(handler)
	if cfg.TracingEnabled {
		handler = middleware.Tracing(ServiceName)(handler)
	}
	handler = middleware.RequestID(handler)
	return middleware.Recover(logger)(handler)
}
