package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/gpfinder/internal/health"
)

// DefaultReadyTimeout bounds all dependency checks of one readiness probe.
const DefaultReadyTimeout = 5 * time.Second

// HealthHandlers provides health and readiness check endpoints for Kubernetes probes.
type HealthHandlers struct {
	deps    []health.Dependency
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// HealthHandlersConfig configures the health check handlers.
type HealthHandlersConfig struct {
	// Dependencies are checked by Ready. Nil checkers are skipped.
	Dependencies []health.Dependency
	Timeout      time.Duration
	Logger       *slog.Logger
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	deps := make([]health.Dependency, 0, len(config.Dependencies))
	for _, d := range config.Dependencies {
		if d.Checker != nil {
			deps = append(deps, d)
		}
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandlers{deps: deps, timeout: timeout, logger: logger, now: time.Now}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
// If we can respond, we're alive.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": health.StatusOK},
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness probe).
// Returns 503 if any required dependency is unavailable.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	report := health.Run(r.Context(), h.deps, h.timeout, h.logger)

	status, code := "healthy", http.StatusOK
	if !report.Healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	report.Checks["metrics"] = health.StatusOK

	writeJSON(w, r, code, HealthResponse{
		Status:    status,
		Checks:    report.Checks,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}
