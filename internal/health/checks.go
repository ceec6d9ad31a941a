package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Checker is implemented by every dependency check.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f CheckerFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// Check statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Dependency is a named check. Optional dependencies are reported but do
// not make the service unready: the classifier fails open, so search still
// works while it is down.
type Dependency struct {
	Name     string
	Checker  Checker
	Optional bool
}

// Report is the result of running all checks.
type Report struct {
	Healthy bool
	Checks  map[string]string
}

// Run executes every dependency check concurrently under timeout.
func Run(ctx context.Context, deps []Dependency, timeout time.Duration, logger *slog.Logger) Report {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report := Report{Healthy: true, Checks: make(map[string]string, len(deps))}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, dep := range deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := dep.Checker.HealthCheck(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Checks[dep.Name] = StatusError
				if !dep.Optional {
					report.Healthy = false
				}
				logger.WarnContext(ctx, "dependency health check failed",
					slog.String("dependency", dep.Name),
					slog.Bool("optional", dep.Optional),
					slog.String("error", err.Error()),
				)
				return
			}
			report.Checks[dep.Name] = StatusOK
		}()
	}
	wg.Wait()
	return report
}

// Names returns the check names in sorted order.
func (r Report) Names() []string {
	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
