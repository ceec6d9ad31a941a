package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrEndpointUnhealthy is returned when an upstream answers with a server error.
var ErrEndpointUnhealthy = errors.New("endpoint unhealthy")

// HTTPChecker reports whether an upstream HTTP service is reachable.
// Neither the classifier nor the places API exposes a health route, so any
// answer below 500 counts as reachable: a 400 for a missing query parameter
// still proves the service is up.
type HTTPChecker struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPChecker creates a checker named name probing url with GET.
func NewHTTPChecker(name, url string) *HTTPChecker {
	return &HTTPChecker{
		name: name,
		url:  url,
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
			// Redirects would probe a different host.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Name returns the check name used in readiness reports.
func (c *HTTPChecker) Name() string {
	return c.name
}

// HealthCheck performs a GET against the configured URL.
func (c *HTTPChecker) HealthCheck(ctx context.Context) error {
	if c.url == "" {
		return fmt.Errorf("%s url not configured", c.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s returned status %d", ErrEndpointUnhealthy, c.name, resp.StatusCode)
	}
	return nil
}
