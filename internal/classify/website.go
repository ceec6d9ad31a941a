package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ErrClassificationUnavailable is wrapped by every website classifier failure.
var ErrClassificationUnavailable = errors.New("website classification unavailable")

// Verdict is a website classifier's answer for one URL.
type Verdict struct {
	IsPrivate       bool     `json:"isPrivate"`
	PrivateKeywords []string `json:"privateKeywordsFound"`
	NHSKeywords     []string `json:"nhsKeywordsFound"`
	Confidence      float64  `json:"confidence"`
}

// WebsiteClassifier inspects a practice website and returns a verdict.
// Errors must wrap ErrClassificationUnavailable.
type WebsiteClassifier interface {
	ClassifyWebsite(ctx context.Context, websiteURL string) (*Verdict, error)
}

// WebsiteClassifierFunc adapts a function to WebsiteClassifier.
type WebsiteClassifierFunc func(ctx context.Context, websiteURL string) (*Verdict, error)

// ClassifyWebsite calls f.
func (f WebsiteClassifierFunc) ClassifyWebsite(ctx context.Context, websiteURL string) (*Verdict, error) {
	return f(ctx, websiteURL)
}

// Error describes a failed website classification.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("classify %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("classify %s: %s", e.URL, e.Message)
}

// Unwrap exposes ErrClassificationUnavailable alongside the cause.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrClassificationUnavailable, e.Cause}
	}
	return []error{ErrClassificationUnavailable}
}

// HTTPClient is the subset of *http.Client used by RemoteClient.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultRemoteURL is the public check-website endpoint.
const DefaultRemoteURL = "https://gp-checker-api.vercel.app/api/check-website"

// maxResponseBytes caps how much of a classifier response is read.
const maxResponseBytes = 1 << 20

// RemoteClient asks a check-website HTTP service for a verdict.
// The service is called as GET <endpoint>?url=<website>.
type RemoteClient struct {
	endpoint   string
	httpClient HTTPClient
	logger     *slog.Logger
}

// NewRemoteClient creates a RemoteClient. An empty endpoint uses
// DefaultRemoteURL; a nil httpClient uses one with a 10s timeout.
func NewRemoteClient(endpoint string, httpClient HTTPClient, logger *slog.Logger) *RemoteClient {
	if endpoint == "" {
		endpoint = DefaultRemoteURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteClient{endpoint: endpoint, httpClient: httpClient, logger: logger}
}

// ClassifyWebsite implements WebsiteClassifier.
func (r *RemoteClient) ClassifyWebsite(ctx context.Context, websiteURL string) (*Verdict, error) {
	reqURL := r.endpoint + "?url=" + url.QueryEscape(websiteURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, &Error{URL: websiteURL, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &Error{URL: websiteURL, Message: "request failed", Cause: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			r.logger.Debug("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{URL: websiteURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{URL: websiteURL, Message: "failed to read response body", Cause: err}
	}

	var v Verdict
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &Error{URL: websiteURL, Message: "malformed response", Cause: err}
	}
	return &v, nil
}
