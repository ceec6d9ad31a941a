// Package places is a client for the Google Places web service: nearby
// search for candidate practices and per-place detail enrichment.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/onnwee/gpfinder/internal/geo"
	"github.com/onnwee/gpfinder/internal/practice"
	"github.com/onnwee/gpfinder/internal/tracing"
)

// Search parameters fixed by the product.
const (
	SearchRadiusMeters = 2000
	PlaceType          = "health"
	BaseKeyword        = "GP doctor general practitioner"
)

// DefaultBaseURL is the Places web service root.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// detailFields are requested from the details endpoint.
const detailFields = "formatted_phone_number,website,opening_hours"

// Places API status values.
const (
	statusOK           = "OK"
	statusZeroResults  = "ZERO_RESULTS"
	statusUnknownError = "UNKNOWN_ERROR"
)

var (
	// ErrUpstreamStatus is wrapped when the service answers with a non-OK status.
	ErrUpstreamStatus = errors.New("places upstream returned non-OK status")
	// ErrMissingAPIKey is returned before any request when no key is configured.
	ErrMissingAPIKey = errors.New("places API key not configured")
)

// Keyword returns the nearby search keyword. Excluding private practices adds
// a "-private" term so the directory pre-filters what it can.
func Keyword(includePrivate bool) string {
	if includePrivate {
		return BaseKeyword
	}
	return BaseKeyword + " -private"
}

// HTTPClient interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tunes a Client. Zero values take defaults.
type Options struct {
	BaseURL  string
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// Client handles Places API operations.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPClient
	logger     *slog.Logger
	metrics    *Metrics

	attempts uint
	delay    time.Duration
	maxDelay time.Duration
}

// NewClient creates a new Places API client.
func NewClient(apiKey string, httpClient HTTPClient, logger *slog.Logger, opts Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Attempts == 0 {
		opts.Attempts = 3
	}
	if opts.Delay == 0 {
		opts.Delay = 200 * time.Millisecond
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = 2 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		attempts:   opts.Attempts,
		delay:      opts.Delay,
		maxDelay:   opts.MaxDelay,
	}
}

// SetMetrics sets the metrics collector for the client.
func (c *Client) SetMetrics(m *Metrics) {
	c.metrics = m
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type nearbyResponse struct {
	Results []struct {
		PlaceID          string   `json:"place_id"`
		Name             string   `json:"name"`
		Vicinity         string   `json:"vicinity"`
		FormattedAddress string   `json:"formatted_address"`
		Rating           *float64 `json:"rating"`
		UserRatingsTotal *int     `json:"user_ratings_total"`
		Geometry         struct {
			Location latLng `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

type detailsResponse struct {
	Result struct {
		FormattedPhoneNumber string `json:"formatted_phone_number"`
		Website              string `json:"website"`
		OpeningHours         *struct {
			WeekdayText []string `json:"weekday_text"`
		} `json:"opening_hours"`
	} `json:"result"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// NearbySearch returns the raw places around loc. ZERO_RESULTS is an empty
// slice, not an error.
func (c *Client) NearbySearch(ctx context.Context, loc practice.Location, radiusMeters int, keyword, placeType string) (raws []practice.RawPlace, err error) {
	ctx, endSpan := tracing.StartClientSpan(ctx, "places", "nearbysearch")
	defer func() { endSpan(err) }()

	q := url.Values{}
	q.Set("location", strconv.FormatFloat(loc.Lat, 'f', -1, 64)+","+strconv.FormatFloat(loc.Lng, 'f', -1, 64))
	q.Set("radius", strconv.Itoa(radiusMeters))
	q.Set("keyword", keyword)
	q.Set("type", placeType)

	var resp nearbyResponse
	if err := c.get(ctx, "nearbysearch", q, &resp, func() string { return resp.Status }); err != nil {
		return nil, err
	}

	switch resp.Status {
	case statusOK:
	case statusZeroResults:
		return []practice.RawPlace{}, nil
	default:
		return nil, statusError("nearbysearch", resp.Status, resp.ErrorMessage)
	}

	raws = make([]practice.RawPlace, 0, len(resp.Results))
	for _, r := range resp.Results {
		addr := r.Vicinity
		if addr == "" {
			addr = r.FormattedAddress
		}
		raws = append(raws, practice.RawPlace{
			ID:          r.PlaceID,
			Name:        r.Name,
			Address:     addr,
			Location:    practice.Location{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
			Rating:      r.Rating,
			ReviewCount: r.UserRatingsTotal,
		})
	}

	c.logger.DebugContext(ctx, "nearby search complete",
		"geohash", geo.Coarse(loc.Lat, loc.Lng),
		"results", len(raws),
	)
	return raws, nil
}

// Details fetches phone, website and opening hours for one place.
func (c *Client) Details(ctx context.Context, placeID string) (d *practice.Details, err error) {
	ctx, endSpan := tracing.StartClientSpan(ctx, "places", "details")
	defer func() { endSpan(err) }()

	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("fields", detailFields)

	var resp detailsResponse
	if err := c.get(ctx, "details", q, &resp, func() string { return resp.Status }); err != nil {
		return nil, err
	}
	if resp.Status != statusOK {
		return nil, statusError("details", resp.Status, resp.ErrorMessage)
	}

	d = &practice.Details{
		Phone:   resp.Result.FormattedPhoneNumber,
		Website: resp.Result.Website,
	}
	if oh := resp.Result.OpeningHours; oh != nil && len(oh.WeekdayText) > 0 {
		d.OpeningHours = &practice.OpeningHours{WeekdayText: oh.WeekdayText}
	}
	return d, nil
}

func statusError(op, status, message string) error {
	if message != "" {
		return fmt.Errorf("%s: %w: %s: %s", op, ErrUpstreamStatus, status, message)
	}
	return fmt.Errorf("%s: %w: %s", op, ErrUpstreamStatus, status)
}

// get performs GET {baseURL}/{endpoint}/json with retries on transport
// errors, HTTP 429/5xx and the UNKNOWN_ERROR status. out is decoded on every
// attempt; status reads the decoded status.
func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any, status func() string) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	q.Set("key", c.apiKey)
	reqURL := c.baseURL + "/" + endpoint + "/json?" + q.Encode()

	start := time.Now()
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer func() {
				if err := resp.Body.Close(); err != nil {
					c.logger.Debug("failed to close response body", "error", err)
				}
			}()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
			if err != nil {
				return err
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("%s: HTTP %d", endpoint, resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(fmt.Errorf("%s: %w: HTTP %d", endpoint, ErrUpstreamStatus, resp.StatusCode))
			}
			if err := json.Unmarshal(body, out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("%s: failed to parse response: %w", endpoint, err))
			}
			if s := status(); s == statusUnknownError {
				return statusError(endpoint, s, "")
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(c.maxDelay),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.DebugContext(ctx, "retrying places request", "endpoint", endpoint, "attempt", n+1, "error", err)
		}),
	)

	if c.metrics != nil {
		c.metrics.ObserveRequest(endpoint, err, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("places %s: %w", endpoint, err)
	}
	return nil
}
