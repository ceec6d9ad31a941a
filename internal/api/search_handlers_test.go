package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/gpfinder/internal/practice"
	"github.com/onnwee/gpfinder/internal/search"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, body []byte) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("failed to parse error body: %v, body: %s", err, body)
	}
	return resp
}

// fakeSearcher records queries and answers with fn.
type fakeSearcher struct {
	mu      sync.Mutex
	queries []search.Query
	fn      func(ctx context.Context, q search.Query) (*search.Result, error)
}

func (f *fakeSearcher) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.fn(ctx, q)
}

func (f *fakeSearcher) Queries() []search.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]search.Query(nil), f.queries...)
}

// monday is a fixed Monday used for hours_today.
var monday = time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)

func rankedResult(q search.Query) *search.Result {
	return &search.Result{
		PassID: "pass-1",
		Query:  q,
		Candidates: []practice.Candidate{
			{
				ID: "a", Name: "Riverside Surgery", Rating: 4.8, ReviewCount: 240,
				Location: practice.Location{Lat: 51.5, Lng: -0.12}, DistanceMeters: 420,
				Details: practice.Details{
					Phone:   "020 7946 0000",
					Website: "https://riverside.nhs.uk",
					OpeningHours: &practice.OpeningHours{WeekdayText: []string{
						"Monday: 8:00 AM – 6:30 PM",
						"Tuesday: 8:00 AM – 6:30 PM",
					}},
				},
				Private: practice.PrivateNo, ConfidenceScore: 4.85, Tier: practice.TierTop1,
			},
			{
				ID: "b", Name: "Hill Medical Centre", Rating: 4.5, ReviewCount: 80,
				Private: practice.PrivateNo, ConfidenceScore: 4.1, Tier: practice.TierTop2,
			},
		},
		SelectedID:  "a",
		CompletedAt: monday,
	}
}

func newTestSearchHandlers(fn func(ctx context.Context, q search.Query) (*search.Result, error)) (*SearchHandlers, *fakeSearcher) {
	fs := &fakeSearcher{fn: fn}
	h := NewSearchHandlers(fs, discardLogger())
	h.now = func() time.Time { return monday }
	return h, fs
}

func TestSearch_Success(t *testing.T) {
	h, fs := newTestSearchHandlers(func(_ context.Context, q search.Query) (*search.Result, error) {
		return rankedResult(q), nil
	})

	w := httptest.NewRecorder()
	h.Search(w, httptest.NewRequest(http.MethodGet, "/search?lat=51.5&lng=-0.12&include_private=true", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	queries := fs.Queries()
	if len(queries) != 1 {
		t.Fatalf("expected 1 search, got %d", len(queries))
	}
	want := search.Query{Location: practice.Location{Lat: 51.5, Lng: -0.12}, IncludePrivate: true}
	if queries[0] != want {
		t.Errorf("expected query %+v, got %+v", want, queries[0])
	}

	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Practices) != 2 {
		t.Fatalf("expected 2 practices, got count=%d len=%d", resp.Count, len(resp.Practices))
	}
	if resp.SelectedID != "a" || resp.PassID != "pass-1" {
		t.Errorf("unexpected selected_id=%q pass_id=%q", resp.SelectedID, resp.PassID)
	}

	top := resp.Practices[0]
	if top.ConfidenceLabel != "Exceptional" {
		t.Errorf("expected Exceptional label, got %q", top.ConfidenceLabel)
	}
	if top.RankTier != "top1" || top.TierLabel != "Top Rated GP" {
		t.Errorf("unexpected tier %q %q", top.RankTier, top.TierLabel)
	}
	if top.HoursToday != "8:00 AM – 6:30 PM" {
		t.Errorf("unexpected hours_today %q", top.HoursToday)
	}
	if top.MapsURL != "https://www.google.com/maps/place/?q=place_id:a" {
		t.Errorf("unexpected maps_url %q", top.MapsURL)
	}
	if resp.Practices[1].HoursToday != practice.HoursNotAvailable {
		t.Errorf("expected missing hours placeholder, got %q", resp.Practices[1].HoursToday)
	}
}

func TestSearch_RankTierWireFormat(t *testing.T) {
	h, _ := newTestSearchHandlers(func(_ context.Context, q search.Query) (*search.Result, error) {
		return rankedResult(q), nil
	})

	w := httptest.NewRecorder()
	h.Search(w, httptest.NewRequest(http.MethodGet, "/search?lat=51.5&lng=-0.12", nil))

	var raw struct {
		Practices []map[string]any `json:"practices"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got := raw.Practices[0]["rank_tier"]; got != "top1" {
		t.Errorf("expected rank_tier top1, got %v", got)
	}
	if got := raw.Practices[0]["is_private"]; got != false {
		t.Errorf("expected is_private false, got %v", got)
	}
}

func TestSearch_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing lat", "?lng=-0.12"},
		{"missing lng", "?lat=51.5"},
		{"lat not a number", "?lat=north&lng=-0.12"},
		{"lat out of range", "?lat=91&lng=-0.12"},
		{"lng out of range", "?lat=51.5&lng=-181"},
		{"lat NaN", "?lat=NaN&lng=0"},
		{"bad include_private", "?lat=51.5&lng=-0.12&include_private=maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fs := newTestSearchHandlers(func(_ context.Context, q search.Query) (*search.Result, error) {
				return rankedResult(q), nil
			})

			w := httptest.NewRecorder()
			h.Search(w, httptest.NewRequest(http.MethodGet, "/search"+tt.query, nil))

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", w.Code)
			}
			if resp := decodeError(t, w.Body.Bytes()); resp.Error.Code != ErrCodeValidation {
				t.Errorf("expected %s, got %s", ErrCodeValidation, resp.Error.Code)
			}
			if n := len(fs.Queries()); n != 0 {
				t.Errorf("expected no search, got %d", n)
			}
		})
	}
}

func TestSearch_ZeroCoordinatesAreValid(t *testing.T) {
	h, _ := newTestSearchHandlers(func(_ context.Context, q search.Query) (*search.Result, error) {
		return rankedResult(q), nil
	})

	w := httptest.NewRecorder()
	h.Search(w, httptest.NewRequest(http.MethodGet, "/search?lat=0&lng=0", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSearch_PassErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"no candidates", search.ErrNoCandidatesFound, http.StatusNotFound, ErrCodeNoCandidates},
		{"empty after filter", search.ErrEmptyAfterFilter, http.StatusNotFound, ErrCodeEmptyAfterFilter},
		{"upstream", &search.UpstreamError{Op: "nearbysearch", Err: context.DeadlineExceeded}, http.StatusBadGateway, ErrCodeUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestSearchHandlers(func(context.Context, search.Query) (*search.Result, error) {
				return nil, tt.err
			})

			w := httptest.NewRecorder()
			h.Search(w, httptest.NewRequest(http.MethodGet, "/search?lat=51.5&lng=-0.12", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if resp := decodeError(t, w.Body.Bytes()); resp.Error.Code != tt.wantCode {
				t.Errorf("expected %s, got %s", tt.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestSearch_ClientGoneWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h, _ := newTestSearchHandlers(func(ctx context.Context, q search.Query) (*search.Result, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	w := httptest.NewRecorder()
	h.Search(w, httptest.NewRequest(http.MethodGet, "/search?lat=51.5&lng=-0.12", nil).WithContext(ctx))

	if w.Body.Len() != 0 {
		t.Errorf("expected empty body, got %s", w.Body.String())
	}
}

func TestScore(t *testing.T) {
	h, _ := newTestSearchHandlers(nil)

	w := httptest.NewRecorder()
	h.Score(w, httptest.NewRequest(http.MethodGet, "/score?rating=4.8&reviews=240", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ScoreResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ConfidenceScore <= 4 || resp.ConfidenceScore > 5 {
		t.Errorf("unexpected score %v", resp.ConfidenceScore)
	}
	if resp.Rating != 4.8 || resp.Reviews != 240 {
		t.Errorf("inputs not echoed: %+v", resp)
	}
}

func TestScore_ZeroReviews(t *testing.T) {
	h, _ := newTestSearchHandlers(nil)

	w := httptest.NewRecorder()
	h.Score(w, httptest.NewRequest(http.MethodGet, "/score?rating=5&reviews=0", nil))

	var resp ScoreResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ConfidenceScore != 0 || resp.ConfidenceLabel != "Insufficient Data" {
		t.Errorf("expected zero score with Insufficient Data, got %+v", resp)
	}
}

func TestScore_ValidationErrors(t *testing.T) {
	for _, q := range []string{
		"",
		"?rating=4.5",
		"?reviews=10",
		"?rating=5.5&reviews=10",
		"?rating=-1&reviews=10",
		"?rating=4&reviews=-3",
		"?rating=4&reviews=many",
	} {
		t.Run(q, func(t *testing.T) {
			h, _ := newTestSearchHandlers(nil)
			w := httptest.NewRecorder()
			h.Score(w, httptest.NewRequest(http.MethodGet, "/score"+q, nil))
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", w.Code)
			}
		})
	}
}
