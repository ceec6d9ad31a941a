package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/onnwee/gpfinder/internal/practice"
	"github.com/onnwee/gpfinder/internal/ranking"
	"github.com/onnwee/gpfinder/internal/search"
)

// DefaultSearchTimeout bounds a single REST search pass.
const DefaultSearchTimeout = 30 * time.Second

// searchRequest is the validated input of a search, from query parameters
// or a stream message.
type searchRequest struct {
	Lat            *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng            *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
	IncludePrivate bool     `json:"include_private"`
}

func (r searchRequest) query() search.Query {
	return search.Query{
		Location:       practice.Location{Lat: *r.Lat, Lng: *r.Lng},
		IncludePrivate: r.IncludePrivate,
	}
}

// scoreRequest is the validated input of GET /score.
type scoreRequest struct {
	Rating  *float64 `json:"rating" validate:"required,gte=0,lte=5"`
	Reviews *int     `json:"reviews" validate:"required,gte=0"`
}

// ScoreResponse is the body of GET /score.
type ScoreResponse struct {
	Rating          float64 `json:"rating"`
	Reviews         int     `json:"reviews"`
	ConfidenceScore float64 `json:"confidence_score"`
	ConfidenceLabel string  `json:"confidence_label"`
}

// newValidator returns a validator that reports fields by their json name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// SearchHandlers holds dependencies for the search and score endpoints.
type SearchHandlers struct {
	searcher  search.Searcher
	validator *validator.Validate
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// NewSearchHandlers creates a new SearchHandlers instance.
func NewSearchHandlers(searcher search.Searcher, logger *slog.Logger) *SearchHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchHandlers{
		searcher:  searcher,
		validator: newValidator(),
		logger:    logger,
		timeout:   DefaultSearchTimeout,
		now:       time.Now,
	}
}

// Search handles GET /search?lat=..&lng=..&include_private=..
func (h *SearchHandlers) Search(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r.URL.Query())
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, validationMessage(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.searcher.Search(ctx, req.query())
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			h.logger.DebugContext(r.Context(), "client went away during search")
			return
		}
		WriteSearchError(w, r.Context(), err)
		return
	}

	writeJSON(w, r, http.StatusOK, NewSearchResponse(res, h.now()))
}

// Score handles GET /score?rating=..&reviews=.. and returns the confidence
// score the ranking engine would assign.
func (h *SearchHandlers) Score(w http.ResponseWriter, r *http.Request) {
	req, err := parseScoreRequest(r.URL.Query())
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, validationMessage(err))
		return
	}
	if err := ranking.ValidateInput(*req.Rating, *req.Reviews); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	score := ranking.Score(*req.Rating, *req.Reviews)
	writeJSON(w, r, http.StatusOK, ScoreResponse{
		Rating:          *req.Rating,
		Reviews:         *req.Reviews,
		ConfidenceScore: score,
		ConfidenceLabel: ranking.ConfidenceLabel(score),
	})
}

func parseSearchRequest(q url.Values) (searchRequest, error) {
	var req searchRequest
	var err error
	if req.Lat, err = optionalFloat(q, "lat"); err != nil {
		return req, err
	}
	if req.Lng, err = optionalFloat(q, "lng"); err != nil {
		return req, err
	}
	if raw := strings.TrimSpace(q.Get("include_private")); raw != "" {
		if req.IncludePrivate, err = strconv.ParseBool(raw); err != nil {
			return req, fmt.Errorf("include_private must be true or false")
		}
	}
	return req, nil
}

func parseScoreRequest(q url.Values) (scoreRequest, error) {
	var req scoreRequest
	var err error
	if req.Rating, err = optionalFloat(q, "rating"); err != nil {
		return req, err
	}
	if raw := strings.TrimSpace(q.Get("reviews")); raw != "" {
		n, perr := strconv.Atoi(raw)
		if perr != nil {
			return req, fmt.Errorf("reviews must be an integer")
		}
		req.Reviews = &n
	}
	return req, nil
}

// optionalFloat parses q[name], returning nil when it is absent.
func optionalFloat(q url.Values, name string) (*float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", name)
	}
	return &v, nil
}
