// Package search runs one search pass end to end: directory lookup, boundary
// normalization, detail enrichment and ranking. Session adds generation
// tokens so a superseded pass never publishes.
package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/gpfinder/internal/geo"
	"github.com/onnwee/gpfinder/internal/places"
	"github.com/onnwee/gpfinder/internal/practice"
	"github.com/onnwee/gpfinder/internal/tracing"
)

// DetailsConcurrency bounds concurrent detail enrichment calls per pass.
const DetailsConcurrency = 3

// Directory finds raw places around a location.
type Directory interface {
	NearbySearch(ctx context.Context, loc practice.Location, radiusMeters int, keyword, placeType string) ([]practice.RawPlace, error)
}

// DetailsFetcher enriches a single place.
type DetailsFetcher interface {
	Details(ctx context.Context, placeID string) (*practice.Details, error)
}

// Ranker orders candidates. *ranking.Ranker implements it.
type Ranker interface {
	Rank(ctx context.Context, candidates []practice.Candidate, includePrivate bool) ([]practice.Candidate, error)
}

// Query is the input of one pass.
type Query struct {
	Location       practice.Location `json:"location"`
	IncludePrivate bool              `json:"include_private"`
}

// Result is a completed pass.
type Result struct {
	PassID      string               `json:"pass_id"`
	Generation  uint64               `json:"generation,omitempty"`
	Query       Query                `json:"query"`
	Candidates  []practice.Candidate `json:"candidates"`
	SelectedID  string               `json:"selected_id,omitempty"`
	CompletedAt time.Time            `json:"completed_at"`
}

// Orchestrator runs search passes. It holds no per-pass state and is safe
// for concurrent use.
type Orchestrator struct {
	directory Directory
	details   DetailsFetcher
	ranker    Ranker
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

// NewOrchestrator creates an Orchestrator. details may be nil to skip enrichment.
func NewOrchestrator(directory Directory, details DetailsFetcher, ranker Ranker, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		directory: directory,
		details:   details,
		ranker:    ranker,
		logger:    logger,
		now:       time.Now,
	}
}

// SetMetrics sets the metrics collector for the orchestrator.
func (o *Orchestrator) SetMetrics(m *Metrics) {
	o.metrics = m
}

// Search runs one pass for q.
func (o *Orchestrator) Search(ctx context.Context, q Query) (res *Result, err error) {
	passID := uuid.NewString()
	start := o.now()
	cell := geo.Coarse(q.Location.Lat, q.Location.Lng)

	ctx, endSpan := tracing.StartSpan(ctx, "search_pass")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx,
		attribute.String("search.pass_id", passID),
		attribute.String("search.geohash", cell),
		attribute.Bool("search.include_private", q.IncludePrivate),
	)

	logger := o.logger.With(
		slog.String("pass_id", passID),
		slog.String("geohash", cell),
		slog.Bool("include_private", q.IncludePrivate),
	)
	if traceID := tracing.TraceID(ctx); traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}

	defer func() {
		if o.metrics != nil {
			o.metrics.ObservePass(outcome(err), time.Since(start).Seconds())
		}
	}()

	raws, err := o.directory.NearbySearch(ctx, q.Location, places.SearchRadiusMeters, places.Keyword(q.IncludePrivate), places.PlaceType)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.ErrorContext(ctx, "places search failed", slog.String("error", err.Error()))
		return nil, &UpstreamError{Op: "nearbysearch", Err: err}
	}

	candidates := make([]practice.Candidate, 0, len(raws))
	for _, raw := range raws {
		c, nerr := practice.FromRawPlace(raw)
		if nerr != nil {
			logger.WarnContext(ctx, "dropping invalid place", slog.String("error", nerr.Error()))
			continue
		}
		c.DistanceMeters = geo.DistanceMeters(q.Location.Lat, q.Location.Lng, c.Location.Lat, c.Location.Lng)
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		logger.InfoContext(ctx, "no candidates found", slog.Int("raw_places", len(raws)))
		return nil, ErrNoCandidatesFound
	}

	if err := o.enrich(ctx, logger, candidates); err != nil {
		return nil, err
	}

	ranked, err := o.ranker.Rank(ctx, candidates, q.IncludePrivate)
	if err != nil {
		if errors.Is(err, ErrEmptyAfterFilter) {
			logger.InfoContext(ctx, "all candidates were private", slog.Int("candidates", len(candidates)))
		}
		return nil, err
	}

	res = &Result{
		PassID:      passID,
		Query:       q,
		Candidates:  ranked,
		CompletedAt: o.now(),
	}
	if len(ranked) > 0 {
		res.SelectedID = ranked[0].ID
	}

	if o.metrics != nil {
		o.metrics.ObserveCandidates(len(ranked))
	}
	logger.InfoContext(ctx, "search pass complete",
		slog.Int("raw_places", len(raws)),
		slog.Int("ranked", len(ranked)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return res, nil
}

// enrich fills in Details for each candidate, DetailsConcurrency at a time.
// A failed lookup leaves that candidate's details empty.
func (o *Orchestrator) enrich(ctx context.Context, logger *slog.Logger, candidates []practice.Candidate) error {
	if o.details == nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DetailsConcurrency)
	for i := range candidates {
		g.Go(func() error {
			d, err := o.details.Details(gctx, candidates[i].ID)
			if err != nil {
				logger.DebugContext(gctx, "place details unavailable",
					slog.String("candidate_id", candidates[i].ID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if d != nil {
				candidates[i].Details = *d
			}
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func outcome(err error) string {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyAfterFilter):
		return "empty_after_filter"
	case errors.Is(err, ErrNoCandidatesFound):
		return "no_candidates"
	case errors.As(err, &upstream):
		return "upstream_failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
