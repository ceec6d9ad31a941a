package search

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/gpfinder/internal/tracing"
)

// Outcome is what a Session publishes when a pass finishes while still
// current: either a Result or the pass-level error.
type Outcome struct {
	Generation uint64
	Query      Query
	Result     *Result
	Err        error
}

// Publisher receives the outcomes of current passes.
type Publisher interface {
	Publish(ctx context.Context, o Outcome)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, o Outcome)

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, o Outcome) {
	f(ctx, o)
}

// Searcher runs a single pass. *Orchestrator implements it.
type Searcher interface {
	Search(ctx context.Context, q Query) (*Result, error)
}

// Session serializes the passes of one client. Each Run takes a new
// generation and cancels the pass it supersedes; only an outcome whose
// generation is still current when it finishes is published.
type Session struct {
	searcher  Searcher
	publisher Publisher
	logger    *slog.Logger
	metrics   *Metrics

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	last       *Query
}

// NewSession creates a Session. publisher may be nil when only Run's return
// values are used.
func NewSession(searcher Searcher, publisher Publisher, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{searcher: searcher, publisher: publisher, logger: logger}
}

// SetMetrics sets the metrics collector for the session.
func (s *Session) SetMetrics(m *Metrics) {
	s.metrics = m
}

// Begin starts a new generation, cancelling the context of the previous
// pass. The returned context is cancelled when the pass is superseded or the
// session is closed.
func (s *Session) Begin(ctx context.Context, q Query) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	passCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.last = &q
	return passCtx, s.generation
}

// Current returns the latest generation.
func (s *Session) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// LastQuery returns the query of the latest pass, if any.
func (s *Session) LastQuery() (Query, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Query{}, false
	}
	return *s.last, true
}

// Run executes a pass for q under a new generation. It returns ErrStalePass,
// and publishes nothing, when another Run began before this one finished.
func (s *Session) Run(ctx context.Context, q Query) (*Result, error) {
	passCtx, gen := s.Begin(ctx, q)
	res, err := s.searcher.Search(passCtx, q)
	return s.Commit(ctx, gen, q, res, err)
}

// Commit publishes the outcome of generation gen if it is still current.
func (s *Session) Commit(ctx context.Context, gen uint64, q Query, res *Result, err error) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.logger.DebugContext(ctx, "discarding stale search pass",
			slog.Uint64("generation", gen),
			slog.Uint64("current_generation", s.generation),
		)
		tracing.AddEvent(ctx, "search_pass_discarded",
			attribute.Int64("search.generation", int64(gen)),
			attribute.Int64("search.current_generation", int64(s.generation)),
		)
		if s.metrics != nil {
			s.metrics.IncStalePass()
		}
		return nil, ErrStalePass
	}

	if res != nil {
		res.Generation = gen
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, Outcome{Generation: gen, Query: q, Result: res, Err: err})
	}
	return res, err
}

// Close cancels any in-flight pass. Later outcomes of that pass are stale.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
}
