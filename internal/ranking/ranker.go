package ranking

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/gpfinder/internal/practice"
	"github.com/onnwee/gpfinder/internal/tracing"
)

// ErrEmptyAfterFilter is returned by Rank when private filtering removed every
// candidate from a non-empty input.
var ErrEmptyAfterFilter = errors.New("no candidates left after excluding private practices")

// Classifier resolves the private status of a batch of candidates in place.
// Implementations must fail open: a remote failure leaves the candidate
// classified as not private and is never returned as an error. A non-nil
// error means ctx was cancelled.
type Classifier interface {
	ClassifyBatch(ctx context.Context, candidates []practice.Candidate, includePrivate bool) error
}

// Ranker scores, classifies, filters, sorts and tiers a batch of candidates.
type Ranker struct {
	classifier Classifier
	logger     *slog.Logger
}

// NewRanker creates a Ranker. classifier must be non-nil; pass a classifier
// without a website collaborator to rank on the name heuristic alone.
func NewRanker(classifier Classifier, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{classifier: classifier, logger: logger}
}

// Rank returns a new slice ordered by confidence score, highest first.
// The input slice is not modified.
//
// Candidates whose rating or review count fall outside the score domain are
// dropped with a warning rather than failing the batch. An empty input yields
// an empty result and no error. ErrEmptyAfterFilter is returned when
// includePrivate is false and every scored candidate was private.
func (r *Ranker) Rank(ctx context.Context, candidates []practice.Candidate, includePrivate bool) (ranked []practice.Candidate, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "rank_candidates")
	defer func() { endSpan(err) }()

	tracing.SetAttributes(ctx,
		attribute.Int("ranking.input_count", len(candidates)),
		attribute.Bool("ranking.include_private", includePrivate),
	)

	if len(candidates) == 0 {
		return []practice.Candidate{}, nil
	}

	scored := make([]practice.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if verr := ValidateInput(c.Rating, c.ReviewCount); verr != nil {
			r.logger.WarnContext(ctx, "dropping candidate with invalid score input",
				slog.String("candidate_id", c.ID),
				slog.String("error", verr.Error()),
			)
			continue
		}
		c.ConfidenceScore = Score(c.Rating, c.ReviewCount)
		c.Tier = practice.TierNone
		scored = append(scored, c)
	}

	if len(scored) == 0 {
		return []practice.Candidate{}, nil
	}

	if cerr := r.classifier.ClassifyBatch(ctx, scored, includePrivate); cerr != nil {
		return nil, cerr
	}

	survivors := scored
	if !includePrivate {
		survivors = make([]practice.Candidate, 0, len(scored))
		for _, c := range scored {
			if c.Private == practice.PrivateYes {
				continue
			}
			survivors = append(survivors, c)
		}
		if len(survivors) == 0 {
			r.logger.InfoContext(ctx, "all candidates filtered as private", slog.Int("count", len(scored)))
			return nil, ErrEmptyAfterFilter
		}
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].ConfidenceScore > survivors[j].ConfidenceScore
	})
	AssignTiers(survivors)

	tracing.SetAttributes(ctx, attribute.Int("ranking.output_count", len(survivors)))
	return survivors, nil
}

// AssignTiers sets top1, top2 and top3 on the first three entries of an
// already sorted slice and none on the rest.
func AssignTiers(sorted []practice.Candidate) {
	for i := range sorted {
		switch i {
		case 0:
			sorted[i].Tier = practice.TierTop1
		case 1:
			sorted[i].Tier = practice.TierTop2
		case 2:
			sorted[i].Tier = practice.TierTop3
		default:
			sorted[i].Tier = practice.TierNone
		}
	}
}
