// Package classify decides whether a candidate practice is private.
//
// Classification runs in two stages. A cheap name heuristic marks any
// candidate whose name contains "private" and skips the second stage. The
// second stage asks a WebsiteClassifier about the candidate's website. That
// stage is best effort: any failure leaves the candidate not private.
package classify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/gpfinder/internal/practice"
)

// BatchSize bounds the number of concurrent website classification calls.
const BatchSize = 3

// privateMarker is the name substring that marks a practice as private.
const privateMarker = "private"

// NameLooksPrivate reports whether name contains "private", ignoring case.
func NameLooksPrivate(name string) bool {
	return strings.Contains(strings.ToLower(name), privateMarker)
}

// Apply returns c with its private status resolved from the name heuristic
// and an optional website verdict. A nil verdict means no verdict was
// available and the candidate fails open to not private.
//
// With includePrivate set nothing is excluded, so every candidate resolves to
// not private and the name heuristic only sets PrivateBadge.
func Apply(c practice.Candidate, includePrivate bool, verdict *Verdict) practice.Candidate {
	if includePrivate {
		c.PrivateBadge = NameLooksPrivate(c.Name)
		c.ResolvePrivate(false)
		return c
	}

	if NameLooksPrivate(c.Name) {
		if c.ResolvePrivate(true) {
			c.PrivateSignals = []string{privateMarker}
		}
		c.PrivateBadge = true
		return c
	}

	if verdict == nil {
		c.ResolvePrivate(false)
		return c
	}

	if c.ResolvePrivate(verdict.IsPrivate) {
		c.PrivateSignals = verdict.PrivateKeywords
		c.NHSSignals = verdict.NHSKeywords
		c.PrivateConfidence = verdict.Confidence
	}
	c.PrivateBadge = c.Private == practice.PrivateYes
	return c
}

// needsWebsiteCheck reports whether the second stage applies to c.
func needsWebsiteCheck(c practice.Candidate, includePrivate bool) bool {
	return !includePrivate &&
		c.Private == practice.PrivateUnknown &&
		c.Website != "" &&
		!NameLooksPrivate(c.Name)
}

// Classifier runs both classification stages. The zero WebsiteClassifier
// (nil) limits it to the name heuristic.
type Classifier struct {
	website WebsiteClassifier
	logger  *slog.Logger
	metrics *Metrics
}

// New creates a Classifier. website may be nil.
func New(website WebsiteClassifier, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{website: website, logger: logger}
}

// SetMetrics sets the metrics collector for the classifier.
func (c *Classifier) SetMetrics(m *Metrics) {
	c.metrics = m
}

// Classify resolves a single candidate, calling the website classifier when
// the second stage applies.
func (c *Classifier) Classify(ctx context.Context, cand practice.Candidate, includePrivate bool) practice.Candidate {
	if c.website == nil || !needsWebsiteCheck(cand, includePrivate) {
		out := Apply(cand, includePrivate, nil)
		c.observe(out, "name")
		return out
	}
	out := Apply(cand, includePrivate, c.check(ctx, cand))
	c.observe(out, "website")
	return out
}

// ClassifyBatch resolves every candidate in place.
//
// Candidates that need a website check are processed BatchSize at a time:
// calls within a batch run concurrently and batches run strictly in order.
// Verdicts are merged back by candidate ID so completion order never affects
// the result. The only error returned is ctx's.
func (c *Classifier) ClassifyBatch(ctx context.Context, cands []practice.Candidate, includePrivate bool) error {
	pending := make([]int, 0, len(cands))
	for i := range cands {
		if c.website != nil && needsWebsiteCheck(cands[i], includePrivate) {
			pending = append(pending, i)
			continue
		}
		cands[i] = Apply(cands[i], includePrivate, nil)
		c.observe(cands[i], "name")
	}

	if len(pending) == 0 {
		return nil
	}

	verdicts := make(map[string]*Verdict, len(pending))
	var mu sync.Mutex

	for start := 0; start < len(pending); start += BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+BatchSize, len(pending))
		g, gctx := errgroup.WithContext(ctx)
		for _, idx := range pending[start:end] {
			cand := cands[idx]
			g.Go(func() error {
				v := c.check(gctx, cand)
				mu.Lock()
				verdicts[cand.ID] = v
				mu.Unlock()
				return nil
			})
		}
		// Workers never return errors; Wait only joins the batch.
		_ = g.Wait()
	}

	for _, idx := range pending {
		cands[idx] = Apply(cands[idx], includePrivate, verdicts[cands[idx].ID])
		c.observe(cands[idx], "website")
	}
	return ctx.Err()
}

// check calls the website classifier and converts any failure into a nil
// verdict.
func (c *Classifier) check(ctx context.Context, cand practice.Candidate) *Verdict {
	start := time.Now()
	v, err := c.website.ClassifyWebsite(ctx, cand.Website)
	if c.metrics != nil {
		c.metrics.ObserveCallDuration(time.Since(start).Seconds())
	}
	if err != nil {
		c.logger.WarnContext(ctx, "website classification unavailable",
			slog.String("candidate_id", cand.ID),
			slog.String("error", err.Error()),
		)
		if c.metrics != nil {
			c.metrics.IncUnavailable()
		}
		return nil
	}
	return v
}

func (c *Classifier) observe(cand practice.Candidate, stage string) {
	if c.metrics == nil {
		return
	}
	c.metrics.IncDecision(stage, cand.Private)
}
