// Package ranking converts raw (rating, review count) pairs into bounded
// confidence scores and orders a batch of candidates by them.
//
// Basic Usage:
//
//	score := ranking.Score(4.6, 50)          // 5.0 after clamping
//	label := ranking.ConfidenceLabel(score)  // "Exceptional"
//
//	ranker := ranking.NewRanker(classifier, logger)
//	ranked, err := ranker.Rank(ctx, candidates, includePrivate)
//	if errors.Is(err, ranking.ErrEmptyAfterFilter) {
//		// every candidate was a private practice
//	}
//
// Score:
//
// The score is the lower bound of the 95% Wilson interval on rating/5, scaled
// back to five stars, plus a logarithmic review-volume bonus and a high-rating
// bonus, minus a penalty for fewer than five reviews, clamped to [0, 5].
// The constants are fixed; ranking tests pin them.
//
// Tiers:
//
// Tiers are assigned only after filtering and sorting. The first three
// survivors get top1, top2 and top3; everything else is none.
package ranking
