package ranking

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned by ValidateInput for ratings outside [0, 5]
// or negative review counts.
var ErrInvalidInput = errors.New("invalid score input")

// Score constants. These are part of the ranking contract, not tunables.
const (
	// MaxScore is the upper clamp of the confidence score.
	MaxScore = 5.0

	// z is the two-sided 95% confidence z-score.
	z = 1.96

	// volumeBonusFactor scales log10(reviewCount+1).
	volumeBonusFactor = 0.4

	excellentRating      = 4.5
	excellentRatingBonus = 0.3
	goodRating           = 4.0
	goodRatingBonus      = 0.15

	// minimumReviews is the sample size below which each missing review costs penaltyPerMissingReview.
	minimumReviews          = 5
	penaltyPerMissingReview = 0.5
)

// ValidateInput reports whether rating and reviewCount are inside the
// domain Score is defined over.
func ValidateInput(rating float64, reviewCount int) error {
	if math.IsNaN(rating) || rating < 0 || rating > 5 {
		return fmt.Errorf("%w: rating %v outside [0, 5]", ErrInvalidInput, rating)
	}
	if reviewCount < 0 {
		return fmt.Errorf("%w: review count %d is negative", ErrInvalidInput, reviewCount)
	}
	return nil
}

// Score returns the confidence score for a practice with the given average
// rating (0-5) and number of reviews. The result is always in [0, MaxScore],
// and is exactly 0 when reviewCount is 0.
//
// Callers must pass values accepted by ValidateInput.
func Score(rating float64, reviewCount int) float64 {
	if reviewCount <= 0 {
		return 0
	}

	n := float64(reviewCount)
	p := rating / 5
	z2 := z * z

	numerator := p + z2/(2*n)
	denominator := 1 + z2/n
	radicand := p*(1-p)/n + z2/(4*n*n)
	wilson := (numerator - z*math.Sqrt(radicand)) / denominator * 5

	volumeBonus := math.Log10(n+1) * volumeBonusFactor

	ratingBonus := 0.0
	switch {
	case rating >= excellentRating:
		ratingBonus = excellentRatingBonus
	case rating >= goodRating:
		ratingBonus = goodRatingBonus
	}

	penalty := 0.0
	if reviewCount < minimumReviews {
		penalty = float64(minimumReviews-reviewCount) * penaltyPerMissingReview
	}

	return clamp(wilson+volumeBonus+ratingBonus-penalty, 0, MaxScore)
}

// MustScore is Score with the input contract enforced. It panics on values
// rejected by ValidateInput.
func MustScore(rating float64, reviewCount int) float64 {
	if err := ValidateInput(rating, reviewCount); err != nil {
		panic(err)
	}
	return Score(rating, reviewCount)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Confidence labels, highest first.
const (
	LabelExceptional      = "Exceptional"
	LabelVeryHigh         = "Very High"
	LabelHigh             = "High"
	LabelGood             = "Good"
	LabelAverage          = "Average"
	LabelFair             = "Fair"
	LabelLow              = "Low"
	LabelInsufficientData = "Insufficient Data"
)

// labelThresholds maps the minimum score for each label, ordered highest first.
var labelThresholds = []struct {
	min   float64
	label string
}{
	{4.7, LabelExceptional},
	{4.2, LabelVeryHigh},
	{3.7, LabelHigh},
	{3.2, LabelGood},
	{2.7, LabelAverage},
	{2.2, LabelFair},
	{1.5, LabelLow},
}

// ConfidenceLabel buckets a score into a human-readable tier.
func ConfidenceLabel(score float64) string {
	return Labels()[LabelIndex(score)]
}

// LabelIndex returns the position of the score's label in Labels().
// Lower indexes are better.
func LabelIndex(score float64) int {
	for i, t := range labelThresholds {
		if score >= t.min {
			return i
		}
	}
	return len(labelThresholds)
}

// Labels returns every confidence label, highest first.
func Labels() []string {
	labels := make([]string, 0, len(labelThresholds)+1)
	for _, t := range labelThresholds {
		labels = append(labels, t.label)
	}
	return append(labels, LabelInsufficientData)
}
