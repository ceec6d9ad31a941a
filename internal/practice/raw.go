package practice

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultName is used when the directory returns a place without a name.
const DefaultName = "Unnamed Location"

// Boundary validation errors.
var (
	ErrMissingID          = errors.New("place has no id")
	ErrRatingOutOfRange   = errors.New("rating must be between 0 and 5")
	ErrNegativeReviews    = errors.New("review count must not be negative")
	ErrLocationOutOfRange = errors.New("location out of range")
)

// RawPlace is a places directory result before normalization.
// Optional numeric fields are pointers so that "absent" is distinguishable from zero.
type RawPlace struct {
	ID          string
	Name        string
	Address     string
	Location    Location
	Rating      *float64
	ReviewCount *int
}

// FromRawPlace validates a raw directory result and returns a fresh Candidate.
// Missing rating and review count normalize to 0 so the ranking engine never
// sees absent values.
func FromRawPlace(raw RawPlace) (Candidate, error) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return Candidate{}, ErrMissingID
	}

	rating := 0.0
	if raw.Rating != nil {
		rating = *raw.Rating
	}
	if math.IsNaN(rating) || rating < 0 || rating > 5 {
		return Candidate{}, fmt.Errorf("place %s: %w (got %v)", id, ErrRatingOutOfRange, rating)
	}

	count := 0
	if raw.ReviewCount != nil {
		count = *raw.ReviewCount
	}
	if count < 0 {
		return Candidate{}, fmt.Errorf("place %s: %w (got %d)", id, ErrNegativeReviews, count)
	}

	if err := raw.Location.Validate(); err != nil {
		return Candidate{}, fmt.Errorf("place %s: %w", id, ErrLocationOutOfRange)
	}

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = DefaultName
	}

	return Candidate{
		ID:          id,
		Name:        name,
		Address:     raw.Address,
		Rating:      rating,
		ReviewCount: count,
		Location:    raw.Location,
	}, nil
}
