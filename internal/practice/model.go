// Package practice defines the candidate records that flow through a search pass:
// the raw places directory payload, the normalized candidate, and the derived
// classification and rank fields.
package practice

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Location is a latitude/longitude pair in degrees.
type Location struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Validate reports coordinates outside the valid degree ranges, NaN included.
func (l Location) Validate() error {
	return validate.Struct(l)
}

// PrivateStatus is the tri-state outcome of private-practice classification.
type PrivateStatus int

const (
	// PrivateUnknown means the candidate has not been evaluated yet.
	PrivateUnknown PrivateStatus = iota
	// PrivateYes means the candidate was classified as a private practice.
	PrivateYes
	// PrivateNo means the candidate was classified as not private (or fail-open).
	PrivateNo
)

// String returns the JSON-friendly name of the status.
func (s PrivateStatus) String() string {
	switch s {
	case PrivateYes:
		return "true"
	case PrivateNo:
		return "false"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as "unknown", "true" or "false".
func (s PrivateStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RankTier is the ordinal badge assigned after filtering and sorting.
type RankTier int

const (
	TierNone RankTier = iota
	TierTop1
	TierTop2
	TierTop3
)

// String returns the wire name of the tier.
func (t RankTier) String() string {
	switch t {
	case TierTop1:
		return "top1"
	case TierTop2:
		return "top2"
	case TierTop3:
		return "top3"
	default:
		return "none"
	}
}

// Label returns the human-readable badge text for the tier, or "" for TierNone.
func (t RankTier) Label() string {
	switch t {
	case TierTop1:
		return "Top Rated GP"
	case TierTop2:
		return "2nd Highest Rated"
	case TierTop3:
		return "3rd Highest Rated"
	default:
		return ""
	}
}

// MarshalText encodes the tier as its wire name.
func (t RankTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// OpeningHours holds the directory's weekday text, one entry per day,
// e.g. "Monday: 8:00 AM – 6:30 PM".
type OpeningHours struct {
	WeekdayText []string `json:"weekday_text,omitempty"`
}

// HoursNotAvailable is returned by Today when no entry matches.
const HoursNotAvailable = "Hours not available"

// Today returns the hours listed for the weekday of now.
func (h *OpeningHours) Today(now time.Time) string {
	if h == nil || len(h.WeekdayText) == 0 {
		return HoursNotAvailable
	}
	prefix := now.Weekday().String() + ":"
	for _, line := range h.WeekdayText {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return HoursNotAvailable
}

// Details is the enrichment returned by the place-detail collaborator.
// Every field is optional.
type Details struct {
	Phone        string        `json:"phone,omitempty"`
	Website      string        `json:"website,omitempty"`
	OpeningHours *OpeningHours `json:"opening_hours,omitempty"`
}

// Candidate is one discovered practice within a single search pass.
//
// ConfidenceScore, Private and Tier are derived fields populated by the ranking
// engine. Once a pass publishes its candidates they must be treated as read-only.
type Candidate struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Address     string   `json:"address,omitempty"`
	Rating      float64  `json:"rating"`
	ReviewCount int      `json:"review_count"`
	Location    Location `json:"location"`

	// DistanceMeters is measured from the search centre.
	DistanceMeters float64 `json:"distance_m"`

	Details

	Private           PrivateStatus `json:"is_private"`
	PrivateSignals    []string      `json:"private_signals,omitempty"`
	NHSSignals        []string      `json:"nhs_signals,omitempty"`
	PrivateConfidence float64       `json:"private_confidence,omitempty"`

	// PrivateBadge is a display hint only; it never drives exclusion.
	PrivateBadge bool `json:"private_badge,omitempty"`

	ConfidenceScore float64  `json:"confidence_score"`
	Tier            RankTier `json:"rank_tier"`
}

// ResolvePrivate moves Private out of PrivateUnknown. It reports false and leaves
// the status untouched when the candidate was already classified.
func (c *Candidate) ResolvePrivate(isPrivate bool) bool {
	if c.Private != PrivateUnknown {
		return false
	}
	if isPrivate {
		c.Private = PrivateYes
	} else {
		c.Private = PrivateNo
	}
	return true
}

// MapsURL returns a directory link for the candidate.
func (c *Candidate) MapsURL() string {
	return fmt.Sprintf("https://www.google.com/maps/place/?q=place_id:%s", c.ID)
}
