package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/gpfinder/internal/practice"
	"github.com/onnwee/gpfinder/internal/ranking"
	"github.com/onnwee/gpfinder/internal/search"
)

// PracticeResponse is one ranked practice as shown to clients.
type PracticeResponse struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Address         string            `json:"address,omitempty"`
	Location        practice.Location `json:"location"`
	DistanceMeters  float64           `json:"distance_m"`
	Rating          float64           `json:"rating"`
	ReviewCount     int               `json:"review_count"`
	ConfidenceScore float64           `json:"confidence_score"`
	ConfidenceLabel string            `json:"confidence_label"`
	RankTier        string            `json:"rank_tier"`
	TierLabel       string            `json:"tier_label,omitempty"`
	IsPrivate       bool              `json:"is_private"`
	PrivateBadge    bool              `json:"private_badge,omitempty"`
	Phone           string            `json:"phone,omitempty"`
	Website         string            `json:"website,omitempty"`
	HoursToday      string            `json:"hours_today"`
	MapsURL         string            `json:"maps_url"`
}

// SearchResponse is the body of a successful search.
type SearchResponse struct {
	PassID         string             `json:"pass_id"`
	Generation     uint64             `json:"generation,omitempty"`
	Location       practice.Location  `json:"location"`
	IncludePrivate bool               `json:"include_private"`
	SelectedID     string             `json:"selected_id,omitempty"`
	Count          int                `json:"count"`
	Practices      []PracticeResponse `json:"practices"`
	CompletedAt    string             `json:"completed_at"`
}

// NewPracticeResponse converts a ranked candidate. now selects the weekday
// used for HoursToday.
func NewPracticeResponse(c practice.Candidate, now time.Time) PracticeResponse {
	return PracticeResponse{
		ID:              c.ID,
		Name:            c.Name,
		Address:         c.Address,
		Location:        c.Location,
		DistanceMeters:  c.DistanceMeters,
		Rating:          c.Rating,
		ReviewCount:     c.ReviewCount,
		ConfidenceScore: c.ConfidenceScore,
		ConfidenceLabel: ranking.ConfidenceLabel(c.ConfidenceScore),
		RankTier:        c.Tier.String(),
		TierLabel:       c.Tier.Label(),
		IsPrivate:       c.Private == practice.PrivateYes,
		PrivateBadge:    c.PrivateBadge,
		Phone:           c.Phone,
		Website:         c.Website,
		HoursToday:      c.OpeningHours.Today(now),
		MapsURL:         c.MapsURL(),
	}
}

// NewSearchResponse converts a completed pass.
func NewSearchResponse(res *search.Result, now time.Time) SearchResponse {
	out := SearchResponse{
		PassID:         res.PassID,
		Generation:     res.Generation,
		Location:       res.Query.Location,
		IncludePrivate: res.Query.IncludePrivate,
		SelectedID:     res.SelectedID,
		Count:          len(res.Candidates),
		Practices:      make([]PracticeResponse, 0, len(res.Candidates)),
		CompletedAt:    res.CompletedAt.UTC().Format(time.RFC3339),
	}
	for _, c := range res.Candidates {
		out.Practices = append(out.Practices, NewPracticeResponse(c, now))
	}
	return out
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
