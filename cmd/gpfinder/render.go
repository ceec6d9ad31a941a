package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/onnwee/gpfinder/internal/practice"
	"github.com/onnwee/gpfinder/internal/ranking"
	"github.com/onnwee/gpfinder/internal/search"
)

// tierColor highlights the three ranked badges.
func tierColor(t practice.RankTier) *color.Color {
	switch t {
	case practice.TierTop1:
		return color.New(color.FgGreen, color.Bold)
	case practice.TierTop2:
		return color.New(color.FgCyan, color.Bold)
	case practice.TierTop3:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.Reset)
	}
}

// labelColor shades a confidence label from green to red.
func labelColor(score float64) *color.Color {
	switch idx := ranking.LabelIndex(score); {
	case idx <= 1:
		return color.New(color.FgGreen)
	case idx <= 3:
		return color.New(color.FgCyan)
	case idx <= 5:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

var (
	dim     = color.New(color.FgHiBlack)
	private = color.New(color.FgMagenta)
)

// printResults writes a ranked pass as a numbered list.
func printResults(w io.Writer, res *search.Result, now time.Time) error {
	scope := "NHS practices"
	if res.Query.IncludePrivate {
		scope = "practices including private"
	}
	if _, err := fmt.Fprintf(w, "%d %s near %.5f,%.5f\n\n", len(res.Candidates), scope,
		res.Query.Location.Lat, res.Query.Location.Lng); err != nil {
		return err
	}

	for i, c := range res.Candidates {
		name := tierColor(c.Tier).Sprint(c.Name)
		if label := c.Tier.Label(); label != "" {
			name += " " + tierColor(c.Tier).Sprintf("[%s]", label)
		}
		if c.PrivateBadge {
			name += " " + private.Sprint("(private)")
		}

		if _, err := fmt.Fprintf(w, "%2d. %s\n", i+1, name); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "    %.1f★ from %d reviews · score %.2f %s · %s\n",
			c.Rating, c.ReviewCount, c.ConfidenceScore,
			labelColor(c.ConfidenceScore).Sprint(ranking.ConfidenceLabel(c.ConfidenceScore)),
			formatDistance(c.DistanceMeters)); err != nil {
			return err
		}

		details := []string{c.Address, c.Phone, c.Website, "Today: " + c.OpeningHours.Today(now), c.MapsURL()}
		for _, d := range details {
			if d == "" {
				continue
			}
			if _, err := fmt.Fprintf(w, "    %s\n", dim.Sprint(d)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

func formatDistance(m float64) string {
	if m < 1000 {
		return fmt.Sprintf("%.0f m", m)
	}
	return fmt.Sprintf("%.1f km", m/1000)
}
