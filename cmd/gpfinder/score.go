package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onnwee/gpfinder/internal/ranking"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute the confidence score for a rating and review count",
	Long:  "Prints the confidence score and label the ranking engine assigns to a practice with the given average rating and number of reviews.",
	RunE:  runScore,
}

var (
	scoreRating  float64
	scoreReviews int
)

func init() {
	scoreCmd.Flags().Float64VarP(&scoreRating, "rating", "r", 0, "Average rating, 0 to 5 (required)")
	scoreCmd.Flags().IntVarP(&scoreReviews, "reviews", "n", 0, "Number of reviews (required)")

	if err := scoreCmd.MarkFlagRequired("rating"); err != nil {
		panic(fmt.Sprintf("failed to mark rating flag as required: %v", err))
	}
	if err := scoreCmd.MarkFlagRequired("reviews"); err != nil {
		panic(fmt.Sprintf("failed to mark reviews flag as required: %v", err))
	}

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	if err := ranking.ValidateInput(scoreRating, scoreReviews); err != nil {
		return err
	}
	score := ranking.Score(scoreRating, scoreReviews)
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%.2f %s\n", score, labelColor(score).Sprint(ranking.ConfidenceLabel(score)))
	return err
}
