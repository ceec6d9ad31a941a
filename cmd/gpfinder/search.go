package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/onnwee/gpfinder/internal/api"
	"github.com/onnwee/gpfinder/internal/app"
	"github.com/onnwee/gpfinder/internal/config"
	"github.com/onnwee/gpfinder/internal/practice"
	"github.com/onnwee/gpfinder/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search for GP practices around a location",
	Long:  "Runs one search pass around --lat/--lng and prints the ranked practices, highlighting the top three.",
	RunE:  runSearch,
}

var (
	searchLat            float64
	searchLng            float64
	searchIncludePrivate bool
	searchJSON           bool
	searchConfig         string
	searchTimeout        time.Duration
	searchVerbose        bool
)

func init() {
	searchCmd.Flags().Float64Var(&searchLat, "lat", 0, "Latitude of the search centre (required)")
	searchCmd.Flags().Float64Var(&searchLng, "lng", 0, "Longitude of the search centre (required)")
	searchCmd.Flags().BoolVarP(&searchIncludePrivate, "include-private", "p", false, "Include private practices")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print the API JSON response instead of a table")
	searchCmd.Flags().StringVarP(&searchConfig, "config", "c", "", "Path to a YAML config file")
	searchCmd.Flags().DurationVar(&searchTimeout, "timeout", api.DefaultSearchTimeout, "Maximum time for the search")
	searchCmd.Flags().BoolVarP(&searchVerbose, "verbose", "v", false, "Log pipeline progress to stderr")

	if err := searchCmd.MarkFlagRequired("lat"); err != nil {
		panic(fmt.Sprintf("failed to mark lat flag as required: %v", err))
	}
	if err := searchCmd.MarkFlagRequired("lng"); err != nil {
		panic(fmt.Sprintf("failed to mark lng flag as required: %v", err))
	}

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, _ []string) error {
	q := search.Query{
		Location:       practice.Location{Lat: searchLat, Lng: searchLng},
		IncludePrivate: searchIncludePrivate,
	}
	if err := q.Location.Validate(); err != nil {
		return fmt.Errorf("invalid location %v,%v: %w", searchLat, searchLng, err)
	}

	cfg, errs := config.Load(searchConfig)
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	level := slog.LevelWarn
	if searchVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	engine, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), searchTimeout)
	defer cancel()

	res, err := engine.Orchestrator.Search(ctx, q)
	if err != nil {
		return errors.New(search.UserMessage(err))
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(api.NewSearchResponse(res, time.Now()))
	}
	return printResults(out, res, time.Now())
}
