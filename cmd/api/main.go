// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/gpfinder/internal/api"
	"github.com/onnwee/gpfinder/internal/app"
	"github.com/onnwee/gpfinder/internal/config"
	"github.com/onnwee/gpfinder/internal/middleware"
	"github.com/onnwee/gpfinder/internal/tracing"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("GP Practice Finder API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		stop()
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	summary := make([]any, 0, 2*len(cfg.LogSummary()))
	for k, v := range cfg.LogSummary() {
		summary = append(summary, k, v)
	}
	logger.Info("configuration loaded", summary...)

	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:    api.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		Endpoint:       cfg.OTLPEndpoint,
		SampleRate:     cfg.TracingSampleRate,
		Insecure:       cfg.TracingInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("tracing shutdown failed", "error", err)
		}
	}()

	engine, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("failed to close engine", "error", err)
		}
	}()

	limitStore := engine.RateLimitStore(ctx)
	limit := middleware.SearchLimit(cfg.RateLimitPerMinute)

	stream := api.NewStreamHandlers(engine.Orchestrator, cfg.CORSAllowedOrigins, logger)
	stream.SetMetrics(engine.HTTPMetrics, engine.SearchMetrics)
	stream.SetRateLimit(limitStore, limit, middleware.IPKeyFunc())

	handler := api.NewRouter(api.RouterConfig{
		Search:         api.NewSearchHandlers(engine.Orchestrator, logger),
		Stream:         stream,
		Health:         api.NewHealthHandlers(api.HealthHandlersConfig{Dependencies: engine.Dependencies, Logger: logger}),
		Metrics:        promhttp.HandlerFor(engine.Registry, promhttp.HandlerOpts{}),
		Logger:         logger,
		HTTPMetrics:    engine.HTTPMetrics,
		RateLimitStore: limitStore,
		RateLimit:      limit,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		TracingEnabled: tp.IsEnabled(),
		Version:        version,
	})

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Passes can take up to api.DefaultSearchTimeout.
		WriteTimeout: api.DefaultSearchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
