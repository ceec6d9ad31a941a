// Package app assembles the search engine from configuration. The API server
// and the CLI share it so both rank with the same collaborators.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/onnwee/gpfinder/internal/classify"
	"github.com/onnwee/gpfinder/internal/config"
	"github.com/onnwee/gpfinder/internal/health"
	"github.com/onnwee/gpfinder/internal/middleware"
	"github.com/onnwee/gpfinder/internal/places"
	"github.com/onnwee/gpfinder/internal/ranking"
	"github.com/onnwee/gpfinder/internal/search"
)

// placesTimeout bounds a single directory request.
const placesTimeout = 15 * time.Second

// rateLimitCleanupInterval sweeps expired in-memory limiter buckets.
const rateLimitCleanupInterval = 5 * time.Minute

// Engine holds the wired search pipeline and the shared infrastructure around it.
type Engine struct {
	Orchestrator *search.Orchestrator
	Registry     *prometheus.Registry

	HTTPMetrics   *middleware.Metrics
	SearchMetrics *search.Metrics

	// Redis is nil when no REDIS_URL is configured.
	Redis *redis.Client

	// Dependencies are the readiness checks for the configured collaborators.
	Dependencies []health.Dependency

	cfg    *config.Config
	logger *slog.Logger
}

// New builds an Engine from cfg. The returned Engine must be closed.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		Registry:      prometheus.NewRegistry(),
		HTTPMetrics:   middleware.NewMetrics(),
		SearchMetrics: search.NewMetrics(),
		cfg:           cfg,
		logger:        logger,
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		e.Redis = redis.NewClient(opts)
		e.Dependencies = append(e.Dependencies, health.Dependency{
			Name:    "redis",
			Checker: health.NewRedisChecker(e.Redis),
		})
	}

	placesMetrics := places.NewMetrics()
	classifyMetrics := classify.NewMetrics()
	for _, register := range []func(prometheus.Registerer) error{
		e.HTTPMetrics.Register,
		e.SearchMetrics.Register,
		placesMetrics.Register,
		classifyMetrics.Register,
	} {
		if err := register(e.Registry); err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	directory := places.NewClient(cfg.PlacesAPIKey, newHTTPClient(placesTimeout), logger, places.Options{
		BaseURL:  cfg.PlacesBaseURL,
		Attempts: uint(cfg.UpstreamAttempts),
	})
	directory.SetMetrics(placesMetrics)

	classifier := classify.New(e.websiteClassifier(classifyMetrics), logger)
	classifier.SetMetrics(classifyMetrics)

	e.Orchestrator = search.NewOrchestrator(directory, directory, ranking.NewRanker(classifier, logger), logger)
	e.Orchestrator.SetMetrics(e.SearchMetrics)

	logger.Info("search engine ready",
		slog.String("classifier_mode", cfg.ClassifierMode),
		slog.Bool("redis", e.Redis != nil),
	)
	return e, nil
}

// websiteClassifier returns the second classification stage for the
// configured mode, wrapped in the verdict cache, or nil when it is off.
func (e *Engine) websiteClassifier(metrics *classify.Metrics) classify.WebsiteClassifier {
	var next classify.WebsiteClassifier
	switch e.cfg.ClassifierMode {
	case config.ClassifierRemote:
		next = classify.NewRemoteClient(e.cfg.ClassifierURL, newHTTPClient(e.cfg.ClassifierTimeout), e.logger)
		e.Dependencies = append(e.Dependencies, health.Dependency{
			Name:     "classifier",
			Checker:  health.NewHTTPChecker("classifier", e.cfg.ClassifierURL),
			Optional: true,
		})
	case config.ClassifierLocal:
		next = classify.NewContentScanner(newHTTPClient(e.cfg.ClassifierTimeout), e.logger)
	default:
		return nil
	}

	cache := classify.TieredCache{classify.NewOtterCache(e.cfg.VerdictCacheSize, e.cfg.VerdictCacheTTL, e.logger)}
	if e.Redis != nil {
		cache = append(cache, classify.NewRedisCache(e.Redis, e.cfg.VerdictCacheTTL, e.logger))
	}
	return classify.NewCachedClassifier(next, cache, metrics)
}

// RateLimitStore returns the Redis store when Redis is configured and an
// in-memory store swept until ctx is done otherwise.
func (e *Engine) RateLimitStore(ctx context.Context) middleware.RateLimitStore {
	if e.Redis != nil {
		store := middleware.NewRedisRateLimitStore(e.Redis, e.logger)
		store.SetMetrics(e.HTTPMetrics)
		return store
	}
	store := middleware.NewInMemoryRateLimitStore()
	go store.RunCleanup(ctx, rateLimitCleanupInterval)
	return store
}

// Close releases the Redis connection pool.
func (e *Engine) Close() error {
	if e.Redis != nil {
		return e.Redis.Close()
	}
	return nil
}

// newHTTPClient returns a client whose requests are traced as client spans.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
