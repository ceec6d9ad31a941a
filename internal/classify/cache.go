package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/redis/go-redis/v9"
)

// VerdictCache stores successful website verdicts keyed by website URL.
type VerdictCache interface {
	Get(ctx context.Context, websiteURL string) (*Verdict, bool)
	Set(ctx context.Context, websiteURL string, v *Verdict)
}

// cacheKey normalizes a website URL into a fixed-length key.
func cacheKey(websiteURL string) string {
	normalized := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(websiteURL)), "/")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// OtterCache is an in-process VerdictCache with write-time expiry.
type OtterCache struct {
	cache  *otter.Cache[string, Verdict]
	logger *slog.Logger
}

// NewOtterCache creates an OtterCache holding up to maxEntries verdicts for ttl.
func NewOtterCache(maxEntries int, ttl time.Duration, logger *slog.Logger) *OtterCache {
	if logger == nil {
		logger = slog.Default()
	}
	cache := otter.Must(&otter.Options[string, Verdict]{
		MaximumSize:      maxEntries,
		ExpiryCalculator: otter.ExpiryWriting[string, Verdict](ttl),
	})
	return &OtterCache{cache: cache, logger: logger}
}

// Get implements VerdictCache.
func (c *OtterCache) Get(_ context.Context, websiteURL string) (*Verdict, bool) {
	v, ok := c.cache.GetIfPresent(cacheKey(websiteURL))
	if !ok {
		c.logger.Debug("verdict cache miss", "url", websiteURL)
		return nil, false
	}
	return &v, true
}

// Set implements VerdictCache.
func (c *OtterCache) Set(_ context.Context, websiteURL string, v *Verdict) {
	if v == nil {
		return
	}
	c.cache.Set(cacheKey(websiteURL), *v)
}

// Invalidate drops any cached verdict for websiteURL.
func (c *OtterCache) Invalidate(websiteURL string) {
	c.cache.Invalidate(cacheKey(websiteURL))
}

// redisKeyPrefix namespaces verdict keys in a shared redis.
const redisKeyPrefix = "gpfinder:verdict:"

// RedisCache is a VerdictCache shared between instances through redis.
// Redis errors are logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache creates a RedisCache.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// Get implements VerdictCache.
func (c *RedisCache) Get(ctx context.Context, websiteURL string) (*Verdict, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+cacheKey(websiteURL)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "verdict cache read failed", "error", err)
		}
		return nil, false
	}
	var v Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.WarnContext(ctx, "verdict cache entry corrupt", "error", err)
		return nil, false
	}
	return &v, true
}

// Set implements VerdictCache.
func (c *RedisCache) Set(ctx context.Context, websiteURL string, v *Verdict) {
	if v == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+cacheKey(websiteURL), data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "verdict cache write failed", "error", err)
	}
}

// TieredCache reads from each cache in order and writes to all of them.
// A hit in a later tier is copied into the earlier ones.
type TieredCache []VerdictCache

// Get implements VerdictCache.
func (t TieredCache) Get(ctx context.Context, websiteURL string) (*Verdict, bool) {
	for i, c := range t {
		if v, ok := c.Get(ctx, websiteURL); ok {
			for _, earlier := range t[:i] {
				earlier.Set(ctx, websiteURL, v)
			}
			return v, true
		}
	}
	return nil, false
}

// Set implements VerdictCache.
func (t TieredCache) Set(ctx context.Context, websiteURL string, v *Verdict) {
	for _, c := range t {
		c.Set(ctx, websiteURL, v)
	}
}

// CachedClassifier wraps a WebsiteClassifier with a VerdictCache. Only
// successful verdicts are cached, so a failed check is retried on the next
// search rather than within the current one.
type CachedClassifier struct {
	next    WebsiteClassifier
	cache   VerdictCache
	metrics *Metrics
}

// NewCachedClassifier creates a CachedClassifier.
func NewCachedClassifier(next WebsiteClassifier, cache VerdictCache, metrics *Metrics) *CachedClassifier {
	return &CachedClassifier{next: next, cache: cache, metrics: metrics}
}

// ClassifyWebsite implements WebsiteClassifier.
func (c *CachedClassifier) ClassifyWebsite(ctx context.Context, websiteURL string) (*Verdict, error) {
	if v, ok := c.cache.Get(ctx, websiteURL); ok {
		if c.metrics != nil {
			c.metrics.IncCacheHit()
		}
		return v, nil
	}
	if c.metrics != nil {
		c.metrics.IncCacheMiss()
	}

	v, err := c.next.ClassifyWebsite(ctx, websiteURL)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, websiteURL, v)
	return v, nil
}
