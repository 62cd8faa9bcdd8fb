package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/creatorpulse/backend/internal/domain"
	"github.com/creatorpulse/backend/internal/platform/logger"
	"github.com/creatorpulse/backend/internal/platform/metrics"
)

// RateLimitedGateway makes every call wait on the marketplace's shared limiter first.
// Waiting longer than waitTimeout fails with domain.ErrRateLimitTimeout.
type RateLimitedGateway struct {
	marketplace domain.Platform
	next        domain.CatalogGateway
	limiter     Limiter
	waitTimeout time.Duration
	log         *logger.Logger
	metrics     *metrics.Metrics
}

// NewRateLimitedGateway wraps next with the shared limiter
func NewRateLimitedGateway(
	marketplace domain.Platform,
	next domain.CatalogGateway,
	limiter Limiter,
	waitTimeout time.Duration,
	log *logger.Logger,
	m *metrics.Metrics,
) *RateLimitedGateway {
	if waitTimeout <= 0 {
		waitTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &RateLimitedGateway{
		marketplace: marketplace,
		next:        next,
		limiter:     limiter,
		waitTimeout: waitTimeout,
		log:         log.With("component", "RateLimitedGateway", "marketplace", marketplace),
		metrics:     m,
	}
}

// Search waits for budget, then searches
func (g *RateLimitedGateway) Search(ctx context.Context, query domain.CatalogQuery, limit int) ([]domain.ProductRecord, error) {
	if err := g.wait(ctx); err != nil {
		g.record(err)
		return nil, err
	}
	recs, err := g.next.Search(ctx, query, limit)
	g.record(err)
	return recs, err
}

// GetByID waits for budget, then looks the listing up
func (g *RateLimitedGateway) GetByID(ctx context.Context, externalID string) (*domain.ProductRecord, error) {
	if err := g.wait(ctx); err != nil {
		g.record(err)
		return nil, err
	}
	rec, err := g.next.GetByID(ctx, externalID)
	g.record(err)
	return rec, err
}

func (g *RateLimitedGateway) wait(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, g.waitTimeout)
	defer cancel()

	start := time.Now()
	err := g.limiter.Wait(waitCtx)
	g.metrics.RateLimitWait.WithLabelValues(string(g.marketplace)).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	// the caller gave up; that is not a budget problem
	if ctx.Err() != nil {
		return ctx.Err()
	}
	g.log.Warn("rate budget wait timed out", "timeout", g.waitTimeout)
	return fmt.Errorf("%w: %s budget not available within %s", domain.ErrRateLimitTimeout, g.marketplace, g.waitTimeout)
}

func (g *RateLimitedGateway) record(err error) {
	g.metrics.CatalogRequests.WithLabelValues(string(g.marketplace), requestOutcome(err)).Inc()
}

func requestOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrRateLimitTimeout):
		return "rate_limited"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrCatalogUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

var cacheKeyUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// CachedGateway keeps catalog answers for a short TTL. A cache hit never touches the rate
// budget. Cache failures degrade to a direct call.
type CachedGateway struct {
	marketplace domain.Platform
	next        domain.CatalogGateway
	cache       domain.CacheRepository
	ttl         time.Duration
	log         *logger.Logger
}

// NewCachedGateway wraps next with a read-through cache
func NewCachedGateway(
	marketplace domain.Platform,
	next domain.CatalogGateway,
	cache domain.CacheRepository,
	ttl time.Duration,
	log *logger.Logger,
) *CachedGateway {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &CachedGateway{
		marketplace: marketplace,
		next:        next,
		cache:       cache,
		ttl:         ttl,
		log:         log.With("component", "CachedGateway", "marketplace", marketplace),
	}
}

// Search returns cached results when present, otherwise searches and caches the answer
func (g *CachedGateway) Search(ctx context.Context, query domain.CatalogQuery, limit int) ([]domain.ProductRecord, error) {
	key := g.searchKey(query, limit)

	var cached []domain.ProductRecord
	if g.load(ctx, key, &cached) {
		return cached, nil
	}

	recs, err := g.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	g.store(ctx, key, recs)
	return recs, nil
}

// GetByID returns a cached listing when present. Misses on the catalog are not cached.
func (g *CachedGateway) GetByID(ctx context.Context, externalID string) (*domain.ProductRecord, error) {
	key := fmt.Sprintf("catalog:%s:item:%s", g.marketplace, strings.ToUpper(strings.TrimSpace(externalID)))

	var cached domain.ProductRecord
	if g.load(ctx, key, &cached) {
		return &cached, nil
	}

	rec, err := g.next.GetByID(ctx, externalID)
	if err != nil || rec == nil {
		return rec, err
	}
	g.store(ctx, key, rec)
	return rec, nil
}

// searchKey creates a normalized cache key.
// Format: "catalog:{marketplace}:search:{identifier_type}:{identifier}:{keywords}:{category}:{limit}"
func (g *CachedGateway) searchKey(q domain.CatalogQuery, limit int) string {
	return fmt.Sprintf("catalog:%s:search:%s:%s:%s:%s:%d",
		g.marketplace,
		normalizeForCacheKey(string(q.IdentifierType)),
		normalizeForCacheKey(q.Identifier),
		normalizeForCacheKey(q.Keywords),
		normalizeForCacheKey(q.Category),
		limit,
	)
}

func (g *CachedGateway) load(ctx context.Context, key string, out interface{}) bool {
	data, err := g.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			g.log.Warn("cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		g.log.Warn("discarding undecodable cache entry", "key", key, "error", err)
		_ = g.cache.Delete(ctx, key)
		return false
	}
	return true
}

func (g *CachedGateway) store(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		g.log.Warn("failed to encode cache entry", "key", key, "error", err)
		return
	}
	if err := g.cache.Set(ctx, key, data, g.ttl); err != nil {
		g.log.Warn("cache write failed", "key", key, "error", err)
	}
}

// normalizeForCacheKey lower-cases s and replaces anything but letters and digits with '-'
func normalizeForCacheKey(s string) string {
	s = cacheKeyUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	return strings.Trim(s, "-")
}
