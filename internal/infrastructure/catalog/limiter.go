// Package catalog holds the marketplace catalog gateways and the decorators that enforce the
// shared per-marketplace rate budget and cache search results.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/creatorpulse/backend/internal/domain"
)

// Limiter is the rate budget of one marketplace. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// LimiterConfig is the token bucket of one marketplace
type LimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LimiterRegistry owns exactly one limiter per marketplace. Every worker asking for the same
// marketplace receives the same instance, so the external quota is shared, not multiplied.
type LimiterRegistry struct {
	mu       sync.Mutex
	configs  map[domain.Platform]LimiterConfig
	limiters map[domain.Platform]Limiter
}

// NewLimiterRegistry creates a registry for the given marketplaces
func NewLimiterRegistry(configs map[domain.Platform]LimiterConfig) *LimiterRegistry {
	return &LimiterRegistry{
		configs:  configs,
		limiters: make(map[domain.Platform]Limiter),
	}
}

// For returns the shared limiter of a marketplace, creating it on first use
func (r *LimiterRegistry) For(marketplace domain.Platform) (Limiter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[marketplace]; ok {
		return l, nil
	}
	cfg, ok := r.configs[marketplace]
	if !ok {
		return nil, fmt.Errorf("%w: no rate budget configured for %s", domain.ErrInvalidRequest, marketplace)
	}
	if cfg.RequestsPerSecond <= 0 || cfg.Burst <= 0 {
		return nil, fmt.Errorf("%w: rate budget for %s must be positive", domain.ErrInvalidRequest, marketplace)
	}

	l := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	r.limiters[marketplace] = l
	return l, nil
}

// Set installs a limiter for a marketplace, replacing any existing one. Tests use it to
// substitute a deterministic fake.
func (r *LimiterRegistry) Set(marketplace domain.Platform, l Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[marketplace] = l
}
