package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/creatorpulse/backend/config"
	httpDelivery "github.com/creatorpulse/backend/internal/delivery/http"
	"github.com/creatorpulse/backend/internal/domain"
	"github.com/creatorpulse/backend/internal/infrastructure/cache"
	"github.com/creatorpulse/backend/internal/infrastructure/catalog"
	"github.com/creatorpulse/backend/internal/infrastructure/catalog/amazon"
	"github.com/creatorpulse/backend/internal/infrastructure/catalog/httpcatalog"
	"github.com/creatorpulse/backend/internal/infrastructure/store"
	"github.com/creatorpulse/backend/internal/platform/logger"
	"github.com/creatorpulse/backend/internal/platform/metrics"
	"github.com/creatorpulse/backend/internal/usecase"
)

// expirySweepInterval is how often stale pending matches are expired in the background
const expirySweepInterval = time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Server.Environment, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting CreatorPulse matcher",
		"version", "1.0.0",
		"environment", cfg.Server.Environment,
		"port", cfg.Server.Port,
		"cache", cfg.Cache.Type,
		"database", cfg.Database.Driver,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize infrastructure dependencies
	db, err := store.Open(store.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Debug:           cfg.Log.Level == "debug",
	}, log)
	if err != nil {
		log.Fatal("failed to open database", "error", err)
	}
	productRepo := store.NewProductRepository(db, log)
	matchRepo := store.NewMatchRepository(db, log)

	searchCache, err := newCache(cfg.Cache, log)
	if err != nil {
		log.Fatal("failed to initialize cache", "error", err)
	}
	defer searchCache.Close()

	gateways, err := buildGateways(cfg, searchCache, log, m)
	if err != nil {
		log.Fatal("failed to initialize catalogs", "error", err)
	}

	// Initialize usecase layer
	mc := cfg.Matching
	scorer := usecase.NewSimilarityScorer(usecase.ScoringConfig{
		TitleCosineWeight: mc.TitleCosineWeight,
		TitleEditWeight:   mc.TitleEditWeight,
		PriceTolerance:    mc.PriceTolerance,
	})
	aggregator := usecase.NewAggregator(scorer, usecase.AggregatorConfig{
		BrandWeight:           mc.BrandWeight,
		TitleWeight:           mc.TitleWeight,
		PriceWeight:           mc.PriceWeight,
		CategoryGateThreshold: mc.CategoryGateThreshold,
		MinConfidence:         mc.MinConfidence,
		HighTierMin:           mc.HighTierMin,
		MediumTierMin:         mc.MediumTierMin,
		BrandTitleBrandMin:    mc.BrandTitleBrandMin,
		BrandTitleTitleMin:    mc.BrandTitleTitleMin,
		FuzzyTitleMin:         mc.FuzzyTitleMin,
		DefaultTopN:           mc.DefaultTopN,
	}, log, m)
	lifecycle := usecase.NewLifecycleService(matchRepo, mc.PendingTTL, log, m)
	matching := usecase.NewMatchingService(productRepo, gateways, aggregator, lifecycle, usecase.RunConfig{
		Workers:     cfg.Run.Workers,
		MaxAttempts: cfg.Run.MaxAttempts,
		BaseBackoff: cfg.Run.BaseBackoff,
		SearchLimit: cfg.Run.SearchLimit,
	}, log, m)
	products := usecase.NewProductService(productRepo, log)

	handler := httpDelivery.NewHandler(products, matching, lifecycle, log)
	router := httpDelivery.SetupRouter(cfg, handler, registry, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepExpired(ctx, lifecycle, log)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	log.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

type closableCache interface {
	domain.CacheRepository
	io.Closer
}

func newCache(cfg config.CacheConfig, log *logger.Logger) (closableCache, error) {
	if cfg.Type == "redis" {
		rc, err := cache.NewRedisCache(cfg.RedisURL, "creatorpulse:", log)
		if err != nil {
			return nil, err
		}
		return rc, nil
	}
	return cache.NewMemoryCache(0, cfg.MaxEntries), nil
}

// buildGateways creates one gateway per configured marketplace: client, then the shared rate
// budget, then the search cache on top so cache hits never spend budget.
func buildGateways(
	cfg *config.Config,
	searchCache domain.CacheRepository,
	log *logger.Logger,
	m *metrics.Metrics,
) (map[domain.Platform]domain.CatalogGateway, error) {
	platforms := cfg.Platforms()

	limits := make(map[domain.Platform]catalog.LimiterConfig, len(platforms))
	for p, c := range platforms {
		limits[p] = catalog.LimiterConfig{RequestsPerSecond: c.RequestsPerSecond, Burst: c.Burst}
	}
	limiters := catalog.NewLimiterRegistry(limits)

	gateways := make(map[domain.Platform]domain.CatalogGateway, len(platforms))
	for p, c := range platforms {
		var client domain.CatalogGateway
		switch c.Type {
		case config.CatalogTypeAmazon:
			ac, err := amazon.NewClient(c.BaseURL, c.Currency, c.Timeout, log)
			if err != nil {
				return nil, fmt.Errorf("catalog %s: %w", p, err)
			}
			client = ac
		default:
			hc := httpcatalog.NewClient(p, c.APIKey, c.BaseURL, log)
			hc.SetTimeout(c.Timeout)
			client = hc
		}

		limiter, err := limiters.For(p)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", p, err)
		}
		limited := catalog.NewRateLimitedGateway(p, client, limiter, cfg.Run.RateWaitTimeout, log, m)
		gateways[p] = catalog.NewCachedGateway(p, limited, searchCache, cfg.Cache.TTL, log)

		log.Info("catalog configured",
			"marketplace", p,
			"type", c.Type,
			"requests_per_second", c.RequestsPerSecond,
			"burst", c.Burst,
		)
	}
	return gateways, nil
}

func sweepExpired(ctx context.Context, lifecycle *usecase.LifecycleService, log *logger.Logger) {
	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := lifecycle.ExpireStale(ctx, 0); err != nil && ctx.Err() == nil {
				log.Warn("expiry sweep failed", "error", err)
			}
		}
	}
}
