package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/creatorpulse/backend/internal/domain"
	"github.com/creatorpulse/backend/internal/platform/logger"
	"github.com/creatorpulse/backend/internal/platform/metrics"
)

// Skip reasons reported per (source, marketplace) unit
const (
	SkipNoCatalog          = "no catalog configured for marketplace"
	SkipSamePlatform       = "source product already lives on this marketplace"
	SkipNothingToSearch    = "source product has no identifiers or searchable title"
	SkipSourceNotFound     = "source product not found"
	SkipCanceled           = "run canceled before this unit started"
	skipInvalidCredentials = "marketplace disabled: invalid credentials"
)

// identifierSearchTypes are the global codes a catalog can be searched by, in precedence order
var identifierSearchTypes = []domain.IdentifierType{
	domain.IdentifierGTIN,
	domain.IdentifierUPC,
	domain.IdentifierEAN,
}

// RunConfig holds configuration for matching runs
type RunConfig struct {
	Workers     int
	MaxAttempts int
	BaseBackoff time.Duration
	SearchLimit int
}

// RunRequest selects the source products and marketplaces of one matching run
type RunRequest struct {
	SourceProductIDs []uuid.UUID
	// Marketplaces defaults to every configured catalog when empty
	Marketplaces []domain.Platform
	TopN         int
}

// UnitReport is the outcome of matching one source product against one marketplace
type UnitReport struct {
	SourceProductID uuid.UUID                 `json:"sourceProductId"`
	Marketplace     domain.Platform           `json:"marketplace"`
	Persisted       int                       `json:"persisted"`
	Matches         []*domain.Match           `json:"matches,omitempty"`
	Dropped         []domain.DroppedCandidate `json:"dropped,omitempty"`
	Skipped         string                    `json:"skipped,omitempty"`

	// Warnings lists lookups that failed without stopping the unit
	Warnings []string `json:"warnings,omitempty"`
}

// RunReport summarizes a matching run. It is returned even when the run was cut short.
type RunReport struct {
	Units     []UnitReport `json:"units"`
	Persisted int          `json:"persisted"`
	Dropped   int          `json:"dropped"`
	Skipped   int          `json:"skipped"`
}

// MatchingService runs sources against marketplace catalogs and records the resulting matches
type MatchingService struct {
	products   domain.ProductRepository
	gateways   map[domain.Platform]domain.CatalogGateway
	aggregator *Aggregator
	lifecycle  *LifecycleService
	config     RunConfig
	sleep      func(ctx context.Context, d time.Duration) error
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// NewMatchingService creates a new matching service with the given configuration
func NewMatchingService(
	products domain.ProductRepository,
	gateways map[domain.Platform]domain.CatalogGateway,
	aggregator *Aggregator,
	lifecycle *LifecycleService,
	config RunConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *MatchingService {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 4
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = 500 * time.Millisecond
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = 20
	}
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &MatchingService{
		products:   products,
		gateways:   gateways,
		aggregator: aggregator,
		lifecycle:  lifecycle,
		config:     config,
		sleep:      sleepContext,
		log:        log.With("component", "MatchingService"),
		metrics:    m,
	}
}

// Marketplaces returns the configured marketplaces in a stable order
func (s *MatchingService) Marketplaces() []domain.Platform {
	out := make([]domain.Platform, 0, len(s.gateways))
	for p := range s.gateways {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Run matches every requested source product against every requested marketplace on a bounded
// worker pool. A transient or credential failure skips the affected unit, never the run.
// On cancellation the partial report is returned together with the context error.
func (s *MatchingService) Run(ctx context.Context, req RunRequest) (*RunReport, error) {
	if len(req.SourceProductIDs) == 0 {
		return nil, fmt.Errorf("%w: no source products", domain.ErrInvalidRequest)
	}
	marketplaces := req.Marketplaces
	if len(marketplaces) == 0 {
		marketplaces = s.Marketplaces()
	}
	for _, mp := range marketplaces {
		if !mp.Valid() {
			return nil, fmt.Errorf("%w: unknown marketplace %q", domain.ErrInvalidRequest, mp)
		}
	}

	sources, err := s.products.GetMany(ctx, req.SourceProductIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load source products: %w", err)
	}
	byID := make(map[uuid.UUID]*domain.ProductRecord, len(sources))
	for _, src := range sources {
		byID[src.ID] = src
	}

	s.log.Info("starting matching run",
		"sources", len(req.SourceProductIDs),
		"marketplaces", marketplaces,
		"workers", s.config.Workers,
	)

	run := &runState{disabled: make(map[domain.Platform]string)}
	units := make([]UnitReport, 0, len(req.SourceProductIDs)*len(marketplaces))
	for _, id := range req.SourceProductIDs {
		for _, mp := range marketplaces {
			units = append(units, UnitReport{SourceProductID: id, Marketplace: mp})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i := range units {
		unit := &units[i]
		src, ok := byID[unit.SourceProductID]
		if !ok {
			unit.Skipped = SkipSourceNotFound
			continue
		}
		if gctx.Err() != nil {
			unit.Skipped = SkipCanceled
			continue
		}
		g.Go(func() error {
			s.runUnit(gctx, run, src, unit, req.TopN)
			return nil
		})
	}
	// workers never return errors; a canceled parent is reported below
	_ = g.Wait()

	report := &RunReport{Units: units}
	for _, u := range units {
		report.Persisted += u.Persisted
		report.Dropped += len(u.Dropped)
		if u.Skipped != "" {
			report.Skipped++
		}
	}

	s.log.Info("matching run finished",
		"persisted", report.Persisted,
		"dropped", report.Dropped,
		"skipped", report.Skipped,
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// runState is the only state shared between workers of one run
type runState struct {
	mu       sync.Mutex
	disabled map[domain.Platform]string
}

func (r *runState) disable(mp domain.Platform, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[mp] = reason
}

func (r *runState) isDisabled(mp domain.Platform) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reason, ok := r.disabled[mp]
	return reason, ok
}

func (s *MatchingService) runUnit(
	ctx context.Context,
	run *runState,
	source *domain.ProductRecord,
	unit *UnitReport,
	topN int,
) {
	mp := unit.Marketplace
	log := s.log.With("source_product_id", source.ID, "marketplace", mp)

	if reason, off := run.isDisabled(mp); off {
		unit.Skipped = reason
		return
	}
	gateway, ok := s.gateways[mp]
	if !ok {
		unit.Skipped = SkipNoCatalog
		return
	}
	if source.SourcePlatform == mp {
		unit.Skipped = SkipSamePlatform
		return
	}

	candidates, warnings, err := s.retrieve(ctx, gateway, source, mp)
	unit.Warnings = warnings
	for _, w := range warnings {
		log.Warn("continuing without catalog lookup", "warning", w)
	}
	if err != nil {
		switch {
		case errors.Is(err, errNothingToSearch):
			unit.Skipped = SkipNothingToSearch
		case errors.Is(err, domain.ErrInvalidCredentials):
			run.disable(mp, skipInvalidCredentials)
			unit.Skipped = skipInvalidCredentials
			log.Error("catalog rejected credentials, disabling marketplace for this run", "error", err)
		default:
			unit.Skipped = err.Error()
			log.Warn("skipping marketplace for source product", "error", err)
		}
		return
	}

	result, err := s.aggregator.Aggregate(ctx, *source, candidates, topN)
	if err != nil {
		unit.Skipped = err.Error()
		return
	}
	unit.Dropped = result.Dropped

	for _, candidate := range result.Candidates {
		match, err := s.lifecycle.UpsertMatch(ctx, candidate)
		if err != nil {
			log.Error("failed to persist match", "external_id", candidate.Target.SourceID, "error", err)
			unit.Dropped = append(unit.Dropped, domain.DroppedCandidate{
				ExternalID: candidate.Target.SourceID,
				Reason:     "persist_failed",
			})
			continue
		}
		unit.Matches = append(unit.Matches, match)
	}
	unit.Persisted = len(unit.Matches)
}

var errNothingToSearch = errors.New("nothing to search by")

// retrieve gathers candidates: ASIN lookup on amazon, then a global identifier search, then a
// keyword search when neither produced a record sharing an identifier with the source.
// An ASIN lookup that exhausts its retries is reported as a warning and the searches still run.
func (s *MatchingService) retrieve(
	ctx context.Context,
	gateway domain.CatalogGateway,
	source *domain.ProductRecord,
	mp domain.Platform,
) ([]domain.ProductRecord, []string, error) {
	normalized := Normalize(*source)
	var (
		out       []domain.ProductRecord
		warnings  []string
		lookupErr error
	)
	searched := false

	if mp == domain.PlatformAmazon {
		if asin := normalized.Identifiers.First(domain.IdentifierASIN); asin != "" {
			var rec *domain.ProductRecord
			err := s.withRetry(ctx, mp, func(ctx context.Context) error {
				var err error
				rec, err = gateway.GetByID(ctx, asin)
				return err
			})
			switch {
			case err == nil:
				searched = true
				if rec != nil {
					out = append(out, *rec)
				}
			case domain.IsRetryable(err) && ctx.Err() == nil:
				lookupErr = fmt.Errorf("asin %s lookup: %w", asin, err)
				warnings = append(warnings, lookupErr.Error())
			default:
				return nil, warnings, err
			}
		}
	}

	if !hasExactHit(normalized, out) {
		for _, t := range identifierSearchTypes {
			code := normalized.Identifiers.First(t)
			if code == "" {
				continue
			}
			searched = true
			recs, err := s.search(ctx, gateway, mp, domain.CatalogQuery{
				IdentifierType: t,
				Identifier:     code,
				Category:       source.Category,
			})
			if err != nil {
				return nil, warnings, err
			}
			out = append(out, recs...)
			break
		}
	}

	if !hasExactHit(normalized, out) {
		if keywords := BuildSearchQuery(normalized); keywords != "" {
			searched = true
			recs, err := s.search(ctx, gateway, mp, domain.CatalogQuery{
				Keywords: keywords,
				Category: source.Category,
			})
			if err != nil {
				return nil, warnings, err
			}
			out = append(out, recs...)
		}
	}

	if !searched {
		if lookupErr != nil {
			return nil, warnings, lookupErr
		}
		return nil, warnings, errNothingToSearch
	}
	return out, warnings, nil
}

func (s *MatchingService) search(
	ctx context.Context,
	gateway domain.CatalogGateway,
	mp domain.Platform,
	query domain.CatalogQuery,
) ([]domain.ProductRecord, error) {
	var recs []domain.ProductRecord
	err := s.withRetry(ctx, mp, func(ctx context.Context) error {
		var err error
		recs, err = gateway.Search(ctx, query, s.config.SearchLimit)
		return err
	})
	return recs, err
}

// withRetry retries retryable catalog errors with exponential backoff up to MaxAttempts
func (s *MatchingService) withRetry(ctx context.Context, mp domain.Platform, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !domain.IsRetryable(err) {
			return err
		}
		lastErr = err
		if attempt == s.config.MaxAttempts {
			break
		}

		backoff := exponentialBackoff(s.config.BaseBackoff, attempt)
		s.metrics.CatalogRetries.WithLabelValues(string(mp)).Inc()
		s.log.Warn("retrying catalog call",
			"marketplace", mp,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if err := s.sleep(ctx, backoff); err != nil {
			return err
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", s.config.MaxAttempts, lastErr)
}

// hasExactHit reports whether any record shares a trade identifier with the source
func hasExactHit(source domain.NormalizedProduct, recs []domain.ProductRecord) bool {
	for i := range recs {
		if MatchIdentifiers(source, Normalize(recs[i])) != nil {
			return true
		}
	}
	return false
}

// exponentialBackoff returns base * 2^(attempt-1)
func exponentialBackoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<(attempt-1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
