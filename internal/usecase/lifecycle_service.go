package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/creatorpulse/backend/internal/domain"
	"github.com/creatorpulse/backend/internal/platform/logger"
	"github.com/creatorpulse/backend/internal/platform/metrics"
)

// LifecycleService persists aggregator output and moves matches through their status machine
type LifecycleService struct {
	matches    domain.MatchRepository
	pendingTTL time.Duration
	now        func() time.Time
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// NewLifecycleService creates a lifecycle service. pendingTTL is the default age after which
// pending matches expire when ExpireStale is called without an explicit ttl.
func NewLifecycleService(
	matches domain.MatchRepository,
	pendingTTL time.Duration,
	log *logger.Logger,
	m *metrics.Metrics,
) *LifecycleService {
	if pendingTTL <= 0 {
		pendingTTL = 14 * 24 * time.Hour
	}
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &LifecycleService{
		matches:    matches,
		pendingTTL: pendingTTL,
		now:        time.Now,
		log:        log.With("component", "LifecycleService"),
		metrics:    m,
	}
}

// UpsertMatch persists a candidate keyed on (source product, marketplace, external id).
// A pending row is refreshed in place; a row a human already decided keeps its status and score.
func (s *LifecycleService) UpsertMatch(ctx context.Context, candidate domain.MatchCandidate) (*domain.Match, error) {
	if candidate.Source == nil || candidate.Target == nil {
		return nil, fmt.Errorf("%w: candidate without source or target", domain.ErrInvalidRequest)
	}
	if candidate.Source.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: source product is not persisted", domain.ErrInvalidRequest)
	}
	if candidate.Method.IsExact() && candidate.Confidence != exactIdentifierScore {
		return nil, fmt.Errorf("%w: %s match must carry confidence %d, got %d",
			domain.ErrInvalidRequest, candidate.Method, exactIdentifierScore, candidate.Confidence)
	}

	match := &domain.Match{
		ID:                uuid.New(),
		SourceProductID:   candidate.Source.ID,
		TargetMarketplace: candidate.Target.SourcePlatform,
		ExternalID:        candidate.Target.SourceID,
		ExternalURL:       candidate.Target.URL,
		ConfidenceScore:   candidate.Confidence,
		MatchMethod:       candidate.Method,
		MatchStatus:       domain.StatusPending,
		Reason:            candidate.Reason,
	}

	stored, err := s.matches.Upsert(ctx, match)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert match: %w", err)
	}

	s.metrics.MatchesUpserted.WithLabelValues(string(stored.TargetMarketplace), string(stored.MatchMethod)).Inc()
	s.log.Debug("upserted match",
		"match_id", stored.ID,
		"external_id", stored.ExternalID,
		"marketplace", stored.TargetMarketplace,
		"confidence", stored.ConfidenceScore,
		"status", stored.MatchStatus,
	)
	return stored, nil
}

// Confirm marks a match as confirmed. Confirming an already confirmed match is a no-op success.
func (s *LifecycleService) Confirm(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	return s.transition(ctx, id, domain.EventConfirm, "")
}

// Reject records a human rejection of a pending match
func (s *LifecycleService) Reject(ctx context.Context, id uuid.UUID, reason string) (*domain.Match, error) {
	return s.transition(ctx, id, domain.EventReject, reason)
}

// Revoke overrides an earlier confirmation
func (s *LifecycleService) Revoke(ctx context.Context, id uuid.UUID, reason string) (*domain.Match, error) {
	return s.transition(ctx, id, domain.EventRevoke, reason)
}

// MarkUnavailable records that the external listing disappeared
func (s *LifecycleService) MarkUnavailable(ctx context.Context, id uuid.UUID, reason string) (*domain.Match, error) {
	return s.transition(ctx, id, domain.EventUnavailable, reason)
}

// Expire moves a single pending match to expired
func (s *LifecycleService) Expire(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	return s.transition(ctx, id, domain.EventExpire, "")
}

// ExpireStale expires every pending match not refreshed within ttl and returns how many moved.
// A ttl <= 0 uses the configured pending TTL.
func (s *LifecycleService) ExpireStale(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = s.pendingTTL
	}
	cutoff := s.now().Add(-ttl)

	n, err := s.matches.ExpirePending(ctx, cutoff)
	if err != nil {
		s.metrics.Transitions.WithLabelValues(string(domain.EventExpire), "error").Inc()
		return 0, fmt.Errorf("failed to expire stale matches: %w", err)
	}

	s.metrics.Transitions.WithLabelValues(string(domain.EventExpire), "ok").Add(float64(n))
	s.log.Info("expired stale matches", "count", n, "cutoff", cutoff)
	return n, nil
}

// ListBySource returns every match recorded for a source product
func (s *LifecycleService) ListBySource(ctx context.Context, sourceProductID uuid.UUID) ([]*domain.Match, error) {
	return s.matches.ListBySource(ctx, sourceProductID)
}

// ListConfirmed returns the public contract of every confirmed match for a source product
func (s *LifecycleService) ListConfirmed(ctx context.Context, sourceProductID uuid.UUID) ([]domain.ConfirmedMatch, error) {
	matches, err := s.matches.ListConfirmed(ctx, sourceProductID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ConfirmedMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Public())
	}
	return out, nil
}

func (s *LifecycleService) transition(
	ctx context.Context,
	id uuid.UUID,
	event domain.MatchEvent,
	reason string,
) (*domain.Match, error) {
	updated, err := s.matches.Transition(ctx, id, func(m *domain.Match) error {
		return m.Apply(event, reason)
	})
	if err != nil {
		s.metrics.Transitions.WithLabelValues(string(event), outcomeLabel(err)).Inc()
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.log.Warn("rejected transition", "match_id", id, "event", event, "error", err)
		}
		return nil, err
	}

	s.metrics.Transitions.WithLabelValues(string(event), "ok").Inc()
	s.log.Info("match transitioned", "match_id", id, "event", event, "status", updated.MatchStatus)
	return updated, nil
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	default:
		return "error"
	}
}
