package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/creatorpulse/backend/internal/domain"
	"github.com/creatorpulse/backend/internal/platform/logger"
)

var matchNaturalKey = []clause.Column{
	{Name: "source_product_id"},
	{Name: "target_marketplace"},
	{Name: "external_id"},
}

type matchRepository struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

// NewMatchRepository creates a domain.MatchRepository on db
func NewMatchRepository(db *gorm.DB, baseLog *logger.Logger) domain.MatchRepository {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &matchRepository{
		db:  db,
		log: baseLog.With("repo", "MatchRepository"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Upsert is a single INSERT .. ON CONFLICT DO UPDATE guarded by match_status = 'pending', so a
// concurrent run can never overwrite a human decision. The stored row is re-read afterwards.
func (r *matchRepository) Upsert(ctx context.Context, match *domain.Match) (*domain.Match, error) {
	row := matchFromDomain(match)
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	now := r.now()
	row.CreatedAt = now
	row.UpdatedAt = now

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: matchNaturalKey,
			DoUpdates: clause.AssignmentColumns([]string{
				"confidence_score",
				"match_method",
				"reason",
				"external_url",
				"updated_at",
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Eq{
					Column: clause.Column{Table: row.TableName(), Name: "match_status"},
					Value:  string(domain.StatusPending),
				},
			}},
		}).
		Create(row).Error
	switch {
	case isForeignKeyViolation(err):
		return nil, fmt.Errorf("%w: source product %s", domain.ErrNotFound, row.SourceProductID)
	case isCheckViolation(err):
		return nil, fmt.Errorf("%w: match %s/%s has status %q, method %q, confidence %d",
			domain.ErrInvalidRequest, row.TargetMarketplace, row.ExternalID,
			row.MatchStatus, row.MatchMethod, row.ConfidenceScore)
	case err != nil:
		return nil, fmt.Errorf("failed to upsert match: %w", err)
	}

	var stored MatchModel
	err = r.db.WithContext(ctx).
		Where("source_product_id = ? AND target_marketplace = ? AND external_id = ?",
			row.SourceProductID, row.TargetMarketplace, row.ExternalID).
		First(&stored).Error
	if err != nil {
		return nil, fmt.Errorf("failed to reload match: %w", err)
	}
	return stored.toDomain(), nil
}

func (r *matchRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	var row MatchModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: match %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// Transition locks the row (FOR UPDATE; a no-op on SQLite), hands it to fn and saves the new
// status and reason in the same transaction. Errors from fn roll back and are returned as is.
func (r *matchRepository) Transition(ctx context.Context, id uuid.UUID, fn func(*domain.Match) error) (*domain.Match, error) {
	var updated *domain.Match
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row MatchModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: match %s", domain.ErrNotFound, id)
		}
		if err != nil {
			return err
		}

		m := row.toDomain()
		if err := fn(m); err != nil {
			return err
		}
		m.UpdatedAt = r.now()

		err = tx.Model(&MatchModel{}).Where("id = ?", id).Updates(map[string]interface{}{
			"match_status": string(m.MatchStatus),
			"reason":       m.Reason,
			"updated_at":   m.UpdatedAt,
		}).Error
		if err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ExpirePending moves every pending match last touched before cutoff to expired
func (r *matchRepository) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&MatchModel{}).
		Where("match_status = ? AND updated_at < ?", string(domain.StatusPending), cutoff.UTC()).
		Updates(map[string]interface{}{
			"match_status": string(domain.StatusExpired),
			"updated_at":   r.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire pending matches: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		r.log.Info("expired pending matches", "count", res.RowsAffected, "cutoff", cutoff)
	}
	return res.RowsAffected, nil
}

func (r *matchRepository) ListBySource(ctx context.Context, sourceProductID uuid.UUID) ([]*domain.Match, error) {
	return r.list(ctx, r.db.Where("source_product_id = ?", sourceProductID))
}

func (r *matchRepository) ListConfirmed(ctx context.Context, sourceProductID uuid.UUID) ([]*domain.Match, error) {
	return r.list(ctx, r.db.Where("source_product_id = ? AND match_status = ?",
		sourceProductID, string(domain.StatusConfirmed)))
}

func (r *matchRepository) list(ctx context.Context, q *gorm.DB) ([]*domain.Match, error) {
	var rows []MatchModel
	err := q.WithContext(ctx).
		Order("confidence_score DESC").
		Order("target_marketplace ASC").
		Order("external_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Match, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
