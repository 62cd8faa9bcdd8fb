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

type productRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewProductRepository creates a domain.ProductRepository on db
func NewProductRepository(db *gorm.DB, baseLog *logger.Logger) domain.ProductRepository {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &productRepository{db: db, log: baseLog.With("repo", "ProductRepository")}
}

// Ingest inserts the observation or, when (account, platform, source id) already exists,
// refreshes only its raw payload and images. The stored row is returned.
func (r *productRepository) Ingest(ctx context.Context, record *domain.ProductRecord) (*domain.ProductRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: nil product", domain.ErrInvalidRequest)
	}
	row, err := productFromDomain(record)
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}, {Name: "source_platform"}, {Name: "source_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"raw",
				"images",
				"updated_at",
			}),
		}).
		Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to ingest product: %w", err)
	}

	var stored ProductModel
	err = r.db.WithContext(ctx).
		Where("account_id = ? AND source_platform = ? AND source_id = ?", row.AccountID, row.SourcePlatform, row.SourceID).
		First(&stored).Error
	if err != nil {
		return nil, fmt.Errorf("failed to reload product: %w", err)
	}
	return stored.toDomain()
}

func (r *productRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ProductRecord, error) {
	var row ProductModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// GetMany returns the products that exist among ids, in no particular order
func (r *productRepository) GetMany(ctx context.Context, ids []uuid.UUID) ([]*domain.ProductRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []ProductModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.ProductRecord, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Delete removes a product that no match references
func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&MatchModel{}).Where("source_product_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: %d matches reference product %s", domain.ErrProductReferenced, refs, id)
		}

		// a match inserted after the count still trips the foreign key
		res := tx.Where("id = ?", id).Delete(&ProductModel{})
		if isForeignKeyViolation(res.Error) {
			return fmt.Errorf("%w: product %s", domain.ErrProductReferenced, id)
		}
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
		}
		r.log.Debug("product deleted", "id", id)
		return nil
	})
}
