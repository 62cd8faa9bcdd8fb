package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/creatorpulse/backend/internal/domain"
	"github.com/creatorpulse/backend/internal/platform/logger"
)

// ProductService ingests and serves source product observations
type ProductService struct {
	products domain.ProductRepository
	log      *logger.Logger
}

// NewProductService creates a new product service
func NewProductService(products domain.ProductRepository, log *logger.Logger) *ProductService {
	if log == nil {
		log = logger.NewNop()
	}
	return &ProductService{products: products, log: log.With("component", "ProductService")}
}

// Ingest validates and stores an observation. Re-ingesting the same (account, platform,
// source id) refreshes the stored raw payload and images only.
func (s *ProductService) Ingest(ctx context.Context, record *domain.ProductRecord) (*domain.ProductRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: product is required", domain.ErrInvalidRequest)
	}
	record.SourceID = strings.TrimSpace(record.SourceID)
	record.AccountID = strings.TrimSpace(record.AccountID)
	if record.Price != nil {
		record.Price.Currency = strings.ToUpper(strings.TrimSpace(record.Price.Currency))
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if strings.TrimSpace(record.Title) == "" && len(record.Identifiers) == 0 {
		return nil, fmt.Errorf("%w: a product needs a title or at least one identifier", domain.ErrInvalidRequest)
	}

	stored, err := s.products.Ingest(ctx, record)
	if err != nil {
		return nil, err
	}
	s.log.Info("product ingested",
		"id", stored.ID,
		"platform", stored.SourcePlatform,
		"source_id", stored.SourceID,
	)
	return stored, nil
}

func (s *ProductService) Get(ctx context.Context, id uuid.UUID) (*domain.ProductRecord, error) {
	return s.products.Get(ctx, id)
}

// Delete removes a product that no match references
func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("product deleted", "id", id)
	return nil
}
