package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CatalogQuery describes a catalog search. Identifier takes precedence over keywords.
type CatalogQuery struct {
	Keywords       string
	IdentifierType IdentifierType
	Identifier     string
	Category       string
}

// CatalogGateway fetches candidate records from one external marketplace catalog
type CatalogGateway interface {
	Search(ctx context.Context, query CatalogQuery, limit int) ([]ProductRecord, error)
	// GetByID returns nil, nil when the listing does not exist
	GetByID(ctx context.Context, externalID string) (*ProductRecord, error)
}

// ProductRepository persists ingested product observations
type ProductRepository interface {
	Ingest(ctx context.Context, record *ProductRecord) (*ProductRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*ProductRecord, error)
	GetMany(ctx context.Context, ids []uuid.UUID) ([]*ProductRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MatchRepository persists match records keyed by UUID with a unique natural key
type MatchRepository interface {
	// Upsert inserts the match or, when the natural key exists and the row is still pending,
	// refreshes its score, method and reason. It returns the stored row.
	Upsert(ctx context.Context, match *Match) (*Match, error)
	Get(ctx context.Context, id uuid.UUID) (*Match, error)
	// Transition loads the row under a lock, lets fn mutate it and saves it in one transaction.
	Transition(ctx context.Context, id uuid.UUID, fn func(*Match) error) (*Match, error)
	ExpirePending(ctx context.Context, cutoff time.Time) (int64, error)
	ListBySource(ctx context.Context, sourceProductID uuid.UUID) ([]*Match, error)
	ListConfirmed(ctx context.Context, sourceProductID uuid.UUID) ([]*Match, error)
}
