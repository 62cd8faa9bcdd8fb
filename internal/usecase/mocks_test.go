package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/creatorpulse/backend/internal/domain"
)

// mockMatchRepository is an in-memory domain.MatchRepository honoring the natural key
type mockMatchRepository struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*domain.Match
	now       func() time.Time
	upsertErr error
}

func newMockMatchRepository() *mockMatchRepository {
	return &mockMatchRepository{
		rows: make(map[uuid.UUID]*domain.Match),
		now:  time.Now,
	}
}

func (m *mockMatchRepository) Upsert(ctx context.Context, match *domain.Match) (*domain.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}

	for _, row := range m.rows {
		if row.SourceProductID == match.SourceProductID &&
			row.TargetMarketplace == match.TargetMarketplace &&
			row.ExternalID == match.ExternalID {
			if row.MatchStatus == domain.StatusPending {
				row.ConfidenceScore = match.ConfidenceScore
				row.MatchMethod = match.MatchMethod
				row.Reason = match.Reason
				row.ExternalURL = match.ExternalURL
				row.UpdatedAt = m.now()
			}
			cp := *row
			return &cp, nil
		}
	}

	row := *match
	row.CreatedAt = m.now()
	row.UpdatedAt = row.CreatedAt
	m.rows[row.ID] = &row
	cp := row
	return &cp, nil
}

func (m *mockMatchRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *mockMatchRepository) Transition(ctx context.Context, id uuid.UUID, fn func(*domain.Match) error) (*domain.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *row
	if err := fn(&cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = m.now()
	*row = cp
	return &cp, nil
}

func (m *mockMatchRepository) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.MatchStatus == domain.StatusPending && row.UpdatedAt.Before(cutoff) {
			row.MatchStatus = domain.StatusExpired
			n++
		}
	}
	return n, nil
}

func (m *mockMatchRepository) ListBySource(ctx context.Context, sourceProductID uuid.UUID) ([]*domain.Match, error) {
	return m.list(sourceProductID, "")
}

func (m *mockMatchRepository) ListConfirmed(ctx context.Context, sourceProductID uuid.UUID) ([]*domain.Match, error) {
	return m.list(sourceProductID, domain.StatusConfirmed)
}

func (m *mockMatchRepository) list(sourceProductID uuid.UUID, status domain.MatchStatus) ([]*domain.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Match
	for _, row := range m.rows {
		if row.SourceProductID != sourceProductID {
			continue
		}
		if status != "" && row.MatchStatus != status {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (m *mockMatchRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// mockProductRepository serves a fixed set of products
type mockProductRepository struct {
	products map[uuid.UUID]*domain.ProductRecord
}

func newMockProductRepository(records ...*domain.ProductRecord) *mockProductRepository {
	m := &mockProductRepository{products: make(map[uuid.UUID]*domain.ProductRecord)}
	for _, r := range records {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		m.products[r.ID] = r
	}
	return m
}

func (m *mockProductRepository) Ingest(ctx context.Context, record *domain.ProductRecord) (*domain.ProductRecord, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	m.products[record.ID] = record
	return record, nil
}

func (m *mockProductRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ProductRecord, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepository) GetMany(ctx context.Context, ids []uuid.UUID) ([]*domain.ProductRecord, error) {
	var out []*domain.ProductRecord
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.products, id)
	return nil
}

// mockCatalogGateway returns scripted errors first, then its records
type mockCatalogGateway struct {
	mu          sync.Mutex
	records     []domain.ProductRecord
	byID        map[string]*domain.ProductRecord
	searchErrs  []error
	getErrs     []error
	searchCalls int
	getCalls    int
	queries     []domain.CatalogQuery
}

func (m *mockCatalogGateway) Search(ctx context.Context, query domain.CatalogQuery, limit int) ([]domain.ProductRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	m.queries = append(m.queries, query)
	if len(m.searchErrs) > 0 {
		err := m.searchErrs[0]
		m.searchErrs = m.searchErrs[1:]
		return nil, err
	}
	return append([]domain.ProductRecord(nil), m.records...), nil
}

func (m *mockCatalogGateway) GetByID(ctx context.Context, externalID string) (*domain.ProductRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if len(m.getErrs) > 0 {
		err := m.getErrs[0]
		m.getErrs = m.getErrs[1:]
		return nil, err
	}
	return m.byID[externalID], nil
}

func (m *mockCatalogGateway) calls() (search, get int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchCalls, m.getCalls
}

// countingScorer records how often fuzzy scoring ran
type countingScorer struct {
	mu     sync.Mutex
	inner  Scorer
	calls  int
	result *domain.SubScores
}

func (c *countingScorer) Score(a, b domain.NormalizedProduct) domain.SubScores {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.result != nil {
		return *c.result
	}
	return c.inner.Score(a, b)
}

// panicScorer fails on every call
type panicScorer struct{}

func (panicScorer) Score(a, b domain.NormalizedProduct) domain.SubScores {
	panic("scorer exploded")
}
