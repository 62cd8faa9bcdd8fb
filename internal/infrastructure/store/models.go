package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/creatorpulse/backend/internal/domain"
)

// ProductModel is a row of the products table
type ProductModel struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey"`
	AccountID      string              `gorm:"type:varchar(128);not null;default:'';uniqueIndex:idx_products_natural,priority:1"`
	SourcePlatform string              `gorm:"type:varchar(32);not null;uniqueIndex:idx_products_natural,priority:2"`
	SourceID       string              `gorm:"type:varchar(255);not null;uniqueIndex:idx_products_natural,priority:3"`
	URL            string              `gorm:"type:text"`
	Title          string              `gorm:"type:text"`
	Brand          string              `gorm:"type:varchar(255)"`
	Manufacturer   string              `gorm:"type:varchar(255)"`
	Category       string              `gorm:"type:varchar(255)"`
	Identifiers    datatypes.JSON
	PriceAmount    decimal.NullDecimal `gorm:"type:numeric(18,4)"`
	PriceCurrency  string              `gorm:"type:varchar(3)"`
	Images         datatypes.JSON
	Raw            datatypes.JSON
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ProductModel) TableName() string { return "products" }

// MatchModel is a row of the matches table
type MatchModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	SourceProductID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_matches_natural,priority:1"`
	TargetMarketplace string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_matches_natural,priority:2"`
	ExternalID        string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_matches_natural,priority:3"`
	ExternalURL       string    `gorm:"type:text"`
	ConfidenceScore   int       `gorm:"not null;check:chk_matches_confidence,confidence_score BETWEEN 0 AND 100"`
	MatchMethod       string    `gorm:"type:varchar(32);not null;check:chk_matches_method,match_method IN ('exact_gtin','exact_upc','exact_ean','exact_asin','brand_title','fuzzy_title','category_price','manual')"`
	MatchStatus       string    `gorm:"type:varchar(16);not null;index;check:chk_matches_status,match_status IN ('pending','confirmed','rejected','expired','unavailable')"`
	Reason            string    `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time `gorm:"index"`

	// a product cannot be deleted while a match points at it
	SourceProduct *ProductModel `gorm:"foreignKey:SourceProductID;references:ID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
}

func (MatchModel) TableName() string { return "matches" }

func productFromDomain(p *domain.ProductRecord) (*ProductModel, error) {
	row := &ProductModel{
		ID:             p.ID,
		AccountID:      p.AccountID,
		SourcePlatform: string(p.SourcePlatform),
		SourceID:       p.SourceID,
		URL:            p.URL,
		Title:          p.Title,
		Brand:          p.Brand,
		Manufacturer:   p.Manufacturer,
		Category:       p.Category,
	}
	if p.Price != nil {
		row.PriceAmount = decimal.NullDecimal{Decimal: p.Price.Amount, Valid: true}
		row.PriceCurrency = p.Price.Currency
	}

	var err error
	if row.Identifiers, err = toJSON(p.Identifiers); err != nil {
		return nil, fmt.Errorf("failed to encode identifiers: %w", err)
	}
	if row.Images, err = toJSON(p.Images); err != nil {
		return nil, fmt.Errorf("failed to encode images: %w", err)
	}
	if len(p.Raw) > 0 {
		if !json.Valid(p.Raw) {
			return nil, fmt.Errorf("%w: raw payload is not valid JSON", domain.ErrInvalidRequest)
		}
		row.Raw = datatypes.JSON(p.Raw)
	}
	return row, nil
}

func (m *ProductModel) toDomain() (*domain.ProductRecord, error) {
	p := &domain.ProductRecord{
		ID:             m.ID,
		AccountID:      m.AccountID,
		SourcePlatform: domain.Platform(m.SourcePlatform),
		SourceID:       m.SourceID,
		URL:            m.URL,
		Title:          m.Title,
		Brand:          m.Brand,
		Manufacturer:   m.Manufacturer,
		Category:       m.Category,
	}
	if m.PriceAmount.Valid {
		p.Price = &domain.Price{Amount: m.PriceAmount.Decimal, Currency: m.PriceCurrency}
	}
	if len(m.Identifiers) > 0 {
		if err := json.Unmarshal(m.Identifiers, &p.Identifiers); err != nil {
			return nil, fmt.Errorf("failed to decode identifiers of product %s: %w", m.ID, err)
		}
	}
	if len(m.Images) > 0 {
		if err := json.Unmarshal(m.Images, &p.Images); err != nil {
			return nil, fmt.Errorf("failed to decode images of product %s: %w", m.ID, err)
		}
	}
	if len(m.Raw) > 0 {
		p.Raw = json.RawMessage(m.Raw)
	}
	return p, nil
}

func matchFromDomain(m *domain.Match) *MatchModel {
	return &MatchModel{
		ID:                m.ID,
		SourceProductID:   m.SourceProductID,
		TargetMarketplace: string(m.TargetMarketplace),
		ExternalID:        m.ExternalID,
		ExternalURL:       m.ExternalURL,
		ConfidenceScore:   m.ConfidenceScore,
		MatchMethod:       string(m.MatchMethod),
		MatchStatus:       string(m.MatchStatus),
		Reason:            m.Reason,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func (m *MatchModel) toDomain() *domain.Match {
	return &domain.Match{
		ID:                m.ID,
		SourceProductID:   m.SourceProductID,
		TargetMarketplace: domain.Platform(m.TargetMarketplace),
		ExternalID:        m.ExternalID,
		ExternalURL:       m.ExternalURL,
		ConfidenceScore:   m.ConfidenceScore,
		MatchMethod:       domain.MatchMethod(m.MatchMethod),
		MatchStatus:       domain.MatchStatus(m.MatchStatus),
		Reason:            m.Reason,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// toJSON encodes v, keeping empty values as SQL NULL
func toJSON(v interface{}) (datatypes.JSON, error) {
	switch t := v.(type) {
	case domain.Identifiers:
		if len(t) == 0 {
			return nil, nil
		}
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
