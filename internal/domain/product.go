package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Platform identifies the marketplace or social platform a product was observed on
type Platform string

const (
	PlatformAmazon    Platform = "amazon"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformTarget    Platform = "target"
	PlatformWalmart   Platform = "walmart"
	PlatformShopMy    Platform = "shopmy"
	PlatformOther     Platform = "other"
)

var knownPlatforms = map[Platform]bool{
	PlatformAmazon: true, PlatformInstagram: true, PlatformTikTok: true,
	PlatformTarget: true, PlatformWalmart: true, PlatformShopMy: true, PlatformOther: true,
}

// ParsePlatform converts a user supplied string into a Platform
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !knownPlatforms[p] {
		return "", fmt.Errorf("%w: unknown platform %q", ErrInvalidRequest, s)
	}
	return p, nil
}

// Valid reports whether p is one of the enumerated platforms
func (p Platform) Valid() bool {
	return knownPlatforms[p]
}

// IdentifierType is a kind of trade identifier
type IdentifierType string

const (
	IdentifierGTIN IdentifierType = "gtin"
	IdentifierUPC  IdentifierType = "upc"
	IdentifierEAN  IdentifierType = "ean"
	IdentifierASIN IdentifierType = "asin"
	IdentifierSKU  IdentifierType = "sku"
	IdentifierISBN IdentifierType = "isbn"
	IdentifierMPN  IdentifierType = "mpn"
)

// IdentifierTypes lists every identifier type in matching precedence order
var IdentifierTypes = []IdentifierType{
	IdentifierGTIN, IdentifierUPC, IdentifierEAN, IdentifierASIN,
	IdentifierSKU, IdentifierISBN, IdentifierMPN,
}

// Identifiers maps an identifier type to zero or more codes
type Identifiers map[IdentifierType][]string

// Add appends a code of the given type
func (ids Identifiers) Add(t IdentifierType, code string) {
	ids[t] = append(ids[t], code)
}

// First returns the first code of the given type, or "" when absent
func (ids Identifiers) First(t IdentifierType) string {
	if len(ids[t]) == 0 {
		return ""
	}
	return ids[t][0]
}

// Price is an amount in an ISO 4217 currency
type Price struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// ProductRecord is one observation of a product on one platform
type ProductRecord struct {
	ID             uuid.UUID       `json:"id,omitempty"`
	AccountID      string          `json:"accountId,omitempty"`
	SourcePlatform Platform        `json:"sourcePlatform"`
	SourceID       string          `json:"sourceId"`
	URL            string          `json:"url,omitempty"`
	Title          string          `json:"title,omitempty"`
	Brand          string          `json:"brand,omitempty"`
	Manufacturer   string          `json:"manufacturer,omitempty"`
	Category       string          `json:"category,omitempty"`
	Identifiers    Identifiers     `json:"identifiers,omitempty"`
	Price          *Price          `json:"price,omitempty"`
	Images         []string        `json:"images,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// Validate checks the fields a candidate must carry to be scored and persisted
func (p *ProductRecord) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil record", ErrMalformedCandidate)
	}
	if strings.TrimSpace(p.SourceID) == "" {
		return fmt.Errorf("%w: missing source id", ErrMalformedCandidate)
	}
	if !p.SourcePlatform.Valid() {
		return fmt.Errorf("%w: unknown platform %q", ErrMalformedCandidate, p.SourcePlatform)
	}
	if p.Price != nil {
		if p.Price.Amount.IsNegative() {
			return fmt.Errorf("%w: negative price %s", ErrMalformedCandidate, p.Price.Amount)
		}
		if strings.TrimSpace(p.Price.Currency) == "" {
			return fmt.Errorf("%w: price without currency", ErrMalformedCandidate)
		}
	}
	return nil
}

// NormalizedProduct is the comparable form of a ProductRecord produced by the normalizer
type NormalizedProduct struct {
	TitleTokens   []string
	VariantTokens []string
	BrandTokens   []string
	Category      string
	Identifiers   Identifiers
	Price         *Price
}

// AsRecord renders the normalized form back into a record so it can be normalized again
func (n NormalizedProduct) AsRecord() ProductRecord {
	title := strings.Join(append(append([]string{}, n.TitleTokens...), n.VariantTokens...), " ")
	ids := make(Identifiers, len(n.Identifiers))
	for t, codes := range n.Identifiers {
		ids[t] = append([]string(nil), codes...)
	}
	return ProductRecord{
		Title:       title,
		Brand:       strings.Join(n.BrandTokens, " "),
		Category:    n.Category,
		Identifiers: ids,
		Price:       n.Price,
	}
}
