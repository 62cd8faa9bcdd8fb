package usecase

import (
	"github.com/creatorpulse/backend/internal/domain"
)

const (
	exactIdentifierScore  = 100
	sellerIdentifierScore = 90
)

// globalIdentifierTypes are globally unique codes, checked in precedence order
var globalIdentifierTypes = []domain.IdentifierType{
	domain.IdentifierGTIN,
	domain.IdentifierUPC,
	domain.IdentifierEAN,
	domain.IdentifierASIN,
}

// sellerIdentifierTypes are seller-scoped codes accepted as a weaker exact signal
var sellerIdentifierTypes = []domain.IdentifierType{
	domain.IdentifierSKU,
	domain.IdentifierISBN,
	domain.IdentifierMPN,
}

// IdentifierMatch is the result of an exact identifier comparison
type IdentifierMatch struct {
	Type  domain.IdentifierType
	Code  string
	Score int
}

// Method returns the match method tag for this identifier match
func (m IdentifierMatch) Method() domain.MatchMethod {
	switch m.Type {
	case domain.IdentifierGTIN:
		return domain.MethodExactGTIN
	case domain.IdentifierUPC:
		return domain.MethodExactUPC
	case domain.IdentifierEAN:
		return domain.MethodExactEAN
	case domain.IdentifierASIN:
		return domain.MethodExactASIN
	default:
		return domain.MethodManual
	}
}

// MatchIdentifiers returns the highest-precedence identifier type for which a and b share a code.
// A nil result means "fall through to fuzzy scoring", not an error.
//
// Seller-scoped codes (SKU, ISBN, MPN) only count when no global identifier matched and no
// global identifier type is present on both sides with disagreeing codes.
func MatchIdentifiers(a, b domain.NormalizedProduct) *IdentifierMatch {
	conflict := false
	for _, t := range globalIdentifierTypes {
		if code, ok := sharedCode(a.Identifiers[t], b.Identifiers[t]); ok {
			return &IdentifierMatch{Type: t, Code: code, Score: exactIdentifierScore}
		}
		if len(a.Identifiers[t]) > 0 && len(b.Identifiers[t]) > 0 {
			conflict = true
		}
	}
	if conflict {
		return nil
	}

	for _, t := range sellerIdentifierTypes {
		if code, ok := sharedCode(a.Identifiers[t], b.Identifiers[t]); ok {
			return &IdentifierMatch{Type: t, Code: code, Score: sellerIdentifierScore}
		}
	}
	return nil
}

// sharedCode returns the first code of a that also appears in b
func sharedCode(a, b []string) (string, bool) {
	if len(a) == 0 || len(b) == 0 {
		return "", false
	}
	set := make(map[string]bool, len(b))
	for _, code := range b {
		set[code] = true
	}
	for _, code := range a {
		if set[code] {
			return code, true
		}
	}
	return "", false
}

// identifierRank orders candidates for tie-breaking; lower ranks first
func identifierRank(t domain.IdentifierType) int {
	for i, it := range domain.IdentifierTypes {
		if it == t {
			return i
		}
	}
	return len(domain.IdentifierTypes)
}
