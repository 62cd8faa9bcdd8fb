package usecase

import (
	"regexp"
	"strings"

	"github.com/creatorpulse/backend/internal/domain"
)

const maxQueryLength = 100

// Matches pack/count tokens left behind by normalization like "12 pack", "6 ct", "pack of 6"
var packCountPattern = regexp.MustCompile(`\b\d+\s*(?:pack|pk|count|ct)\b|\bpack\s+of\s+\d+\b`)

// queryNoiseWords narrow nothing down on a marketplace search page
var queryNoiseWords = map[string]bool{
	"premium": true, "select": true, "quality": true, "great": true, "value": true,
	"bonus": true, "improved": true, "exclusive": true, "limited": true, "edition": true,
	"pack": true, "count": true, "ct": true, "pk": true, "set": true, "bundle": true,
	"item": true, "product": true,
}

// BuildSearchQuery turns a normalized product into a keyword query for a catalog search.
// Brand tokens lead unless the title already carries them. Variant tokens are left out so
// the search stays wide enough to find every variant of the listing.
func BuildSearchQuery(p domain.NormalizedProduct) string {
	title := packCountPattern.ReplaceAllString(strings.Join(p.TitleTokens, " "), " ")

	var words []string
	inTitle := toSet(strings.Fields(title))
	for _, b := range p.BrandTokens {
		if !inTitle[b] {
			words = append(words, b)
		}
	}
	for _, w := range strings.Fields(title) {
		if queryNoiseWords[w] {
			continue
		}
		words = append(words, w)
	}

	query := strings.Join(words, " ")
	if len(query) > maxQueryLength {
		query = query[:maxQueryLength]
		// cut at word boundary
		if lastSpace := strings.LastIndex(query, " "); lastSpace > maxQueryLength/2 {
			query = query[:lastSpace]
		}
	}
	return strings.TrimSpace(query)
}
