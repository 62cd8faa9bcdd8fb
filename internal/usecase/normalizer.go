package usecase

import (
	"regexp"
	"sort"
	"strings"

	"github.com/creatorpulse/backend/internal/domain"
)

// Package-level compiled regex patterns for performance
var (
	nonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9]+`)
	multipleSpacesRegex  = regexp.MustCompile(`\s+`)

	// Matches quantity variants like "40oz", "40 oz", "16.9 fl. oz", "500ml", "2 kg"
	volumePattern = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:fl\.?\s*)?(oz|ml|kg|g)\b`)
)

// stopWords are removed from titles and brands as whole tokens
var stopWords = map[string]bool{
	// Articles and conjunctions
	"a": true, "an": true, "the": true, "and": true, "or": true, "nor": true, "but": true,
	// Prepositions
	"of": true, "in": true, "on": true, "at": true, "to": true, "for": true,
	"with": true, "by": true, "from": true,
	// Marketing noise
	"new": true, "brand": true, "official": true, "authentic": true, "genuine": true,
	"free": true, "shipping": true, "sale": true, "hot": true, "best": true, "seller": true,
	"fl": true,
}

// sizeTokens are apparel-style sizes split out as variants
var sizeTokens = map[string]bool{
	"small": true, "medium": true, "large": true, "xl": true, "xxl": true,
	"s": true, "m": true, "l": true,
}

// colorTokens are enumerated color names split out as variants
var colorTokens = map[string]bool{
	"black": true, "white": true, "red": true, "blue": true, "green": true,
	"yellow": true, "orange": true, "purple": true, "pink": true, "brown": true,
	"gray": true, "grey": true, "silver": true, "gold": true, "beige": true,
	"navy": true, "teal": true, "ivory": true, "cream": true, "tan": true,
	"maroon": true, "turquoise": true, "lavender": true, "charcoal": true, "rose": true,
}

// Normalize canonicalizes a product record into its comparable form.
// It never fails: absent fields become empty slices and strings.
func Normalize(record domain.ProductRecord) domain.NormalizedProduct {
	title, volumes := extractVolumes(strings.ToLower(record.Title))
	titleTokens, variants := splitVariants(canonicalText(title), volumes)
	// dropping punctuation, stop words and variants can bring a quantity next to its unit
	// ("40 - oz", "40 of oz", "40 black oz"); repeat until none is left in the tokens
	for {
		rest, more := extractVolumes(strings.Join(titleTokens, " "))
		if len(more) == 0 {
			break
		}
		titleTokens, variants = splitVariants(rest, append(variants, more...))
	}
	brandTokens := tokenizeWords(canonicalText(record.Brand))

	return domain.NormalizedProduct{
		TitleTokens:   titleTokens,
		VariantTokens: variants,
		BrandTokens:   brandTokens,
		Category:      strings.Join(strings.Fields(strings.ToLower(record.Category)), " "),
		Identifiers:   normalizeIdentifiers(record.Identifiers),
		Price:         record.Price,
	}
}

// canonicalText lower-cases s, replaces non-alphanumerics with spaces and collapses whitespace
func canonicalText(s string) string {
	s = nonAlphanumericRegex.ReplaceAllString(strings.ToLower(s), " ")
	s = multipleSpacesRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// extractVolumes removes quantity patterns from lower-cased text before punctuation is
// stripped, so decimals survive. Each match becomes a compact token such as "16.9oz".
func extractVolumes(text string) (string, []string) {
	var volumes []string
	text = volumePattern.ReplaceAllStringFunc(text, func(m string) string {
		parts := volumePattern.FindStringSubmatch(m)
		volumes = append(volumes, parts[1]+parts[2])
		return " "
	})
	return text, volumes
}

// splitVariants pulls size and color tokens out of canonical text and merges them with the
// already extracted volumes. Returns the remaining primary tokens and the sorted variant set.
func splitVariants(text string, volumes []string) ([]string, []string) {
	variantSet := make(map[string]bool)
	for _, v := range volumes {
		variantSet[v] = true
	}

	var primary []string
	for _, token := range tokenizeWords(text) {
		if sizeTokens[token] || colorTokens[token] {
			variantSet[token] = true
			continue
		}
		primary = append(primary, token)
	}

	variants := make([]string, 0, len(variantSet))
	for v := range variantSet {
		variants = append(variants, v)
	}
	sort.Strings(variants)
	return primary, variants
}

// tokenizeWords splits canonical text into unique non-stop-word tokens, preserving order
func tokenizeWords(text string) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, word := range strings.Fields(text) {
		if stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		tokens = append(tokens, word)
	}
	return tokens
}

// normalizeIdentifiers trims and upper-cases every code, dropping empties and duplicates
func normalizeIdentifiers(ids domain.Identifiers) domain.Identifiers {
	out := make(domain.Identifiers, len(ids))
	for t, codes := range ids {
		seen := make(map[string]bool)
		for _, code := range codes {
			code = strings.ToUpper(strings.TrimSpace(code))
			if code == "" || seen[code] {
				continue
			}
			seen[code] = true
			out.Add(domain.IdentifierType(strings.ToLower(string(t))), code)
		}
	}
	return out
}
