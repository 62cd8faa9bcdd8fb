package usecase

import (
	"math"
	"sort"
	"strings"

	"github.com/creatorpulse/backend/internal/domain"
	"github.com/shopspring/decimal"
)

// Scorer computes the independent similarity signals between two normalized products
type Scorer interface {
	Score(a, b domain.NormalizedProduct) domain.SubScores
}

// ScoringConfig holds the tunable parts of the similarity scorer
type ScoringConfig struct {
	// TitleCosineWeight and TitleEditWeight split the title score; they should sum to 1
	TitleCosineWeight float64
	TitleEditWeight   float64
	// PriceTolerance is the accepted relative gap, measured against the lower price
	PriceTolerance float64
}

// DefaultScoringConfig returns the documented defaults: 0.6 cosine + 0.4 edit ratio, ±20% price
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		TitleCosineWeight: 0.6,
		TitleEditWeight:   0.4,
		PriceTolerance:    0.2,
	}
}

// SimilarityScorer is the default Scorer. It is pure and safe for concurrent use.
type SimilarityScorer struct {
	config ScoringConfig
}

// NewSimilarityScorer creates a scorer, falling back to defaults for unset fields
func NewSimilarityScorer(config ScoringConfig) *SimilarityScorer {
	def := DefaultScoringConfig()
	if config.TitleCosineWeight <= 0 && config.TitleEditWeight <= 0 {
		config.TitleCosineWeight = def.TitleCosineWeight
		config.TitleEditWeight = def.TitleEditWeight
	}
	if config.PriceTolerance <= 0 {
		config.PriceTolerance = def.PriceTolerance
	}
	return &SimilarityScorer{config: config}
}

// Score computes brand, title, price and category sub-scores, each in [0,1]
func (s *SimilarityScorer) Score(a, b domain.NormalizedProduct) domain.SubScores {
	return domain.SubScores{
		Brand:    brandSimilarity(a.BrandTokens, b.BrandTokens),
		Title:    s.titleSimilarity(a.TitleTokens, b.TitleTokens),
		Price:    priceSimilarity(a.Price, b.Price, s.config.PriceTolerance),
		Category: categorySimilarity(a.Category, b.Category),
	}
}

// brandSimilarity is an edit-distance ratio over the sorted brand token sets.
// Missing brand data on either side scores 0 so absence never inflates confidence.
func brandSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return editRatio(sortedJoin(a), sortedJoin(b))
}

// titleSimilarity combines token cosine similarity with a token-sort edit ratio.
// An empty token set on either side scores 0.
func (s *SimilarityScorer) titleSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	cosine := tokenCosine(a, b)
	edit := editRatio(sortedJoin(a), sortedJoin(b))
	total := s.config.TitleCosineWeight + s.config.TitleEditWeight
	return clamp01((s.config.TitleCosineWeight*cosine + s.config.TitleEditWeight*edit) / total)
}

// priceSimilarity: 1 when both prices sit within tolerance of the lower one, 0 when outside it,
// and a neutral 0.5 when one side is missing or the currencies cannot be compared.
func priceSimilarity(a, b *domain.Price, tolerance float64) float64 {
	gap, ok := priceGap(a, b)
	if !ok {
		return 0.5
	}
	if gap <= tolerance {
		return 1
	}
	return 0
}

// priceGap returns |a-b| / min(a,b). ok is false when the prices are not comparable.
func priceGap(a, b *domain.Price) (float64, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if !strings.EqualFold(strings.TrimSpace(a.Currency), strings.TrimSpace(b.Currency)) {
		return 0, false
	}
	lower := decimal.Min(a.Amount, b.Amount)
	diff := a.Amount.Sub(b.Amount).Abs()
	if diff.IsZero() {
		return 0, true
	}
	if !lower.IsPositive() {
		return math.Inf(1), true
	}
	gap, _ := diff.Div(lower).Float64()
	return gap, true
}

// categorySimilarity is an exact, case-insensitive comparison with no partial credit
func categorySimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if strings.EqualFold(a, b) {
		return 1
	}
	return 0
}

// tokenCosine is the cosine similarity of two binary token vectors
func tokenCosine(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	shared := 0
	for t := range setA {
		if setB[t] {
			shared++
		}
	}
	return float64(shared) / math.Sqrt(float64(len(setA))*float64(len(setB)))
}

// editRatio converts Levenshtein distance into a similarity in [0,1]
func editRatio(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 0
	}
	return clamp01(1 - float64(levenshteinDistance(a, b))/float64(maxLen))
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len([]rune(s2))
	}
	if len(s2) == 0 {
		return len([]rune(s1))
	}

	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)

	// Use two rows instead of full matrix for space efficiency
	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}

func sortedJoin(tokens []string) string {
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
