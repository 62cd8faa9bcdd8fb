package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/creatorpulse/backend/internal/domain"
	"github.com/creatorpulse/backend/internal/platform/logger"
	"github.com/creatorpulse/backend/internal/platform/metrics"
)

// Drop reasons reported for candidates that never reach persistence
const (
	DropMalformed        = "malformed"
	DropScoringError     = "scoring_error"
	DropCategoryMismatch = "category_mismatch"
	DropBelowFloor       = "below_confidence_floor"
	DropSameListing      = "same_listing"
)

// AggregatorConfig holds the weights and thresholds used to turn sub-scores into a confidence
type AggregatorConfig struct {
	BrandWeight float64
	TitleWeight float64
	PriceWeight float64

	// CategoryGateThreshold: on category disagreement a candidate survives only if brand or
	// title exceeds this value
	CategoryGateThreshold float64

	// MinConfidence is the persistence floor; anything lower is noise
	MinConfidence int
	HighTierMin   int
	MediumTierMin int

	BrandTitleBrandMin float64
	BrandTitleTitleMin float64
	FuzzyTitleMin      float64

	DefaultTopN int
}

// DefaultAggregatorConfig returns the documented defaults
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		BrandWeight:           0.3,
		TitleWeight:           0.5,
		PriceWeight:           0.2,
		CategoryGateThreshold: 0.85,
		MinConfidence:         30,
		HighTierMin:           85,
		MediumTierMin:         60,
		BrandTitleBrandMin:    0.8,
		BrandTitleTitleMin:    0.7,
		FuzzyTitleMin:         0.5,
		DefaultTopN:           5,
	}
}

// Aggregator scores, ranks and deduplicates catalog candidates for one source product
type Aggregator struct {
	scorer  Scorer
	config  AggregatorConfig
	log     *logger.Logger
	metrics *metrics.Metrics
}

// AggregateResult is the ranked output of one aggregation plus the candidates it discarded
type AggregateResult struct {
	Candidates []domain.MatchCandidate
	Dropped    []domain.DroppedCandidate
}

// NewAggregator creates an aggregator. Zero-valued config fields fall back to defaults.
func NewAggregator(scorer Scorer, config AggregatorConfig, log *logger.Logger, m *metrics.Metrics) *Aggregator {
	def := DefaultAggregatorConfig()
	if config.BrandWeight <= 0 && config.TitleWeight <= 0 && config.PriceWeight <= 0 {
		config.BrandWeight, config.TitleWeight, config.PriceWeight = def.BrandWeight, def.TitleWeight, def.PriceWeight
	}
	if config.CategoryGateThreshold <= 0 {
		config.CategoryGateThreshold = def.CategoryGateThreshold
	}
	if config.MinConfidence <= 0 {
		config.MinConfidence = def.MinConfidence
	}
	if config.HighTierMin <= 0 {
		config.HighTierMin = def.HighTierMin
	}
	if config.MediumTierMin <= 0 {
		config.MediumTierMin = def.MediumTierMin
	}
	if config.BrandTitleBrandMin <= 0 {
		config.BrandTitleBrandMin = def.BrandTitleBrandMin
	}
	if config.BrandTitleTitleMin <= 0 {
		config.BrandTitleTitleMin = def.BrandTitleTitleMin
	}
	if config.FuzzyTitleMin <= 0 {
		config.FuzzyTitleMin = def.FuzzyTitleMin
	}
	if config.DefaultTopN <= 0 {
		config.DefaultTopN = def.DefaultTopN
	}
	if scorer == nil {
		scorer = NewSimilarityScorer(DefaultScoringConfig())
	}
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Aggregator{
		scorer:  scorer,
		config:  config,
		log:     log.With("component", "Aggregator"),
		metrics: m,
	}
}

// Aggregate scores every candidate against source and returns at most topN survivors,
// best first, with at most one entry per external id. A topN <= 0 uses the configured default.
// Malformed candidates are dropped and reported, never fatal to the batch.
func (a *Aggregator) Aggregate(
	ctx context.Context,
	source domain.ProductRecord,
	candidates []domain.ProductRecord,
	topN int,
) (*AggregateResult, error) {
	if topN <= 0 {
		topN = a.config.DefaultTopN
	}

	normalizedSource := Normalize(source)
	result := &AggregateResult{}

	var survivors []domain.MatchCandidate
	for i := range candidates {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		target := candidates[i]
		candidate, reason, err := a.evaluate(&source, normalizedSource, &target)
		if err != nil || reason != "" {
			if reason == "" {
				reason = DropScoringError
			}
			a.drop(result, target.SourceID, reason, err)
			continue
		}
		a.metrics.CandidatesEvaluated.WithLabelValues(string(candidate.Method)).Inc()
		survivors = append(survivors, *candidate)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return rankLess(survivors[i], survivors[j])
	})

	seen := make(map[string]bool, len(survivors))
	for _, c := range survivors {
		if seen[c.Target.SourceID] {
			continue
		}
		seen[c.Target.SourceID] = true
		result.Candidates = append(result.Candidates, c)
		if len(result.Candidates) == topN {
			break
		}
	}

	a.log.Debug("aggregated candidates",
		"source_id", source.SourceID,
		"candidates", len(candidates),
		"kept", len(result.Candidates),
		"dropped", len(result.Dropped),
	)
	return result, nil
}

// evaluate scores a single candidate. A non-empty reason means the candidate is discarded.
func (a *Aggregator) evaluate(
	source *domain.ProductRecord,
	normalizedSource domain.NormalizedProduct,
	target *domain.ProductRecord,
) (candidate *domain.MatchCandidate, reason string, err error) {
	defer func() {
		// an injected scorer must not take the whole batch down
		if r := recover(); r != nil {
			candidate, reason, err = nil, DropScoringError, fmt.Errorf("%w: scoring panic: %v", domain.ErrMalformedCandidate, r)
		}
	}()

	if err := target.Validate(); err != nil {
		return nil, DropMalformed, err
	}
	if target.SourcePlatform == source.SourcePlatform && target.SourceID == source.SourceID {
		return nil, DropSameListing, nil
	}

	normalizedTarget := Normalize(*target)
	gap, ok := priceGap(normalizedSource.Price, normalizedTarget.Price)
	if !ok {
		gap = -1
	}

	candidate = &domain.MatchCandidate{
		Source:         source,
		Target:         target,
		PriceGap:       gap,
		VariantOverlap: overlapCount(normalizedSource.VariantTokens, normalizedTarget.VariantTokens),
	}

	// identifier evidence is authoritative; fuzzy signals are never computed for it
	if idMatch := MatchIdentifiers(normalizedSource, normalizedTarget); idMatch != nil {
		candidate.Confidence = idMatch.Score
		candidate.Method = idMatch.Method()
		candidate.IdentifierType = idMatch.Type
		candidate.Tier = a.tier(idMatch.Score)
		candidate.Reason = fmt.Sprintf("shared %s %s", strings.ToUpper(string(idMatch.Type)), idMatch.Code)
		return candidate, "", nil
	}

	scores := a.scorer.Score(normalizedSource, normalizedTarget)
	candidate.Scores = scores

	if scores.Category == 0 &&
		scores.Brand <= a.config.CategoryGateThreshold &&
		scores.Title <= a.config.CategoryGateThreshold {
		return nil, DropCategoryMismatch, nil
	}

	confidence := a.confidence(scores)
	if confidence < a.config.MinConfidence {
		return nil, DropBelowFloor, nil
	}

	candidate.Confidence = confidence
	candidate.Method = a.method(scores)
	candidate.Tier = a.tier(confidence)
	candidate.Reason = fmt.Sprintf("brand %.2f, title %.2f, price %.2f, category %.0f",
		scores.Brand, scores.Title, scores.Price, scores.Category)
	return candidate, "", nil
}

// confidence combines sub-scores into an integer in [0,100]
func (a *Aggregator) confidence(s domain.SubScores) int {
	total := a.config.BrandWeight + a.config.TitleWeight + a.config.PriceWeight
	raw := (a.config.BrandWeight*s.Brand + a.config.TitleWeight*s.Title + a.config.PriceWeight*s.Price) / total
	return int(math.Round(100 * clamp01(raw)))
}

func (a *Aggregator) method(s domain.SubScores) domain.MatchMethod {
	switch {
	case s.Brand >= a.config.BrandTitleBrandMin && s.Title >= a.config.BrandTitleTitleMin:
		return domain.MethodBrandTitle
	case s.Title >= a.config.FuzzyTitleMin:
		return domain.MethodFuzzyTitle
	default:
		return domain.MethodCategoryPrice
	}
}

// Tier buckets a confidence score for display and auto-confirmation gating
func (a *Aggregator) tier(confidence int) domain.Tier {
	switch {
	case confidence >= a.config.HighTierMin:
		return domain.TierHigh
	case confidence >= a.config.MediumTierMin:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

func (a *Aggregator) drop(result *AggregateResult, externalID, reason string, err error) {
	result.Dropped = append(result.Dropped, domain.DroppedCandidate{ExternalID: externalID, Reason: reason})
	a.metrics.CandidatesDropped.WithLabelValues(reason).Inc()
	if err != nil {
		a.log.Warn("dropped candidate", "external_id", externalID, "reason", reason, "error", err)
		return
	}
	a.log.Debug("dropped candidate", "external_id", externalID, "reason", reason)
}

// rankLess orders by confidence, then identifier precedence, then price proximity, then
// shared variant tokens, then external id for a stable result
func rankLess(x, y domain.MatchCandidate) bool {
	if x.Confidence != y.Confidence {
		return x.Confidence > y.Confidence
	}
	if rx, ry := candidateRank(x), candidateRank(y); rx != ry {
		return rx < ry
	}
	if gx, gy := sortableGap(x.PriceGap), sortableGap(y.PriceGap); gx != gy {
		return gx < gy
	}
	if x.VariantOverlap != y.VariantOverlap {
		return x.VariantOverlap > y.VariantOverlap
	}
	return x.Target.SourceID < y.Target.SourceID
}

func candidateRank(c domain.MatchCandidate) int {
	if c.IdentifierType == "" {
		return len(domain.IdentifierTypes)
	}
	return identifierRank(c.IdentifierType)
}

func sortableGap(gap float64) float64 {
	if gap < 0 {
		return math.Inf(1)
	}
	return gap
}

func overlapCount(a, b []string) int {
	set := toSet(b)
	n := 0
	for _, t := range a {
		if set[t] {
			n++
		}
	}
	return n
}
