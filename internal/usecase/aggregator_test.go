package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorpulse/backend/internal/domain"
)

func amazonSource() domain.ProductRecord {
	return domain.ProductRecord{
		ID:             uuid.New(),
		SourcePlatform: domain.PlatformAmazon,
		SourceID:       "B0CJZMP7L1",
		Title:          "Stanley Quencher 40oz Tumbler",
		Brand:          "Stanley",
		Price:          usd("45"),
	}
}

func tiktokListing(id, title, brand string, price *domain.Price) domain.ProductRecord {
	return domain.ProductRecord{
		SourcePlatform: domain.PlatformTikTok,
		SourceID:       id,
		URL:            "https://shop.tiktok.com/view/product/" + id,
		Title:          title,
		Brand:          brand,
		Price:          price,
	}
}

func TestAggregateStanleyScenario(t *testing.T) {
	agg := NewAggregator(nil, DefaultAggregatorConfig(), nil, nil)

	result, err := agg.Aggregate(context.Background(), amazonSource(), []domain.ProductRecord{
		tiktokListing("1729", "stanley quencher tumbler 40 oz", "Stanley", usd("44")),
	}, 0)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)

	c := result.Candidates[0]
	assert.GreaterOrEqual(t, c.Confidence, 95)
	assert.Equal(t, domain.MethodBrandTitle, c.Method)
	assert.Equal(t, domain.TierHigh, c.Tier)
	assert.Equal(t, 1.0, c.Scores.Brand)
	assert.GreaterOrEqual(t, c.Scores.Title, 0.9)
	assert.Equal(t, 1.0, c.Scores.Price)
}

func TestAggregateIdentifierShortCircuit(t *testing.T) {
	scorer := &countingScorer{inner: NewSimilarityScorer(DefaultScoringConfig())}
	agg := NewAggregator(scorer, DefaultAggregatorConfig(), nil, nil)

	source := amazonSource()
	source.Identifiers = domain.Identifiers{domain.IdentifierGTIN: {"012345678905"}}
	target := tiktokListing("88", "Insulated Travel Mug", "Generic", usd("12"))
	target.Identifiers = domain.Identifiers{domain.IdentifierGTIN: {"012345678905"}}

	result, err := agg.Aggregate(context.Background(), source, []domain.ProductRecord{target}, 5)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)

	c := result.Candidates[0]
	assert.Equal(t, domain.MethodExactGTIN, c.Method)
	assert.Equal(t, 100, c.Confidence)
	assert.Equal(t, domain.IdentifierGTIN, c.IdentifierType)
	assert.Equal(t, 0, scorer.calls, "fuzzy scorer must not run for identifier matches")
}

func TestAggregateCategoryGate(t *testing.T) {
	scorer := &countingScorer{result: &domain.SubScores{Brand: 0.4, Title: 0.3, Price: 0.5, Category: 0}}
	agg := NewAggregator(scorer, DefaultAggregatorConfig(), nil, nil)

	source := amazonSource()
	source.Category = "Kitchen"
	target := tiktokListing("77", "Phone Case", "Otter", usd("45"))
	target.Category = "Electronics"

	result, err := agg.Aggregate(context.Background(), source, []domain.ProductRecord{target}, 5)
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	require.Len(t, result.Dropped, 1)
	assert.Equal(t, DropCategoryMismatch, result.Dropped[0].Reason)
	assert.Equal(t, "77", result.Dropped[0].ExternalID)
}

func TestAggregateCategoryGateBypassedByStrongTitle(t *testing.T) {
	scorer := &countingScorer{result: &domain.SubScores{Brand: 0.2, Title: 0.9, Price: 1, Category: 0}}
	agg := NewAggregator(scorer, DefaultAggregatorConfig(), nil, nil)

	result, err := agg.Aggregate(context.Background(), amazonSource(), []domain.ProductRecord{
		tiktokListing("1", "whatever", "", nil),
	}, 5)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	// round(100 * (0.3*0.2 + 0.5*0.9 + 0.2*1)) = 71
	assert.Equal(t, 71, result.Candidates[0].Confidence)
	assert.Equal(t, domain.MethodFuzzyTitle, result.Candidates[0].Method)
	assert.Equal(t, domain.TierMedium, result.Candidates[0].Tier)
}

func TestAggregateBelowFloor(t *testing.T) {
	scorer := &countingScorer{result: &domain.SubScores{Brand: 0, Title: 0.1, Price: 0.5, Category: 1}}
	agg := NewAggregator(scorer, DefaultAggregatorConfig(), nil, nil)

	result, err := agg.Aggregate(context.Background(), amazonSource(), []domain.ProductRecord{
		tiktokListing("1", "whatever", "", nil),
	}, 5)
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	require.Len(t, result.Dropped, 1)
	assert.Equal(t, DropBelowFloor, result.Dropped[0].Reason)
}

func TestAggregateMethodSelection(t *testing.T) {
	agg := NewAggregator(nil, DefaultAggregatorConfig(), nil, nil)

	tests := []struct {
		scores domain.SubScores
		want   domain.MatchMethod
	}{
		{domain.SubScores{Brand: 0.8, Title: 0.7}, domain.MethodBrandTitle},
		{domain.SubScores{Brand: 0.79, Title: 0.9}, domain.MethodFuzzyTitle},
		{domain.SubScores{Brand: 1, Title: 0.5}, domain.MethodFuzzyTitle},
		{domain.SubScores{Brand: 1, Title: 0.49}, domain.MethodCategoryPrice},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, agg.method(tt.scores), "scores %+v", tt.scores)
	}
}

func TestAggregateTiers(t *testing.T) {
	agg := NewAggregator(nil, DefaultAggregatorConfig(), nil, nil)

	assert.Equal(t, domain.TierHigh, agg.tier(100))
	assert.Equal(t, domain.TierHigh, agg.tier(85))
	assert.Equal(t, domain.TierMedium, agg.tier(84))
	assert.Equal(t, domain.TierMedium, agg.tier(60))
	assert.Equal(t, domain.TierLow, agg.tier(59))
}

func TestAggregateDeduplicatesByExternalID(t *testing.T) {
	agg := NewAggregator(nil, DefaultAggregatorConfig(), nil, nil)

	result, err := agg.Aggregate(context.Background(), amazonSource(), []domain.ProductRecord{
		tiktokListing("dup", "stanley tumbler", "Stanley", usd("44")),
		tiktokListing("dup", "stanley quencher tumbler 40 oz", "Stanley", usd("44")),
		tiktokListing("other", "stanley quencher tumbler", "Stanley", usd("60")),
	}, 5)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, c := range result.Candidates {
		seen[c.Target.SourceID]++
	}
	assert.Equal(t, 1, seen["dup"])
	assert.Equal(t, 1, seen["other"])

	require.NotEmpty(t, result.Candidates)
	assert.Equal(t, "dup", result.Candidates[0].Target.SourceID)
	assert.Equal(t, "stanley quencher tumbler 40 oz", result.Candidates[0].Target.Title, "kept the top-scoring duplicate")
}

func TestAggregateTopN(t *testing.T) {
	agg := NewAggregator(nil, DefaultAggregatorConfig(), nil, nil)

	var candidates []domain.ProductRecord
	for i := 0; i < 8; i++ {
		candidates = append(candidates, tiktokListing(fmt.Sprintf("id-%d", i), "stanley quencher tumbler", "Stanley", usd("45")))
	}

	result, err := agg.Aggregate(context.Background(), amazonSource(), candidates, 0)
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 5, "default top-N")

	result, err = agg.Aggregate(context.Background(), amazonSource(), candidates, 2)
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 2)
}

func TestAggregateRankingTieBreaks(t *testing.T) {
	t.Run("identifier precedence breaks equal confidence", func(t *testing.T) {
		agg := NewAggregator(nil, DefaultAggregatorConfig(), nil, nil)

		source := amazonSource()
		source.Identifiers = domain.Identifiers{
			domain.IdentifierGTIN: {"012345678905"},
			domain.IdentifierASIN: {"B0CJZMP7L1"},
		}
		byASIN := tiktokListing("a", "", "", nil)
		byASIN.Identifiers = domain.Identifiers{domain.IdentifierASIN: {"B0CJZMP7L1"}}
		byGTIN := tiktokListing("b", "", "", nil)
		byGTIN.Identifiers = domain.Identifiers{domain.IdentifierGTIN: {"012345678905"}}

		result, err := agg.Aggregate(context.Background(), source, []domain.ProductRecord{byASIN, byGTIN}, 5)
		require.NoError(t, err)
		require.Len(t, result.Candidates, 2)
		assert.Equal(t, "b", result.Candidates[0].Target.SourceID)
		assert.Equal(t, domain.MethodExactASIN, result.Candidates[1].Method)
	})

	t.Run("closer price breaks equal confidence", func(t *testing.T) {
		scorer := &countingScorer{result: &domain.SubScores{Brand: 1, Title: 1, Price: 1, Category: 1}}
		agg := NewAggregator(scorer, DefaultAggregatorConfig(), nil, nil)

		source := amazonSource()
		source.Price = usd("100")
		result, err := agg.Aggregate(context.Background(), source, []domain.ProductRecord{
			tiktokListing("a", "x", "", usd("150")),
			tiktokListing("b", "x", "", usd("101")),
			tiktokListing("c", "x", "", nil),
		}, 5)
		require.NoError(t, err)
		require.Len(t, result.Candidates, 3)
		assert.Equal(t, "b", result.Candidates[0].Target.SourceID)
		assert.Equal(t, "a", result.Candidates[1].Target.SourceID)
		assert.Equal(t, "c", result.Candidates[2].Target.SourceID, "missing price ranks last")
	})
}

func TestAggregateDropsMalformedCandidates(t *testing.T) {
	agg := NewAggregator(nil, DefaultAggregatorConfig(), nil, nil)

	noID := tiktokListing("", "stanley quencher tumbler", "Stanley", usd("45"))
	negative := tiktokListing("neg", "stanley quencher tumbler", "Stanley",
		&domain.Price{Amount: decimal.NewFromInt(-1), Currency: "USD"})
	good := tiktokListing("good", "stanley quencher tumbler", "Stanley", usd("45"))

	result, err := agg.Aggregate(context.Background(), amazonSource(), []domain.ProductRecord{noID, negative, good}, 5)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "good", result.Candidates[0].Target.SourceID)

	require.Len(t, result.Dropped, 2)
	for _, d := range result.Dropped {
		assert.Equal(t, DropMalformed, d.Reason)
	}
}

func TestAggregateSurvivesScorerPanic(t *testing.T) {
	agg := NewAggregator(panicScorer{}, DefaultAggregatorConfig(), nil, nil)

	result, err := agg.Aggregate(context.Background(), amazonSource(), []domain.ProductRecord{
		tiktokListing("1", "anything", "", nil),
	}, 5)
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	require.Len(t, result.Dropped, 1)
	assert.Equal(t, DropScoringError, result.Dropped[0].Reason)
}

func TestAggregateSkipsSourceListing(t *testing.T) {
	agg := NewAggregator(nil, DefaultAggregatorConfig(), nil, nil)
	source := amazonSource()

	result, err := agg.Aggregate(context.Background(), source, []domain.ProductRecord{source}, 5)
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	require.Len(t, result.Dropped, 1)
	assert.Equal(t, DropSameListing, result.Dropped[0].Reason)
}

func TestAggregateRespectsCancellation(t *testing.T) {
	agg := NewAggregator(nil, DefaultAggregatorConfig(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agg.Aggregate(ctx, amazonSource(), []domain.ProductRecord{
		tiktokListing("1", "stanley quencher tumbler", "Stanley", usd("45")),
	}, 5)
	assert.ErrorIs(t, err, context.Canceled)
}
