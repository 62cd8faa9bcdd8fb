package usecase

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/creatorpulse/backend/internal/domain"
)

func TestNormalize(t *testing.T) {
	t.Run("lower-cases and strips punctuation and stop words", func(t *testing.T) {
		n := Normalize(domain.ProductRecord{Title: "The NEW Stanley Quencher, H2.0 FlowState!"})
		want := []string{"stanley", "quencher", "h2", "0", "flowstate"}
		if !reflect.DeepEqual(n.TitleTokens, want) {
			t.Errorf("TitleTokens = %v, want %v", n.TitleTokens, want)
		}
	})

	t.Run("splits sizes, colors and volumes into variants", func(t *testing.T) {
		n := Normalize(domain.ProductRecord{Title: "Stanley Quencher Tumbler 40 oz - Black, Large"})
		wantTitle := []string{"stanley", "quencher", "tumbler"}
		wantVariants := []string{"40oz", "black", "large"}
		if !reflect.DeepEqual(n.TitleTokens, wantTitle) {
			t.Errorf("TitleTokens = %v, want %v", n.TitleTokens, wantTitle)
		}
		if !reflect.DeepEqual(n.VariantTokens, wantVariants) {
			t.Errorf("VariantTokens = %v, want %v", n.VariantTokens, wantVariants)
		}
	})

	t.Run("keeps decimal volumes intact", func(t *testing.T) {
		n := Normalize(domain.ProductRecord{Title: "Fiji Water 16.9 fl. oz"})
		if !reflect.DeepEqual(n.VariantTokens, []string{"16.9oz"}) {
			t.Errorf("VariantTokens = %v, want [16.9oz]", n.VariantTokens)
		}
		if !reflect.DeepEqual(n.TitleTokens, []string{"fiji", "water"}) {
			t.Errorf("TitleTokens = %v, want [fiji water]", n.TitleTokens)
		}
	})

	t.Run("joins volumes split by punctuation", func(t *testing.T) {
		n := Normalize(domain.ProductRecord{Title: "Tumbler 40 - oz"})
		if !reflect.DeepEqual(n.VariantTokens, []string{"40oz"}) {
			t.Errorf("VariantTokens = %v, want [40oz]", n.VariantTokens)
		}
	})

	t.Run("title of only stop words and variants is empty", func(t *testing.T) {
		n := Normalize(domain.ProductRecord{Title: "The New Black XL"})
		if len(n.TitleTokens) != 0 {
			t.Errorf("TitleTokens = %v, want empty", n.TitleTokens)
		}
	})

	t.Run("normalizes brand through the same pipeline", func(t *testing.T) {
		n := Normalize(domain.ProductRecord{Brand: "  Stanley & Co. "})
		if !reflect.DeepEqual(n.BrandTokens, []string{"stanley", "co"}) {
			t.Errorf("BrandTokens = %v, want [stanley co]", n.BrandTokens)
		}
	})

	t.Run("trims and upper-cases identifiers, dropping empties", func(t *testing.T) {
		n := Normalize(domain.ProductRecord{Identifiers: domain.Identifiers{
			"GTIN": {" 012345678905 ", "", "012345678905"},
			"asin": {"b00abc1234"},
			"sku":  {"   "},
		}})
		if got := n.Identifiers[domain.IdentifierGTIN]; !reflect.DeepEqual(got, []string{"012345678905"}) {
			t.Errorf("gtin = %v, want [012345678905]", got)
		}
		if got := n.Identifiers.First(domain.IdentifierASIN); got != "B00ABC1234" {
			t.Errorf("asin = %q, want B00ABC1234", got)
		}
		if _, ok := n.Identifiers[domain.IdentifierSKU]; ok {
			t.Error("expected empty sku codes to be dropped")
		}
	})

	t.Run("never fails on an empty record", func(t *testing.T) {
		n := Normalize(domain.ProductRecord{})
		if len(n.TitleTokens) != 0 || len(n.BrandTokens) != 0 || n.Category != "" {
			t.Errorf("expected empty normalized product, got %+v", n)
		}
	})
}

func TestNormalizeIdempotent(t *testing.T) {
	price := &domain.Price{Amount: decimal.RequireFromString("45.00"), Currency: "USD"}
	records := []domain.ProductRecord{
		{Title: "Stanley Quencher 40oz Tumbler", Brand: "Stanley", Price: price},
		{Title: "Stanley Quencher Tumbler 40 oz - Black, Large", Brand: "STANLEY", Category: "Home  & Kitchen"},
		{Title: "Fiji Natural Artesian Water, 16.9 fl. oz (Pack of 24)", Brand: "Fiji"},
		{Title: "The New Black XL", Identifiers: domain.Identifiers{"UPC": {" 0123 "}}},
		{Title: "Water Bottle 40 of oz"},
		{Title: "Serum 30 and ml pack"},
		{Title: "Tumbler 40 black oz"},
		{Title: "Bottle 40 bottle oz"},
		{Title: "Mug 12 - oz"},
		{},
	}

	for _, r := range records {
		t.Run(r.Title, func(t *testing.T) {
			once := Normalize(r)
			twice := Normalize(once.AsRecord())
			if !reflect.DeepEqual(once, twice) {
				t.Errorf("normalize not idempotent:\n once  = %+v\n twice = %+v", once, twice)
			}
		})
	}
}

func TestNormalizeQuantityAcrossDroppedWords(t *testing.T) {
	tests := []struct {
		title        string
		wantTokens   []string
		wantVariants []string
	}{
		{"Water Bottle 40 of oz", []string{"water", "bottle"}, []string{"40oz"}},
		{"Serum 30 and ml pack", []string{"serum", "pack"}, []string{"30ml"}},
		{"Tumbler 40 black oz", []string{"tumbler"}, []string{"40oz", "black"}},
		{"Bottle 40 bottle oz", []string{"bottle"}, []string{"40oz"}},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			n := Normalize(domain.ProductRecord{Title: tt.title})
			if !reflect.DeepEqual(n.TitleTokens, tt.wantTokens) {
				t.Errorf("TitleTokens = %v, want %v", n.TitleTokens, tt.wantTokens)
			}
			if !reflect.DeepEqual(n.VariantTokens, tt.wantVariants) {
				t.Errorf("VariantTokens = %v, want %v", n.VariantTokens, tt.wantVariants)
			}
		})
	}
}
