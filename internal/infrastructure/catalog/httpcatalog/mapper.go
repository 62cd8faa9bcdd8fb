package httpcatalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/creatorpulse/backend/internal/domain"
)

type searchResponse struct {
	Products []json.RawMessage `json:"products"`
}

type apiPrice struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// apiProduct is one catalog item as the API returns it
type apiProduct struct {
	ID           string              `json:"id"`
	URL          string              `json:"url"`
	Title        string              `json:"title"`
	Brand        string              `json:"brand"`
	Manufacturer string              `json:"manufacturer"`
	Category     string              `json:"category"`
	Identifiers  map[string][]string `json:"identifiers"`
	Price        *apiPrice           `json:"price"`
	Images       []string            `json:"images"`
}

// mapProduct converts a raw catalog item into a ProductRecord, keeping the payload verbatim
func mapProduct(marketplace domain.Platform, raw json.RawMessage) (domain.ProductRecord, error) {
	var item apiProduct
	if err := json.Unmarshal(raw, &item); err != nil {
		return domain.ProductRecord{}, fmt.Errorf("failed to decode catalog item: %w", err)
	}

	rec := domain.ProductRecord{
		SourcePlatform: marketplace,
		SourceID:       strings.TrimSpace(item.ID),
		URL:            item.URL,
		Title:          item.Title,
		Brand:          item.Brand,
		Manufacturer:   item.Manufacturer,
		Category:       item.Category,
		Identifiers:    mapIdentifiers(item.Identifiers),
		Images:         item.Images,
		Raw:            append(json.RawMessage(nil), raw...),
	}
	if item.Price != nil {
		rec.Price = &domain.Price{
			Amount:   item.Price.Amount,
			Currency: strings.ToUpper(strings.TrimSpace(item.Price.Currency)),
		}
	}
	return rec, nil
}

// mapIdentifiers keeps the identifier types we know and drops the rest
func mapIdentifiers(in map[string][]string) domain.Identifiers {
	if len(in) == 0 {
		return nil
	}
	ids := make(domain.Identifiers)
	for _, t := range domain.IdentifierTypes {
		for key, codes := range in {
			if !strings.EqualFold(key, string(t)) {
				continue
			}
			for _, code := range codes {
				if code = strings.TrimSpace(code); code != "" {
					ids.Add(t, code)
				}
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}
