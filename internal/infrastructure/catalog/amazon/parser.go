package amazon

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/creatorpulse/backend/internal/domain"
)

var (
	asinPattern  = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	priceDigits  = regexp.MustCompile(`[0-9][0-9.,]*`)
	spaceRun     = regexp.MustCompile(`\s+`)
	invisibleRun = regexp.MustCompile("[\u200e\u200f\u202a-\u202e]")
)

// detail labels on the product page mapped to identifier types
var detailIdentifiers = map[string]domain.IdentifierType{
	"upc":               domain.IdentifierUPC,
	"ean":               domain.IdentifierEAN,
	"gtin":              domain.IdentifierGTIN,
	"isbn-13":           domain.IdentifierISBN,
	"isbn-10":           domain.IdentifierISBN,
	"item model number": domain.IdentifierMPN,
	"model number":      domain.IdentifierMPN,
	"part number":       domain.IdentifierMPN,
}

// parseProductPage extracts a listing from a /dp/{asin} page. It returns nil when the page
// carries no product title.
func parseProductPage(doc *goquery.Document, asin, pageURL, currency string) *domain.ProductRecord {
	title := cleanText(doc.Find("#productTitle").First().Text())
	if title == "" {
		return nil
	}

	rec := &domain.ProductRecord{
		SourcePlatform: domain.PlatformAmazon,
		SourceID:       asin,
		URL:            pageURL,
		Title:          title,
		Brand:          cleanBrand(doc.Find("#bylineInfo").First().Text()),
		Category:       cleanText(doc.Find("#wayfinding-breadcrumbs_feature_div ul li a").First().Text()),
		Identifiers:    domain.Identifiers{domain.IdentifierASIN: {asin}},
	}

	rec.Price = parsePrice(firstNonEmpty(
		textOrFallback(doc.Find("span#priceblock_ourprice"), ""),
		textOrFallback(doc.Find("span#priceblock_dealprice"), ""),
		textOrFallback(doc.Find("#corePrice_feature_div span.a-price span.a-offscreen"), ""),
		textOrFallback(doc.Find("span.a-price span.a-offscreen"), ""),
	), currency)

	image := doc.Find("img#landingImage")
	if src := firstNonEmpty(image.AttrOr("data-old-hires", ""), image.AttrOr("src", "")); src != "" {
		rec.Images = []string{src}
	}

	for label, value := range productDetails(doc) {
		switch label {
		case "manufacturer":
			if rec.Manufacturer == "" {
				rec.Manufacturer = value
			}
		case "brand":
			if rec.Brand == "" {
				rec.Brand = value
			}
		default:
			if t, ok := detailIdentifiers[label]; ok {
				for _, code := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
					rec.Identifiers.Add(t, code)
				}
			}
		}
	}
	return rec
}

// productDetails collects the label/value pairs from the technical detail tables and the
// detail bullet list. Labels are lower-cased.
func productDetails(doc *goquery.Document) map[string]string {
	details := make(map[string]string)
	add := func(label, value string) {
		label = strings.ToLower(strings.TrimSpace(strings.TrimRight(cleanText(label), ": ")))
		value = cleanText(value)
		if label == "" || value == "" {
			return
		}
		if _, seen := details[label]; !seen {
			details[label] = value
		}
	}

	doc.Find("#productDetails_techSpec_section_1 tr, #productDetails_detailBullets_sections1 tr").Each(func(_ int, row *goquery.Selection) {
		add(row.Find("th").First().Text(), row.Find("td").First().Text())
	})
	doc.Find("#detailBullets_feature_div li span.a-list-item").Each(func(_ int, item *goquery.Selection) {
		spans := item.Children().Filter("span")
		if spans.Length() >= 2 {
			add(spans.Eq(0).Text(), spans.Eq(1).Text())
		}
	})
	return details
}

// parseSearchPage extracts up to limit listings from a /s?k= results page
func parseSearchPage(doc *goquery.Document, baseURL *url.URL, currency string, limit int) []domain.ProductRecord {
	var records []domain.ProductRecord
	seen := make(map[string]bool)

	doc.Find("div.s-main-slot div[data-component-type='s-search-result']").EachWithBreak(func(_ int, selection *goquery.Selection) bool {
		if limit > 0 && len(records) >= limit {
			return false
		}
		asin := strings.ToUpper(strings.TrimSpace(selection.AttrOr("data-asin", "")))
		title := cleanText(selection.Find("h2 span").First().Text())
		if !asinPattern.MatchString(asin) || title == "" || seen[asin] {
			return true
		}
		seen[asin] = true

		rec := domain.ProductRecord{
			SourcePlatform: domain.PlatformAmazon,
			SourceID:       asin,
			URL:            resolveLink(baseURL, selection.Find("h2 a").AttrOr("href", ""), asin),
			Title:          title,
			Identifiers:    domain.Identifiers{domain.IdentifierASIN: {asin}},
			Price: parsePrice(firstNonEmpty(
				strings.TrimSpace(selection.Find("span.a-price span.a-offscreen").First().Text()),
				strings.TrimSpace(selection.Find("span.a-price-whole").First().Text()),
			), currency),
		}
		if img := selection.Find("img.s-image").AttrOr("src", ""); img != "" {
			rec.Images = []string{img}
		}
		records = append(records, rec)
		return true
	})
	return records
}

// isRobotCheck reports whether Amazon served its captcha interstitial instead of content
func isRobotCheck(doc *goquery.Document) bool {
	return doc.Find("form[action*='validateCaptcha']").Length() > 0
}

// parsePrice reads "$1,299.99" style strings. Unparseable input yields nil.
func parsePrice(text, currency string) *domain.Price {
	digits := priceDigits.FindString(text)
	if digits == "" {
		return nil
	}
	digits = strings.TrimRight(strings.ReplaceAll(digits, ",", ""), ".")
	amount, err := decimal.NewFromString(digits)
	if err != nil {
		return nil
	}
	return &domain.Price{Amount: amount, Currency: currency}
}

// cleanBrand strips the byline decorations: "Visit the Stanley Store", "Brand: Stanley"
func cleanBrand(byline string) string {
	b := cleanText(byline)
	b = strings.TrimPrefix(b, "Brand:")
	b = strings.TrimPrefix(b, "Visit the")
	b = strings.TrimSuffix(b, "Store")
	return strings.TrimSpace(b)
}

func resolveLink(base *url.URL, href, asin string) string {
	if href == "" {
		return base.JoinPath("dp", asin).String()
	}
	ref, err := url.Parse(href)
	if err != nil {
		return base.JoinPath("dp", asin).String()
	}
	return base.ResolveReference(ref).String()
}

func cleanText(s string) string {
	s = invisibleRun.ReplaceAllString(s, "")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

func textOrFallback(sel *goquery.Selection, fallback string) string {
	text := cleanText(sel.First().Text())
	if text == "" {
		return fallback
	}
	return text
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
