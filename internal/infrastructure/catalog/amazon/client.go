// Package amazon implements domain.CatalogGateway by reading Amazon product and search pages
package amazon

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/creatorpulse/backend/internal/domain"
	"github.com/creatorpulse/backend/internal/platform/logger"
)

// DefaultBaseURL is the storefront used when none is configured
const DefaultBaseURL = "https://www.amazon.com"

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
}

// Client reads one Amazon storefront. Prices are reported in the storefront's currency.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	currency   string
	log        *logger.Logger
}

// NewClient creates a storefront client. An empty baseURL selects DefaultBaseURL and an
// empty currency selects USD.
func NewClient(baseURL, currency string, timeout time.Duration, log *logger.Logger) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid amazon base url %q", domain.ErrInvalidRequest, baseURL)
	}
	if currency == "" {
		currency = "USD"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    u,
		currency:   strings.ToUpper(currency),
		log:        log.With("component", "amazon"),
	}, nil
}

// GetByID fetches the product page of an ASIN. A missing listing yields nil, nil.
func (c *Client) GetByID(ctx context.Context, asin string) (*domain.ProductRecord, error) {
	asin = strings.ToUpper(strings.TrimSpace(asin))
	if !asinPattern.MatchString(asin) {
		return nil, fmt.Errorf("%w: malformed ASIN %q", domain.ErrInvalidRequest, asin)
	}
	pageURL := c.baseURL.JoinPath("dp", asin).String()

	doc, found, err := c.fetch(ctx, pageURL)
	if err != nil || !found {
		return nil, err
	}

	rec := parseProductPage(doc, asin, pageURL, c.currency)
	if rec == nil {
		c.log.Warn("product page without title", "asin", asin)
		return nil, nil
	}
	return rec, nil
}

// Search reads the first results page. Amazon search has no identifier filter, so an
// identifier query is sent as the keyword.
func (c *Client) Search(ctx context.Context, query domain.CatalogQuery, limit int) ([]domain.ProductRecord, error) {
	keyword := query.Keywords
	if query.Identifier != "" {
		keyword = query.Identifier
	}
	if strings.TrimSpace(keyword) == "" {
		return nil, fmt.Errorf("%w: empty search", domain.ErrInvalidRequest)
	}

	searchURL := c.baseURL.JoinPath("s")
	searchURL.RawQuery = url.Values{"k": {keyword}}.Encode()

	doc, found, err := c.fetch(ctx, searchURL.String())
	if err != nil || !found {
		return nil, err
	}

	records := parseSearchPage(doc, c.baseURL, c.currency, limit)
	c.log.Debug("amazon search", "keyword", keyword, "results", len(records))
	return records, nil
}

// fetch downloads and parses a page. found is false on 404.
func (c *Client) fetch(ctx context.Context, pageURL string) (*goquery.Document, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgents[int(time.Now().UnixNano())%len(userAgents)])
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, false, fmt.Errorf("%w: amazon: %v", domain.ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		// amazon answers throttled scrapers with 503
		return nil, false, fmt.Errorf("%w: amazon: status %d", domain.ErrCatalogUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("amazon rejected request: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: amazon: failed to parse page: %v", domain.ErrCatalogUnavailable, err)
	}
	if isRobotCheck(doc) {
		c.log.Warn("amazon served a robot check", "url", pageURL)
		return nil, false, fmt.Errorf("%w: amazon: robot check", domain.ErrCatalogUnavailable)
	}
	return doc, true, nil
}
