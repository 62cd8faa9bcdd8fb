// Package httpcatalog implements domain.CatalogGateway for marketplaces exposing a JSON product API
package httpcatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/creatorpulse/backend/internal/domain"
	"github.com/creatorpulse/backend/internal/platform/logger"
)

const maxErrorBody = 512

// Client talks to one marketplace's product API.
//
//	GET {base}/v1/products/search?q=&identifier_type=&identifier=&category=&limit=
//	GET {base}/v1/products/{id}
//
// Rate limiting and retries are applied by the caller.
type Client struct {
	httpClient  *http.Client
	marketplace domain.Platform
	apiKey      string
	baseURL     string
	log         *logger.Logger
}

// NewClient creates a new catalog API client
func NewClient(marketplace domain.Platform, apiKey, baseURL string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		marketplace: marketplace,
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		log:         log.With("component", "httpcatalog", "marketplace", marketplace),
	}
}

// SetTimeout overrides the per-request timeout. Non-positive values are ignored.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

// doRequest executes an HTTP GET request with proper headers and transport error handling
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "CreatorPulse/1.0")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCatalogUnavailable, c.marketplace, err)
	}
	return resp, nil
}

// Search queries the catalog. The identifier, when set, takes precedence over keywords.
func (c *Client) Search(ctx context.Context, query domain.CatalogQuery, limit int) ([]domain.ProductRecord, error) {
	params := url.Values{}
	if query.Identifier != "" {
		params.Set("identifier_type", string(query.IdentifierType))
		params.Set("identifier", query.Identifier)
	} else {
		params.Set("q", query.Keywords)
	}
	if query.Category != "" {
		params.Set("category", query.Category)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	reqURL := fmt.Sprintf("%s/v1/products/search?%s", c.baseURL, params.Encode())

	resp, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %s: failed to decode search response: %v", domain.ErrCatalogUnavailable, c.marketplace, err)
	}

	records := make([]domain.ProductRecord, 0, len(body.Products))
	for i, raw := range body.Products {
		rec, err := mapProduct(c.marketplace, raw)
		if err != nil {
			c.log.Warn("skipping undecodable catalog item", "index", i, "error", err)
			continue
		}
		records = append(records, rec)
	}
	c.log.Debug("catalog search", "identifier", query.Identifier, "keywords", query.Keywords, "results", len(records))
	return records, nil
}

// GetByID fetches one listing. A listing that does not exist yields nil, nil.
func (c *Client) GetByID(ctx context.Context, externalID string) (*domain.ProductRecord, error) {
	reqURL := fmt.Sprintf("%s/v1/products/%s", c.baseURL, url.PathEscape(externalID))

	resp, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to read response: %v", domain.ErrCatalogUnavailable, c.marketplace, err)
	}
	rec, err := mapProduct(c.marketplace, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCatalogUnavailable, c.marketplace, err)
	}
	return &rec, nil
}

// checkStatus maps non-200 responses onto the catalog error taxonomy
func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	c.log.Warn("catalog API error", "status", resp.StatusCode, "body", string(body))

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s: status %d", domain.ErrInvalidCredentials, c.marketplace, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s: status %d", domain.ErrCatalogUnavailable, c.marketplace, resp.StatusCode)
	default:
		return fmt.Errorf("%s catalog rejected request: status %d", c.marketplace, resp.StatusCode)
	}
}
