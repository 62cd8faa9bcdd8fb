package amazon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorpulse/backend/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "usd", 0, nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("", "", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL.String())
	assert.Equal(t, "USD", c.currency)
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient("not a url", "", 0, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestClient_GetByID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dp/B0CJZMP7L1", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.Equal(t, "en-US,en;q=0.9", r.Header.Get("Accept-Language"))
		w.Write([]byte(productPage))
	})

	rec, err := c.GetByID(context.Background(), "b0cjzmp7l1")

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "B0CJZMP7L1", rec.SourceID)
	assert.Equal(t, "Stanley", rec.Brand)
	assert.Contains(t, rec.URL, "/dp/B0CJZMP7L1")
}

func TestClient_GetByID_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec, err := c.GetByID(context.Background(), "B0CJZMP7L1")

	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestClient_GetByID_MalformedASIN(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.GetByID(context.Background(), "123")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestClient_Throttled(t *testing.T) {
	for _, status := range []int{http.StatusServiceUnavailable, http.StatusTooManyRequests} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})

		_, err := c.GetByID(context.Background(), "B0CJZMP7L1")
		assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
		assert.True(t, domain.IsRetryable(err))
	}
}

func TestClient_RobotCheck(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><form action="/errors/validateCaptcha"></form></html>`))
	})

	_, err := c.Search(context.Background(), domain.CatalogQuery{Keywords: "stanley"}, 5)
	assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
}

func TestClient_Search(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/s", r.URL.Path)
		assert.Equal(t, "stanley quencher 40oz", r.URL.Query().Get("k"))
		w.Write([]byte(searchPage))
	})

	recs, err := c.Search(context.Background(), domain.CatalogQuery{Keywords: "stanley quencher 40oz"}, 2)

	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "USD", recs[0].Price.Currency)
}

func TestClient_Search_IdentifierAsKeyword(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "041604394931", r.URL.Query().Get("k"))
		w.Write([]byte(`<html><div class="s-main-slot"></div></html>`))
	})

	recs, err := c.Search(context.Background(), domain.CatalogQuery{
		Keywords:       "stanley",
		IdentifierType: domain.IdentifierUPC,
		Identifier:     "041604394931",
	}, 5)

	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestClient_Search_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.Search(context.Background(), domain.CatalogQuery{}, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
