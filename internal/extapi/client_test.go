package extapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catalog-sync-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientConfig(baseURL string) *models.SyncConfig {
	return &models.SyncConfig{
		BaseURL:   baseURL,
		APIKey:    "secret-key",
		Endpoints: models.EndpointMap{models.EndpointKeyProducts: "/v1/products"},
	}
}

func TestFetchPageEnvelope(t *testing.T) {
	var gotReq *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "total": 42, "data": [{"id": "p1"}, {"id": "p2"}]}`))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	page, err := c.FetchPage(context.Background(), clientConfig(srv.URL), "brand-7", models.EndpointKeyProducts, 2, 25)
	require.NoError(t, err)

	assert.Len(t, page.Records, 2)
	assert.True(t, page.TotalKnown)
	assert.Equal(t, 42, page.Total)

	require.NotNil(t, gotReq)
	assert.Equal(t, "/v1/products", gotReq.URL.Path)
	assert.Equal(t, "secret-key", gotReq.Header.Get("X-API-Key"))
	assert.Equal(t, "2", gotReq.URL.Query().Get("page"))
	assert.Equal(t, "25", gotReq.URL.Query().Get("per_page"))
	assert.Equal(t, "brand-7", gotReq.URL.Query().Get("brand_id"))
}

func TestFetchPageBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("brand_id"), "empty brand must not send the filter")
		w.Write([]byte(`[{"id": "p1"}]`))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	page, err := c.FetchPage(context.Background(), clientConfig(srv.URL), "", models.EndpointKeyProducts, 1, 50)
	require.NoError(t, err)

	assert.Len(t, page.Records, 1)
	assert.False(t, page.TotalKnown, "a bare array declares no total")
	assert.Equal(t, 0, page.Total)
}

func TestFetchPageHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	_, err := c.FetchPage(context.Background(), clientConfig(srv.URL), "", models.EndpointKeyProducts, 1, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestFetchPageReportedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success": false, "message": "invalid api key"}`))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	_, err := c.FetchPage(context.Background(), clientConfig(srv.URL), "", models.EndpointKeyProducts, 1, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestFetchPageMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data": [truncated`))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	_, err := c.FetchPage(context.Background(), clientConfig(srv.URL), "", models.EndpointKeyProducts, 1, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestFetchPageMissingEndpoint(t *testing.T) {
	c := NewClient(5 * time.Second)
	cfg := clientConfig("https://example.com")
	_, err := c.FetchPage(context.Background(), cfg, "", "categories", 1, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no endpoint configured")
}
