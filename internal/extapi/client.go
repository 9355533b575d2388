package extapi

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

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/util"
)

// Page is one page of raw records from the external catalog API. Total is
// the declared total record count for the query; some external systems omit
// it, in which case TotalKnown is false and Total is zero.
type Page struct {
	Records    []json.RawMessage
	Total      int
	TotalKnown bool
}

// Client fetches catalog pages from an external system. Any transport
// failure, non-2xx status, or malformed envelope is returned as an error for
// the whole page; retry policy belongs to the caller.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new external API client with a bounded per-request timeout
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// envelope is the response shape most external systems use. A bare JSON
// array body is also accepted.
type envelope struct {
	Success *bool             `json:"success"`
	Data    []json.RawMessage `json:"data"`
	Total   *int              `json:"total"`
	Message string            `json:"message"`
}

// FetchPage fetches one page of records for a brand from the endpoint
// registered under endpointKey in the config's endpoint map.
func (c *Client) FetchPage(ctx context.Context, cfg *models.SyncConfig, brandID, endpointKey string, page, perPage int) (*Page, error) {
	path, ok := cfg.Endpoints[endpointKey]
	if !ok {
		return nil, fmt.Errorf("no endpoint configured for key %q", endpointKey)
	}

	reqURL, err := buildURL(cfg.BaseURL, path, brandID, page, perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to build request url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	util.ExternalAPIRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		util.ExternalAPIRequestsTotal.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("external api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		util.ExternalAPIRequestsTotal.WithLabelValues("http_error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("external api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		util.ExternalAPIRequestsTotal.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("failed to read external api response: %w", err)
	}

	pageData, err := decodePage(body)
	if err != nil {
		util.ExternalAPIRequestsTotal.WithLabelValues("decode_error").Inc()
		return nil, err
	}

	util.ExternalAPIRequestsTotal.WithLabelValues("ok").Inc()
	return pageData, nil
}

func buildURL(baseURL, path, brandID string, page, perPage int) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if brandID != "" {
		q.Set("brand_id", brandID)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func decodePage(body []byte) (*Page, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var records []json.RawMessage
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("malformed external api response: %w", err)
		}
		return &Page{Records: records}, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed external api response: %w", err)
	}
	if env.Success != nil && !*env.Success {
		return nil, fmt.Errorf("external api reported failure: %s", env.Message)
	}

	p := &Page{Records: env.Data}
	if env.Total != nil {
		p.Total = *env.Total
		p.TotalKnown = true
	}
	return p, nil
}
