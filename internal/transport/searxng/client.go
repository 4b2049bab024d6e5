// Package searxng is a client for the SearXNG JSON search API.
package searxng

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
)

// Ensure Client implements the search backend contracts.
var (
	_ domain.Searcher      = (*Client)(nil)
	_ domain.HealthChecker = (*Client)(nil)
)

// Client defaults.
const (
	DefaultTimeout     = 30 * time.Second
	healthCheckTimeout = 5 * time.Second
	userAgent          = "SearchScout/1.0"
	maxErrorBody       = 512
)

// FallbackEngines is reported when the instance does not expose its configuration.
var FallbackEngines = []string{
	"google", "duckduckgo", "bing", "brave", "wikipedia", "github", "stackoverflow",
}

// Client is a SearXNG API client.
type Client struct {
	baseURL *url.URL
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for the instance at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: u,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type searchResponse struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Content       string `json:"content"`
	Engine        string `json:"engine"`
	PublishedDate any    `json:"publishedDate"`
}

// Search runs a query and returns at most q.Limit hits in backend order.
// Any transport, status or decoding failure wraps domain.ErrBackendUnavailable.
func (c *Client) Search(ctx context.Context, q domain.SearchQuery) (domain.SearchPage, error) {
	params := url.Values{}
	params.Set("q", q.Query)
	params.Set("format", "json")
	params.Set("language", q.Language)
	if q.Engines != "" {
		params.Set("engines", q.Engines)
	}

	start := time.Now()

	var resp searchResponse
	if err := c.getJSON(ctx, "search", params, &resp); err != nil {
		c.logger.Error("SearXNG search failed", zap.String("query", q.Query), zap.Error(err))
		return domain.SearchPage{}, fmt.Errorf("searxng search: %w: %w", domain.ErrBackendUnavailable, err)
	}

	results := resp.Results
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}

	hits := make([]domain.RawHit, 0, len(results))
	for _, r := range results {
		hit := domain.RawHit{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Engine:  r.Engine,
		}
		if s, ok := r.PublishedDate.(string); ok {
			hit.PublishedDateHint = s
		}
		hits = append(hits, hit)
	}

	return domain.SearchPage{
		Hits:     hits,
		TimingMS: time.Since(start).Milliseconds(),
	}, nil
}

// HealthCheck probes /healthz, then the root page.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	healthzErr := c.probe(ctx, "healthz")
	if healthzErr == nil {
		return nil
	}
	if err := c.probe(ctx, ""); err != nil {
		return fmt.Errorf("searxng unreachable: %w", err)
	}
	return nil
}

// Engines lists the instance's enabled engines, or FallbackEngines when /config is unavailable.
func (c *Client) Engines(ctx context.Context) []string {
	var cfg struct {
		Engines []struct {
			Name     string `json:"name"`
			Disabled bool   `json:"disabled"`
		} `json:"engines"`
	}
	if err := c.getJSON(ctx, "config", nil, &cfg); err != nil {
		c.logger.Warn("Could not fetch engines list", zap.Error(err))
		return append([]string(nil), FallbackEngines...)
	}

	names := make([]string, 0, len(cfg.Engines))
	for _, e := range cfg.Engines {
		if !e.Disabled {
			names = append(names, e.Name)
		}
	}
	return names
}

func (c *Client) probe(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.JoinPath(path).String(), http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxErrorBody))

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", res.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dst any) error {
	u := c.baseURL.JoinPath(path)
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return fmt.Errorf("api error (status %d): %s", res.StatusCode, string(body))
	}

	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
