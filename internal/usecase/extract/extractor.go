// Package extract fetches web pages and reduces them to their main readable text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
)

// Defaults used when Config leaves a field at zero.
const (
	DefaultTimeout          = 10 * time.Second
	DefaultMaxContentLength = 5000
	DefaultUserAgent        = "Mozilla/5.0 (compatible; SearchScout/1.0)"

	// maxBodyBytes caps how much of a page is read into memory.
	maxBodyBytes = 5 << 20
	truncMarker  = "..."
)

// Extraction outcomes reported to metrics.
const (
	outcomeOK       = "ok"
	outcomeFallback = "fallback"
	outcomeFailed   = "failed"
)

// Config tunes fetching and truncation.
type Config struct {
	Timeout          time.Duration
	MaxContentLength int
	UserAgent        string
	// MaxConcurrency bounds BatchExtract fan-out. Zero means unbounded.
	MaxConcurrency int
}

// Extractor fetches pages and cleans them into plain text.
// Extract never fails: every error degrades to an empty ExtractedContent.
type Extractor struct {
	client         *http.Client
	maxLength      int
	userAgent      string
	maxConcurrency int

	total    *prometheus.CounterVec
	duration prometheus.Observer
	logger   *zap.Logger
}

// New creates an extractor. The http.Client follows redirects and enforces cfg.Timeout.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = DefaultMaxContentLength
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Extractor{
		client:         &http.Client{Timeout: cfg.Timeout},
		maxLength:      cfg.MaxContentLength,
		userAgent:      cfg.UserAgent,
		maxConcurrency: cfg.MaxConcurrency,
		logger:         logger,
	}
}

// WithMetrics attaches an outcome counter (label "outcome") and a duration observer.
func (e *Extractor) WithMetrics(total *prometheus.CounterVec, duration prometheus.Observer) *Extractor {
	e.total = total
	e.duration = duration
	return e
}

// WithHTTPClient replaces the HTTP client (tests, custom transports).
func (e *Extractor) WithHTTPClient(c *http.Client) *Extractor {
	e.client = c
	return e
}

// Extract fetches rawURL and returns its cleaned main content.
func (e *Extractor) Extract(ctx context.Context, rawURL string) domain.ExtractedContent {
	start := time.Now()
	content, outcome := e.extract(ctx, rawURL)
	e.observe(outcome, time.Since(start))
	return content
}

// BatchExtract extracts every distinct URL concurrently and keys the results by URL.
// One URL failing never affects the others.
func (e *Extractor) BatchExtract(ctx context.Context, urls []string) map[string]domain.ExtractedContent {
	out := make(map[string]domain.ExtractedContent, len(urls))
	var mu sync.Mutex

	p := pool.New()
	if e.maxConcurrency > 0 {
		p = p.WithMaxGoroutines(e.maxConcurrency)
	}

	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}

		p.Go(func() {
			content := e.safeExtract(ctx, u)
			mu.Lock()
			out[u] = content
			mu.Unlock()
		})
	}
	p.Wait()

	return out
}

// safeExtract keeps a panic in one page's parsing from taking down the batch.
func (e *Extractor) safeExtract(ctx context.Context, rawURL string) (content domain.ExtractedContent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Extraction panicked",
				zap.String("url", rawURL),
				zap.Any("panic", r),
			)
			content = domain.ExtractedContent{}
		}
	}()
	return e.Extract(ctx, rawURL)
}

func (e *Extractor) extract(ctx context.Context, rawURL string) (domain.ExtractedContent, string) {
	body, pageURL, err := e.fetch(ctx, rawURL)
	if err != nil {
		e.logger.Warn("Failed to fetch page", zap.String("url", rawURL), zap.Error(err))
		return domain.ExtractedContent{}, outcomeFailed
	}
	if body == nil {
		return domain.ExtractedContent{}, outcomeFailed
	}

	content, err := e.readable(body, pageURL)
	if err == nil {
		return content, outcomeOK
	}
	e.logger.Debug("Readability failed, using basic extraction",
		zap.String("url", rawURL), zap.Error(err))

	content, err = e.basic(body)
	if err != nil {
		e.logger.Warn("Basic extraction failed", zap.String("url", rawURL), zap.Error(err))
		return domain.ExtractedContent{}, outcomeFailed
	}
	return content, outcomeFallback
}

// fetch returns a nil body without error when the page is not HTML.
func (e *Extractor) fetch(ctx context.Context, rawURL string) ([]byte, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html") {
		return nil, nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	// Redirects may have moved us; relative links resolve against the final URL.
	return body, resp.Request.URL, nil
}

func (e *Extractor) readable(body []byte, pageURL *url.URL) (domain.ExtractedContent, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return domain.ExtractedContent{}, fmt.Errorf("readability: %w", err)
	}

	text := article.TextContent
	if article.Content != "" {
		rendered, err := renderText(article.Content)
		if err != nil {
			return domain.ExtractedContent{}, fmt.Errorf("render: %w", err)
		}
		text = rendered
	}

	text = normalize(text)
	if text == "" {
		return domain.ExtractedContent{}, fmt.Errorf("readability: no main content")
	}
	return domain.ExtractedContent{
		Title:    strings.TrimSpace(article.Title),
		BodyText: truncate(text, e.maxLength),
	}, nil
}

func (e *Extractor) basic(body []byte) (domain.ExtractedContent, error) {
	title, text, err := visibleText(body)
	if err != nil {
		return domain.ExtractedContent{}, err
	}
	return domain.ExtractedContent{
		Title:    title,
		BodyText: truncate(normalize(text), e.maxLength),
	}, nil
}

func (e *Extractor) observe(outcome string, d time.Duration) {
	if e.total != nil {
		e.total.WithLabelValues(outcome).Inc()
	}
	if e.duration != nil {
		e.duration.Observe(d.Seconds())
	}
}

// normalize trims every line and drops blank ones.
func normalize(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// truncate cuts text to at most limit runes and appends a marker when it cut.
func truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i] + truncMarker
		}
		n++
	}
	return text
}
