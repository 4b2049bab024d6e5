package searchscout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	dbRedis "github.com/kailas-cloud/searchscout/internal/db/redis"
	"github.com/kailas-cloud/searchscout/internal/domain"
	"github.com/kailas-cloud/searchscout/internal/domain/search/event"
	"github.com/kailas-cloud/searchscout/internal/domain/search/request"
	budgetrepo "github.com/kailas-cloud/searchscout/internal/repository/budget"
	windowrepo "github.com/kailas-cloud/searchscout/internal/repository/window"
	openaiLLM "github.com/kailas-cloud/searchscout/internal/transport/openai"
	"github.com/kailas-cloud/searchscout/internal/transport/searxng"
	aiuc "github.com/kailas-cloud/searchscout/internal/usecase/ai"
	"github.com/kailas-cloud/searchscout/internal/usecase/citation"
	"github.com/kailas-cloud/searchscout/internal/usecase/enrich"
	"github.com/kailas-cloud/searchscout/internal/usecase/extract"
	healthuc "github.com/kailas-cloud/searchscout/internal/usecase/health"
	"github.com/kailas-cloud/searchscout/internal/usecase/quota"
	"github.com/kailas-cloud/searchscout/internal/usecase/ratelimit"
	searchuc "github.com/kailas-cloud/searchscout/internal/usecase/search"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the searchscout SDK entry point. It runs the enrichment pipeline in process.
type Client struct {
	searchSvc  *searchuc.Service
	backend    *searxng.Client
	healthSvc  *healthuc.Service
	maxResults int
	budget     *quota.Tracker
	store      *dbRedis.Store
	stopSweep  context.CancelFunc
}

// New creates a Client. WithSearXNG is required.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		dedupThreshold: aiuc.DefaultThreshold,
		maxResults:     request.MaxLimit,
		logger:         zap.NewNop(),
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.searxngURL == "" {
		return nil, errors.New("searchscout: SearXNG URL required (use WithSearXNG)")
	}

	backend, err := searxng.NewClient(cfg.searxngURL, cfg.searchTimeout, cfg.logger.Named("searxng"))
	if err != nil {
		return nil, fmt.Errorf("searchscout: %w", err)
	}

	extractor := extract.New(extract.Config{
		Timeout:          cfg.extractTimeout,
		MaxContentLength: cfg.maxContentLength,
		UserAgent:        cfg.userAgent,
		MaxConcurrency:   cfg.maxConcurrency,
	}, cfg.logger.Named("extract"))

	c := &Client{backend: backend, maxResults: cfg.maxResults}

	if len(cfg.redisAddrs) > 0 {
		if err := c.openStore(cfg); err != nil {
			return nil, err
		}
	}

	// Nil interfaces, not typed nil pointers, when AI is off.
	var (
		model     domain.LanguageModel
		aiChecker healthuc.Checker
	)
	if cfg.openAIKey != "" {
		llm := openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:            cfg.openAIKey,
			BaseURL:           cfg.openAIBaseURL,
			SummaryModel:      cfg.summaryModel,
			EmbeddingModel:    cfg.embeddingModel,
			Timeout:           cfg.aiTimeout,
			RequestsPerMinute: cfg.aiRPM,
			Logger:            cfg.logger.Named("openai"),
		})
		aiChecker = llm

		action := quota.ActionWarn
		if cfg.budgetReject {
			action = quota.ActionReject
		}
		c.budget = quota.NewTracker("openai", cfg.dailyTokens, cfg.monthlyTokens, action, cfg.logger.Named("budget"))
		if c.store != nil {
			c.budget.WithStore(context.Background(),
				budgetrepo.New(c.store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
		}
		model = quota.NewMeteredModel(llm, "openai", c.budget, cfg.logger.Named("budget"))
	}

	gate := c.buildGate(cfg)

	// Pass a nil interface, not a typed nil pointer, without Redis.
	var pinger healthuc.Pinger
	if c.store != nil {
		pinger = c.store
	}

	c.searchSvc = searchuc.New(searchuc.Deps{
		Backend:   backend,
		Extractor: extractor,
		Enricher:  enrich.NewDefault(),
		Citations: citation.NewDefault(),
		AI:        aiuc.New(model, cfg.dedupThreshold, cfg.logger.Named("ai")),
		Gate:      gate,
	}, searchuc.Config{
		MaxConcurrency: cfg.maxConcurrency,
		ExtractTimeout: cfg.extractTimeout,
	}, cfg.logger.Named("search"))
	c.healthSvc = healthuc.New(backend, aiChecker, pinger)

	return c, nil
}

func (c *Client) openStore(cfg *clientConfig) error {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.redisAddrs,
		Password: cfg.redisPassword,
	})
	if err != nil {
		return fmt.Errorf("searchscout: create redis store: %w", err)
	}
	if err := store.WaitForReady(context.Background(), defaultReadinessTimeout); err != nil {
		store.Close()
		return fmt.Errorf("searchscout: redis not ready: %w", err)
	}
	c.store = store
	return nil
}

func (c *Client) buildGate(cfg *clientConfig) searchuc.Gate {
	switch {
	case cfg.ratePerMinute <= 0:
		return openGate{}
	case c.store != nil:
		return ratelimit.NewSharedGate(windowrepo.New(c.store), cfg.ratePerMinute, cfg.logger.Named("ratelimit"))
	default:
		gate := ratelimit.NewGate(cfg.ratePerMinute, cfg.logger.Named("ratelimit"))
		ctx, cancel := context.WithCancel(context.Background())
		c.stopSweep = cancel
		go gate.Run(ctx)
		return gate
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.stopSweep != nil {
		c.stopSweep()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Search runs the batch pipeline and returns every enriched result at once.
func (c *Client) Search(ctx context.Context, query string, opts *SearchOptions) (*Response, error) {
	if opts == nil {
		opts = &SearchOptions{}
	}
	req, err := request.New(query, opts.Limit, c.maxResults,
		strings.Join(opts.Engines, ","), opts.Language,
		request.AIFlags{Summarize: opts.Summarize, Embed: opts.Embeddings, Dedup: opts.Dedup})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	resp, err := c.searchSvc.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return &resp, nil
}

// Stream runs the incremental pipeline, calling fn for every event in order.
// Returning an error from fn stops the stream and is returned.
func (c *Client) Stream(ctx context.Context, query string, opts *StreamOptions, fn func(Event) error) error {
	if opts == nil {
		opts = &StreamOptions{}
	}
	req, err := request.New(query, opts.Limit, c.maxResults,
		strings.Join(opts.Engines, ","), opts.Language, request.AIFlags{})
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}

	return c.searchSvc.Stream(ctx, req, func(e event.Event) error {
		return fn(fromEvent(e))
	})
}

// Admit charges one request against identity's budget.
// A denial returns an error matching ErrRateLimited; see RetryAfter.
func (c *Client) Admit(ctx context.Context, identity string) (Decision, error) {
	d, err := c.searchSvc.Admit(ctx, identity)
	if err != nil {
		return d, fmt.Errorf("admit: %w", err)
	}
	return d, nil
}

// Engines lists the engines enabled on the SearXNG instance.
func (c *Client) Engines(ctx context.Context) []string {
	return c.backend.Engines(ctx)
}

// Health checks SearXNG, the AI backend and Redis when configured.
func (c *Client) Health(ctx context.Context) HealthReport {
	r := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(r.Checks))
	for k, v := range r.Checks {
		checks[k] = string(v)
	}
	return HealthReport{Status: string(r.Status), Checks: checks}
}

// TokenUsage reports AI token consumption for the current UTC day and month.
// ok is false when AI features are disabled.
func (c *Client) TokenUsage() (usage TokenUsage, ok bool) {
	if c.budget == nil {
		return TokenUsage{}, false
	}
	return TokenUsage{
		DailyUsed:        c.budget.DailyUsed(),
		MonthlyUsed:      c.budget.MonthlyUsed(),
		DailyRemaining:   c.budget.RemainingDaily(),
		MonthlyRemaining: c.budget.RemainingMonthly(),
	}, true
}

// openGate admits every caller.
type openGate struct{}

func (openGate) Admit(_ context.Context, _ string) (domain.Decision, error) {
	return domain.Decision{Allowed: true}, nil
}
