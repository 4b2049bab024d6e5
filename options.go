package searchscout

import (
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	searxngURL    string
	searchTimeout time.Duration

	extractTimeout   time.Duration
	maxContentLength int
	userAgent        string
	maxConcurrency   int

	openAIKey      string
	openAIBaseURL  string
	summaryModel   string
	embeddingModel string
	aiTimeout      time.Duration
	aiRPM          int
	dedupThreshold float64

	dailyTokens   int64
	monthlyTokens int64
	budgetReject  bool

	ratePerMinute int
	redisAddrs    []string
	redisPassword string

	maxResults int
	logger     *zap.Logger
}

// WithSearXNG sets the base URL of the SearXNG instance. Required.
func WithSearXNG(baseURL string) Option {
	return optionFunc(func(c *clientConfig) {
		c.searxngURL = baseURL
	})
}

// WithSearchTimeout bounds each SearXNG request. Defaults to 30s.
func WithSearchTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.searchTimeout = d
	})
}

// WithExtraction tunes page fetching: per-page timeout and maximum characters kept.
// Defaults: 10s, 5000.
func WithExtraction(timeout time.Duration, maxContentLength int) Option {
	return optionFunc(func(c *clientConfig) {
		c.extractTimeout = timeout
		c.maxContentLength = maxContentLength
	})
}

// WithUserAgent overrides the User-Agent sent when fetching pages.
func WithUserAgent(ua string) Option {
	return optionFunc(func(c *clientConfig) {
		c.userAgent = ua
	})
}

// WithMaxConcurrency bounds concurrent page fetches and per-result work. 0 = unbounded.
func WithMaxConcurrency(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxConcurrency = n
	})
}

// WithOpenAI enables summaries, embeddings and dedup with the given API key.
func WithOpenAI(apiKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openAIKey = apiKey
	})
}

// WithOpenAIBaseURL points the AI stage at an OpenAI-compatible endpoint.
func WithOpenAIBaseURL(baseURL string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openAIBaseURL = baseURL
	})
}

// WithModels overrides the summary and embedding models. Empty keeps the default.
func WithModels(summary, embedding string) Option {
	return optionFunc(func(c *clientConfig) {
		c.summaryModel = summary
		c.embeddingModel = embedding
	})
}

// WithAIThrottle caps outbound AI requests per minute.
func WithAIThrottle(requestsPerMinute int) Option {
	return optionFunc(func(c *clientConfig) {
		c.aiRPM = requestsPerMinute
	})
}

// WithDedupThreshold sets the cosine similarity at or above which results are duplicates.
// Defaults to 0.95.
func WithDedupThreshold(t float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.dedupThreshold = t
	})
}

// WithTokenBudget caps AI token spend per UTC day and month. Zero means unlimited.
// When reject is true, AI calls past the cap are skipped and results come back
// without summaries or embeddings; otherwise the overrun is only logged.
func WithTokenBudget(daily, monthly int64, reject bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.dailyTokens = daily
		c.monthlyTokens = monthly
		c.budgetReject = reject
	})
}

// WithRateLimit enables per-identity admission for Admit. 0 disables it.
func WithRateLimit(perMinute int) Option {
	return optionFunc(func(c *clientConfig) {
		c.ratePerMinute = perMinute
	})
}

// WithRedis shares rate limit windows and token budget counters across
// processes through Redis.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.redisAddrs = []string{addr}
		c.redisPassword = password
	})
}

// WithMaxResults bounds SearchOptions.Limit. Defaults to 50.
func WithMaxResults(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxResults = n
	})
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
