package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/searchscout/internal/domain"
	"github.com/kailas-cloud/searchscout/internal/metrics"
)

// Compile-time check: Client implements the language model contracts.
var (
	_ domain.LanguageModel = (*Client)(nil)
	_ domain.HealthChecker = (*Client)(nil)
)

// Defaults applied when Config leaves a field empty.
const (
	DefaultSummaryModel   = openai.GPT4oMini
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
	DefaultTimeout        = 30 * time.Second

	summaryMaxTokens   = 150
	summaryTemperature = 0.3

	opSummarize = "summarize"
	opEmbed     = "embed"
)

const summarySystemPrompt = "You are a helpful assistant that creates concise, accurate summaries " +
	"of articles and web content."

// Client is a language model backend using the OpenAI-compatible API.
type Client struct {
	client         *openai.Client
	summaryModel   string
	embeddingModel openai.EmbeddingModel
	timeout        time.Duration
	limiter        *rate.Limiter
	logger         *zap.Logger
}

// Config holds the language model backend settings.
type Config struct {
	APIKey         string
	BaseURL        string
	SummaryModel   string
	EmbeddingModel string
	Timeout        time.Duration
	// RequestsPerMinute throttles outbound calls. Zero disables throttling.
	RequestsPerMinute int
	Burst             int
	Logger            *zap.Logger
}

// NewClient creates an OpenAI-compatible language model client.
func NewClient(cfg *Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	c := &Client{
		client:         openai.NewClientWithConfig(clientCfg),
		summaryModel:   cfg.SummaryModel,
		embeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
		timeout:        cfg.Timeout,
		logger:         cfg.Logger,
	}
	if c.summaryModel == "" {
		c.summaryModel = DefaultSummaryModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = openai.EmbeddingModel(DefaultEmbeddingModel)
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if cfg.RequestsPerMinute > 0 {
		burst := max(cfg.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), burst)
	}
	return c
}

// Summarize implements domain.Summarizer with a short chat completion.
func (c *Client) Summarize(ctx context.Context, text, title string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model: c.summaryModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: summaryPrompt(text, title)},
		},
		MaxTokens:   summaryMaxTokens,
		Temperature: summaryTemperature,
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.AIRequestsTotal.WithLabelValues(opSummarize, "error").Inc()
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.AIRequestsTotal.WithLabelValues(opSummarize, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrAIProviderError)
	}

	metrics.AIRequestsTotal.WithLabelValues(opSummarize, "success").Inc()
	metrics.AIRequestDuration.WithLabelValues(opSummarize).Observe(duration.Seconds())
	c.recordTokens(ctx, opSummarize, resp.Usage.PromptTokens, resp.Usage.TotalTokens)

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// BatchEmbed implements domain.BatchEmbedder in a single API call.
// Result order matches input order regardless of the order the API returns.
func (c *Client) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          c.embeddingModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	start := time.Now()
	resp, err := c.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.AIRequestsTotal.WithLabelValues(opEmbed, "error").Inc()
		return domain.BatchEmbeddingResult{}, parseAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		metrics.AIRequestsTotal.WithLabelValues(opEmbed, "error").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embedding count mismatch: got %d, want %d: %w",
			len(resp.Data), len(texts), domain.ErrAIProviderError)
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || embeddings[d.Index] != nil {
			metrics.AIRequestsTotal.WithLabelValues(opEmbed, "error").Inc()
			return domain.BatchEmbeddingResult{}, fmt.Errorf("embedding index %d invalid: %w",
				d.Index, domain.ErrAIProviderError)
		}
		embeddings[d.Index] = d.Embedding
	}

	metrics.AIRequestsTotal.WithLabelValues(opEmbed, "success").Inc()
	metrics.AIRequestDuration.WithLabelValues(opEmbed).Observe(duration.Seconds())
	c.recordTokens(ctx, opEmbed, resp.Usage.PromptTokens, resp.Usage.TotalTokens)

	c.logger.Debug("Generated embeddings",
		zap.Int("count", len(embeddings)),
		zap.Duration("duration", duration),
	)

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle: %w: %w", domain.ErrAIProviderError, err)
	}
	return nil
}

// recordTokens feeds the Prometheus counters and the request usage collector, if any.
func (c *Client) recordTokens(ctx context.Context, op string, prompt, total int) {
	domain.UsageFromContext(ctx).AddTokens(total)
	if total <= 0 {
		return
	}
	metrics.AITokensTotal.WithLabelValues(op, "prompt").Add(float64(prompt))
	metrics.AITokensTotal.WithLabelValues(op, "total").Add(float64(total))
}

func summaryPrompt(text, title string) string {
	return "Summarize the following article in 2-3 concise sentences. " +
		"Focus on the main points and key takeaways.\n\n" +
		"Title: " + title + "\n\nContent:\n" + text + "\n\nSummary:"
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrAIProviderError.
func parseAPIError(err error) error {
	wrap := domain.ErrAIProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("language model API error %d: %s: %w",
			reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("language model API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("language model request failed: %w: %w", wrap, err)
}

// extractDetail extracts the "detail" field from a JSON error body (used by some compatible providers).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
