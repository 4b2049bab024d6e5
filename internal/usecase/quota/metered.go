package quota

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
	"github.com/kailas-cloud/searchscout/internal/metrics"
)

// Compile-time check: MeteredModel is a drop-in language model.
var _ domain.LanguageModel = (*MeteredModel)(nil)

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// MeteredModel wraps a language model with budget enforcement and usage accounting.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai;
// this layer owns the budget and the budget gauges.
type MeteredModel struct {
	inner    domain.LanguageModel
	provider string
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewMeteredModel wraps inner. A nil budget only propagates usage to the request collector.
func NewMeteredModel(
	inner domain.LanguageModel, provider string,
	budget BudgetChecker, logger *zap.Logger,
) *MeteredModel {
	return &MeteredModel{
		inner:    inner,
		provider: provider,
		budget:   budget,
		logger:   logger,
	}
}

// Summarize checks the budget, delegates, and records usage.
func (m *MeteredModel) Summarize(ctx context.Context, text, title string) (string, error) {
	if err := m.check(ctx, "summarize"); err != nil {
		return "", err
	}

	callCtx, usage := domain.NewContextWithUsage(ctx)
	start := time.Now()
	summary, err := m.inner.Summarize(callCtx, text, title)
	duration := time.Since(start)
	m.record(ctx, usage, err)

	if err != nil {
		m.logger.Debug("Summary request failed",
			zap.String("provider", m.provider),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", fmt.Errorf("summarize: %w", err)
	}
	return summary, nil
}

// BatchEmbed checks the budget, delegates, and records usage.
func (m *MeteredModel) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := m.check(ctx, "embed"); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	callCtx, usage := domain.NewContextWithUsage(ctx)
	start := time.Now()
	res, err := m.inner.BatchEmbed(callCtx, texts)
	duration := time.Since(start)
	m.record(ctx, usage, err)

	if err != nil {
		m.logger.Debug("Embedding request failed",
			zap.String("provider", m.provider),
			zap.Int("batch_size", len(texts)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}

	m.logger.Debug("Batch embedding completed",
		zap.String("provider", m.provider),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", usage.TotalTokens()),
		zap.Duration("duration", duration),
	)
	return res, nil
}

func (m *MeteredModel) check(ctx context.Context, op string) error {
	if m.budget == nil {
		return nil
	}
	if err := m.budget.Check(ctx); err != nil {
		m.logger.Warn("Token budget exceeded",
			zap.String("provider", m.provider),
			zap.String("operation", op),
			zap.Error(err),
		)
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

// record forwards tokens to the request-level collector, if any, and charges
// the budget only for calls that reached the provider (cache hits are free).
func (m *MeteredModel) record(ctx context.Context, usage *domain.AIUsage, err error) {
	tokens := usage.TotalTokens()
	if err == nil || usage.Used() {
		domain.UsageFromContext(ctx).AddTokens(tokens)
	}

	if m.budget == nil || !usage.Used() {
		return
	}
	m.budget.Record(int64(tokens))
	remaining := metrics.AIBudgetTokensRemaining
	remaining.WithLabelValues(m.provider, "daily").Set(float64(m.budget.RemainingDaily()))
	remaining.WithLabelValues(m.provider, "monthly").Set(float64(m.budget.RemainingMonthly()))
}
