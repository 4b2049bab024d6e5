package quota

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
	"github.com/kailas-cloud/searchscout/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

// mockModel reports tokens through the context collector like the real client.
type mockModel struct {
	tokens     int
	err        error
	skipUsage  bool
	embedCalls int
}

func (m *mockModel) Summarize(ctx context.Context, _, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	domain.UsageFromContext(ctx).AddTokens(m.tokens)
	return "summary", nil
}

func (m *mockModel) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.embedCalls++
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	if !m.skipUsage {
		domain.UsageFromContext(ctx).AddTokens(m.tokens)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: m.tokens}, nil
}

func TestMeteredModel_RecordsTokens(t *testing.T) {
	tr := newTestTracker(1000, 0, ActionReject)
	inner := &mockModel{tokens: 40}
	m := NewMeteredModel(inner, "openai", tr, zap.NewNop())

	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := m.Summarize(ctx, "text", "title"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.BatchEmbed(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tr.DailyUsed() != 80 {
		t.Errorf("DailyUsed() = %d, want 80", tr.DailyUsed())
	}
	if tr.DailyRequests() != 2 {
		t.Errorf("DailyRequests() = %d, want 2", tr.DailyRequests())
	}
	if usage.TotalTokens() != 80 {
		t.Errorf("request usage = %d, want 80", usage.TotalTokens())
	}
}

func TestMeteredModel_RejectsOverBudget(t *testing.T) {
	tr := newTestTracker(10, 0, ActionReject)
	tr.Record(10)
	inner := &mockModel{tokens: 5}
	m := NewMeteredModel(inner, "openai", tr, zap.NewNop())

	_, err := m.BatchEmbed(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrAIBudgetExceeded) {
		t.Fatalf("expected ErrAIBudgetExceeded, got %v", err)
	}
	if inner.embedCalls != 0 {
		t.Errorf("inner called %d times, want 0", inner.embedCalls)
	}
}

func TestMeteredModel_InnerError(t *testing.T) {
	inner := &mockModel{err: errors.New("boom")}
	m := NewMeteredModel(inner, "openai", newTestTracker(0, 0, ActionWarn), zap.NewNop())

	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := m.Summarize(ctx, "t", "t"); err == nil {
		t.Fatal("expected error")
	}
	if usage.Used() {
		t.Error("failed call must not mark the request as having used AI")
	}
}

func TestMeteredModel_CacheHitIsFree(t *testing.T) {
	tr := newTestTracker(0, 0, ActionWarn)
	inner := &mockModel{skipUsage: true}
	m := NewMeteredModel(inner, "openai", tr, zap.NewNop())

	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := m.BatchEmbed(ctx, []string{"cached"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.DailyRequests() != 0 {
		t.Errorf("DailyRequests() = %d, want 0 for a cache hit", tr.DailyRequests())
	}
	if !usage.Used() || usage.TotalTokens() != 0 {
		t.Errorf("usage = %d/%v, want 0 tokens and used", usage.TotalTokens(), usage.Used())
	}
}

func TestMeteredModel_EmptyBatch(t *testing.T) {
	inner := &mockModel{}
	m := NewMeteredModel(inner, "openai", nil, zap.NewNop())

	res, err := m.BatchEmbed(context.Background(), nil)
	if err != nil || res.Embeddings != nil {
		t.Fatalf("expected empty result, got %v, %v", res, err)
	}
	if inner.embedCalls != 0 {
		t.Errorf("inner called %d times, want 0", inner.embedCalls)
	}
}

func TestMeteredModel_NilBudget(t *testing.T) {
	inner := &mockModel{tokens: 7}
	m := NewMeteredModel(inner, "openai", nil, zap.NewNop())

	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := m.Summarize(ctx, "t", "t"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usage.TotalTokens() != 7 {
		t.Errorf("request usage = %d, want 7", usage.TotalTokens())
	}
}
