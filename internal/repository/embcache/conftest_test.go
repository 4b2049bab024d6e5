package embcache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
)

type mockModel struct {
	vector     []float32
	tokensPer  int
	batchErr   error
	batchCalls int
	lastBatch  []string
}

func (m *mockModel) Summarize(_ context.Context, _, _ string) (string, error) {
	return "summary", nil
}

func (m *mockModel) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	m.lastBatch = texts
	if m.batchErr != nil {
		return domain.BatchEmbeddingResult{}, m.batchErr
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = m.vector
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: m.tokensPer * len(texts),
		TotalTokens:  m.tokensPer * len(texts),
	}, nil
}

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	getFn func(ctx context.Context, keys []string) ([][]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func (m *mockKVStore) GetMulti(ctx context.Context, keys []string) ([][]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, keys)
	}
	return make([][]byte, len(keys)), nil
}

func (m *mockKVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	return nil
}

func newTestCachedModel(t *testing.T, inner *mockModel) (*CachedModel, *mockKVStore) {
	t.Helper()
	ms := &mockKVStore{}
	cm := New(inner, ms, "text-embedding-3-small", time.Hour, nil, zap.NewNop())
	return cm, ms
}
