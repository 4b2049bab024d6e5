// Package embcache caches page embeddings in the shared store so repeated
// results don't spend tokens twice.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
)

// DefaultTTL bounds how long a cached vector is served.
const DefaultTTL = 7 * 24 * time.Hour

var cacheKeyPrefix = domain.KeyPrefix + "emb_cache:"

// Compile-time check: CachedModel is a drop-in language model.
var _ domain.LanguageModel = (*CachedModel)(nil)

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedModel caches embeddings in a key-value store. Summaries pass through.
type CachedModel struct {
	inner      domain.LanguageModel
	store      store
	namespace  string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. namespace separates vectors of different
// embedding models; cacheTotal is a counter vec with label "result" ("hit"/"miss").
func New(
	inner domain.LanguageModel,
	s store,
	namespace string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedModel {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedModel{
		inner:      inner,
		store:      s,
		namespace:  namespace,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Summarize delegates to the inner model.
func (c *CachedModel) Summarize(ctx context.Context, text, title string) (string, error) {
	summary, err := c.inner.Summarize(ctx, text, title)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return summary, nil
}

// BatchEmbed serves cached vectors and sends only the misses to the inner model.
// Token counts in the result cover the misses alone.
func (c *CachedModel) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.cacheKey(t)
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	cached := c.getFromCache(ctx, keys)
	for i := range texts {
		if vec, ok := c.decode(keys[i], cached, i); ok {
			out[i] = vec
			c.incCache("hit")
			continue
		}
		c.incCache("miss")
		missIdx = append(missIdx, i)
	}

	if len(missIdx) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: out}, nil
	}

	missTexts := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
	}

	res, err := c.inner.BatchEmbed(ctx, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed misses: %w", err)
	}
	if len(res.Embeddings) != len(missTexts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed misses: got %d vectors, want %d: %w",
			len(res.Embeddings), len(missTexts), domain.ErrAIProviderError)
	}

	for j, i := range missIdx {
		out[i] = res.Embeddings[j]
		c.putToCache(ctx, keys[i], res.Embeddings[j])
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

func (c *CachedModel) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedModel) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.namespace + "\x00" + text))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

// getFromCache returns nil on store failure; every text then counts as a miss.
func (c *CachedModel) getFromCache(ctx context.Context, keys []string) [][]byte {
	data, err := c.store.GetMulti(ctx, keys)
	if err != nil {
		c.logger.Warn("Failed to read embedding cache", zap.Int("keys", len(keys)), zap.Error(err))
		return nil
	}
	return data
}

func (c *CachedModel) decode(key string, cached [][]byte, i int) ([]float32, bool) {
	if i >= len(cached) || len(cached[i]) == 0 {
		return nil, false
	}
	vec, err := bytesToVector(cached[i])
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedModel) putToCache(ctx context.Context, key string, vec []float32) {
	if err := c.store.SetWithTTL(ctx, key, vectorToCacheBytes(vec), c.ttl); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
