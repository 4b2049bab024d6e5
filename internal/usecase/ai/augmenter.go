// Package ai wraps the language model backend with truncation, batching and
// embedding-based deduplication. Every backend failure degrades to an absent value.
package ai

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
)

// Limits applied before text reaches the backend.
const (
	DefaultThreshold = 0.95
	DefaultBatchSize = 100

	summaryMaxChars = 3000
	embedMaxChars   = 8000
	truncMarker     = "..."
)

// Augmenter dispatches summaries and embeddings and filters near-duplicates.
// A nil model disables it: every call returns absent values without I/O.
type Augmenter struct {
	model     domain.LanguageModel
	threshold float64
	batchSize int
	logger    *zap.Logger
}

// New creates an augmenter. Pass a nil model when no backend credential is configured.
// A threshold outside [0, 1] falls back to DefaultThreshold; 0 is a valid setting.
func New(model domain.LanguageModel, threshold float64, logger *zap.Logger) *Augmenter {
	if threshold < 0 || threshold > 1 {
		logger.Warn("Dedup threshold out of range, using default",
			zap.Float64("threshold", threshold), zap.Float64("default", DefaultThreshold))
		threshold = DefaultThreshold
	}
	return &Augmenter{
		model:     model,
		threshold: threshold,
		batchSize: DefaultBatchSize,
		logger:    logger,
	}
}

// Enabled reports whether a backend is configured.
func (a *Augmenter) Enabled() bool { return a.model != nil }

// Deduplicate applies Deduplicate with the configured threshold.
func (a *Augmenter) Deduplicate(embeddings [][]float32) []int {
	return Deduplicate(embeddings, a.threshold)
}

// Summarize returns a short summary of body, or nil when disabled or on failure.
func (a *Augmenter) Summarize(ctx context.Context, body, title string) *string {
	if !a.Enabled() {
		return nil
	}

	text := body
	if len([]rune(text)) > summaryMaxChars {
		text = string([]rune(text)[:summaryMaxChars]) + truncMarker
	}

	summary, err := a.model.Summarize(ctx, text, title)
	if err != nil {
		a.logger.Warn("Failed to generate summary", zap.String("title", title), zap.Error(err))
		return nil
	}
	return &summary
}

// EmbedBatch returns one embedding per text, in input order.
// Texts are sent in chunks of at most batchSize; if any chunk fails every entry is nil.
func (a *Augmenter) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	if !a.Enabled() || len(texts) == 0 {
		return out
	}

	truncated := make([]string, len(texts))
	for i, t := range texts {
		if r := []rune(t); len(r) > embedMaxChars {
			t = string(r[:embedMaxChars])
		}
		truncated[i] = t
	}

	for start := 0; start < len(truncated); start += a.batchSize {
		end := min(start+a.batchSize, len(truncated))

		res, err := a.model.BatchEmbed(ctx, truncated[start:end])
		if err == nil && len(res.Embeddings) != end-start {
			err = domain.ErrAIProviderError
		}
		if err != nil {
			a.logger.Warn("Failed to generate batch embeddings",
				zap.Int("texts", len(texts)),
				zap.Int("chunk_start", start),
				zap.Error(err),
			)
			return make([][]float32, len(texts))
		}
		copy(out[start:end], res.Embeddings)
	}

	a.logger.Debug("Generated embeddings", zap.Int("count", len(out)))
	return out
}

// Deduplicate returns the indices of embeddings to keep, in input order.
// An item is dropped when its cosine similarity to any previously kept embedding
// reaches threshold. Items without a usable embedding (nil or zero-norm) are always kept.
func Deduplicate(embeddings [][]float32, threshold float64) []int {
	keep := make([]int, 0, len(embeddings))
	var seen [][]float32

	for i, emb := range embeddings {
		if norm(emb) == 0 {
			keep = append(keep, i)
			continue
		}

		duplicate := false
		for _, s := range seen {
			if CosineSimilarity(emb, s) >= threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		keep = append(keep, i)
		seen = append(seen, emb)
	}
	return keep
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths and zero-norm vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
