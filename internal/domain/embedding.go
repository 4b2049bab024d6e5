package domain

import "context"

// BatchEmbedder vectorizes multiple texts in a single backend call.
// Result order matches input order.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// Summarizer produces a short summary of a page.
type Summarizer interface {
	Summarize(ctx context.Context, text, title string) (string, error)
}

// LanguageModel is the full language model backend contract.
type LanguageModel interface {
	BatchEmbedder
	Summarizer
}

// HealthChecker verifies backend availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BatchEmbeddingResult carries embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}
