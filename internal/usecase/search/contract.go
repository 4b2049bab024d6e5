package search

import (
	"context"

	"github.com/kailas-cloud/searchscout/internal/domain"
)

// Backend runs the upstream web search.
type Backend interface {
	Search(ctx context.Context, q domain.SearchQuery) (domain.SearchPage, error)
}

// Extractor fetches and cleans page content. It never fails; degraded pages come back empty.
type Extractor interface {
	Extract(ctx context.Context, url string) domain.ExtractedContent
	BatchExtract(ctx context.Context, urls []string) map[string]domain.ExtractedContent
}

// Enricher derives heuristic metadata for a hit.
type Enricher interface {
	Enrich(hit domain.RawHit, bodyText string) domain.EnrichedMetadata
}

// CitationFormatter builds bibliographic citations.
type CitationFormatter interface {
	Format(title, url, source string, publishedDate *string) domain.Citation
}

// Augmenter provides the optional AI stage of batch enrichment.
type Augmenter interface {
	Enabled() bool
	Summarize(ctx context.Context, body, title string) *string
	EmbedBatch(ctx context.Context, texts []string) [][]float32
	Deduplicate(embeddings [][]float32) []int
}

// Gate admits callers against their request budget.
type Gate interface {
	Admit(ctx context.Context, identity string) (domain.Decision, error)
}
