// Package search orchestrates result enrichment in batch and stream modes.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
)

// Orchestration limits.
const (
	SnippetMaxChars       = 500
	DefaultExtractTimeout = 10 * time.Second
	untitled              = "Untitled"
	unknownEngine         = "unknown"

	modeBatch  = "batch"
	modeStream = "stream"
)

var errEmptyQuery = fmt.Errorf("%w: query is required", domain.ErrInvalidRequest)

// Deps are the collaborators of the enrichment pipeline.
type Deps struct {
	Backend   Backend
	Extractor Extractor
	Enricher  Enricher
	Citations CitationFormatter
	AI        Augmenter
	Gate      Gate
}

// Config tunes concurrency and timeouts.
type Config struct {
	// MaxConcurrency bounds per-item fan-out in batch mode. Zero means unbounded.
	MaxConcurrency int
	// ExtractTimeout bounds each extraction in stream mode.
	ExtractTimeout time.Duration
}

// Service is the enrichment orchestrator.
type Service struct {
	backend   Backend
	extractor Extractor
	enricher  Enricher
	citations CitationFormatter
	ai        Augmenter
	gate      Gate

	maxConcurrency int
	extractTimeout time.Duration

	enriched     *prometheus.CounterVec
	dedupDropped prometheus.Counter
	newStreamID  func() string
	logger       *zap.Logger
}

// New creates the orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) *Service {
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = DefaultExtractTimeout
	}
	return &Service{
		backend:        deps.Backend,
		extractor:      deps.Extractor,
		enricher:       deps.Enricher,
		citations:      deps.Citations,
		ai:             deps.AI,
		gate:           deps.Gate,
		maxConcurrency: cfg.MaxConcurrency,
		extractTimeout: cfg.ExtractTimeout,
		newStreamID:    uuid.NewString,
		logger:         logger,
	}
}

// WithMetrics attaches a result counter (label "mode") and a dedup drop counter.
func (s *Service) WithMetrics(enriched *prometheus.CounterVec, dedupDropped prometheus.Counter) *Service {
	s.enriched = enriched
	s.dedupDropped = dedupDropped
	return s
}

// Admit checks the caller's request budget. Denials return *domain.AdmissionDeniedError.
func (s *Service) Admit(ctx context.Context, identity string) (domain.Decision, error) {
	d, err := s.gate.Admit(ctx, identity)
	if err != nil {
		return d, fmt.Errorf("admit: %w", err)
	}
	return d, nil
}

// AIEnabled reports whether the AI stage is available.
func (s *Service) AIEnabled() bool {
	return s.ai != nil && s.ai.Enabled()
}

func (s *Service) search(ctx context.Context, q domain.SearchQuery) (domain.SearchPage, error) {
	page, err := s.backend.Search(ctx, q)
	if err != nil {
		if errors.Is(err, domain.ErrBackendUnavailable) {
			return domain.SearchPage{}, err
		}
		return domain.SearchPage{}, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return page, nil
}

// assemble builds one enriched result from a hit and its extracted content.
func (s *Service) assemble(hit domain.RawHit, extracted domain.ExtractedContent) domain.EnrichedResult {
	snippet := truncateRunes(hit.Snippet, SnippetMaxChars)

	title := hit.Title
	if extracted.Title != "" {
		title = extracted.Title
	}
	if title == "" {
		title = untitled
	}

	content := extracted.BodyText
	if content == "" {
		content = snippet
	}
	if content == "" {
		content = domain.NoContentMarker
	}

	md := s.enricher.Enrich(hit, content)

	engine := hit.Engine
	if engine == "" {
		engine = unknownEngine
	}

	return domain.EnrichedResult{
		Title:    title,
		URL:      hit.URL,
		Content:  content,
		Snippet:  snippet,
		Metadata: md,
		Citation: s.citations.Format(title, hit.URL, md.Source, md.PublishedDate),
		Engine:   engine,
	}
}

// safeAssemble converts a panic in one item into an error so the caller can drop it.
func (s *Service) safeAssemble(hit domain.RawHit, extracted domain.ExtractedContent) (r domain.EnrichedResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("assemble %s: panic: %v", hit.URL, p)
		}
	}()
	return s.assemble(hit, extracted), nil
}

func (s *Service) countResults(mode string, n int) {
	if s.enriched != nil && n > 0 {
		s.enriched.WithLabelValues(mode).Add(float64(n))
	}
}

func truncateRunes(s string, limit int) string {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
