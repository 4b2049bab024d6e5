package search

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
	"github.com/kailas-cloud/searchscout/internal/domain/search/request"
)

// Search runs the batch pipeline: search, extract every distinct URL, assemble each hit,
// then the optional AI stage and dedup. Output keeps backend order among surviving items.
func (s *Service) Search(ctx context.Context, req request.Request) (domain.BatchResponse, error) {
	if req.Query() == "" {
		return domain.BatchResponse{}, errEmptyQuery
	}
	flags := req.AI()
	if flags.Any() && !s.AIEnabled() {
		return domain.BatchResponse{}, domain.ErrAIUnavailable
	}
	if flags.Dedup && !flags.Embed {
		return domain.BatchResponse{}, domain.ErrDedupRequiresEmbeddings
	}

	log := s.logger.With(zap.String("query", req.Query()))
	start := time.Now()

	page, err := s.search(ctx, req.SearchQuery())
	if err != nil {
		return domain.BatchResponse{}, err
	}

	resp := domain.BatchResponse{
		Query:        req.Query(),
		Results:      []domain.EnrichedResult{},
		SearchTimeMS: page.TimingMS,
		EnginesUsed:  []string{},
	}
	if len(page.Hits) == 0 {
		return resp, nil
	}

	urls := make([]string, len(page.Hits))
	for i, h := range page.Hits {
		urls[i] = h.URL
	}
	contents := s.extractor.BatchExtract(ctx, urls)

	results := s.assembleAll(page.Hits, contents, log)

	if flags.Summarize || flags.Embed {
		s.augment(ctx, results, flags)
	}
	if flags.Dedup {
		results = s.dedup(results, log)
	}

	s.countResults(modeBatch, len(results))
	log.Info("Batch enrichment finished",
		zap.Int("hits", len(page.Hits)),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", time.Since(start)),
	)

	resp.Results = results
	resp.TotalResults = len(results)
	resp.EnginesUsed = domain.EnginesUsed(page.Hits)
	return resp, nil
}

// assembleAll builds every hit concurrently; a failing item is logged and dropped.
func (s *Service) assembleAll(
	hits []domain.RawHit, contents map[string]domain.ExtractedContent, log *zap.Logger,
) []domain.EnrichedResult {
	slots := make([]*domain.EnrichedResult, len(hits))

	p := s.pool()
	for i, hit := range hits {
		p.Go(func() {
			r, err := s.safeAssemble(hit, contents[hit.URL])
			if err != nil {
				log.Error("Dropping result", zap.String("url", hit.URL), zap.Error(err))
				return
			}
			slots[i] = &r
		})
	}
	p.Wait()

	out := make([]domain.EnrichedResult, 0, len(hits))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// augment fills summaries and embeddings in place. Failures leave the fields nil.
func (s *Service) augment(ctx context.Context, results []domain.EnrichedResult, flags request.AIFlags) {
	if len(results) == 0 {
		return
	}

	if flags.Embed {
		texts := make([]string, len(results))
		for i, r := range results {
			texts[i] = r.Title + "\n\n" + r.Content
		}
		for i, emb := range s.ai.EmbedBatch(ctx, texts) {
			if i < len(results) {
				results[i].Embedding = emb
			}
		}
	}

	if flags.Summarize {
		p := s.pool()
		for i := range results {
			p.Go(func() {
				defer func() {
					if rec := recover(); rec != nil {
						s.logger.Error("Summary panicked", zap.String("url", results[i].URL), zap.Any("panic", rec))
					}
				}()
				results[i].Summary = s.ai.Summarize(ctx, results[i].Content, results[i].Title)
			})
		}
		p.Wait()
	}
}

func (s *Service) dedup(results []domain.EnrichedResult, log *zap.Logger) []domain.EnrichedResult {
	embs := make([][]float32, len(results))
	for i, r := range results {
		embs[i] = r.Embedding
	}

	keep := s.ai.Deduplicate(embs)
	out := make([]domain.EnrichedResult, 0, len(keep))
	for _, i := range keep {
		out = append(out, results[i])
	}

	dropped := len(results) - len(out)
	if s.dedupDropped != nil && dropped > 0 {
		s.dedupDropped.Add(float64(dropped))
	}
	log.Info("Deduplicated results", zap.Int("before", len(results)), zap.Int("after", len(out)))
	return out
}

func (s *Service) pool() *pool.Pool {
	p := pool.New()
	if s.maxConcurrency > 0 {
		p = p.WithMaxGoroutines(s.maxConcurrency)
	}
	return p
}
