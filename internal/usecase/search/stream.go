package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
	"github.com/kailas-cloud/searchscout/internal/domain/search/event"
	"github.com/kailas-cloud/searchscout/internal/domain/search/request"
)

// Emit delivers one stream event. A non-nil error means the consumer is gone.
type Emit func(event.Event) error

// Stream runs the incremental pipeline: hits are extracted and enriched one at a time and
// each result is emitted before the next hit starts. The AI stage is not available here.
// Item and backend failures are reported as events; the returned error is only set when
// the consumer stopped listening or ctx was cancelled.
func (s *Service) Stream(ctx context.Context, req request.Request, emit Emit) error {
	if req.Query() == "" {
		return errEmptyQuery
	}
	streamID := s.newStreamID()
	log := s.logger.With(zap.String("stream_id", streamID), zap.String("query", req.Query()))
	start := time.Now()

	page, err := s.search(ctx, req.SearchQuery())
	if err != nil {
		log.Error("Stream search failed", zap.Error(err))
		if err := emit(event.Error(err.Error(), "")); err != nil {
			return err
		}
		return emit(event.Done(event.StatusError))
	}

	emitted := 0
	for _, hit := range page.Hits {
		if err := ctx.Err(); err != nil {
			log.Info("Stream consumer went away", zap.Int("emitted", emitted))
			return fmt.Errorf("stream cancelled: %w", err)
		}

		content, degraded := s.extractOne(ctx, hit.URL)
		if degraded != "" {
			log.Warn("Content extraction degraded", zap.String("url", hit.URL), zap.String("reason", degraded))
			if err := emit(event.Error(degraded, hit.URL)); err != nil {
				return err
			}
		}

		result, err := s.safeAssemble(hit, content)
		if err != nil {
			log.Error("Failed to process result", zap.String("url", hit.URL), zap.Error(err))
			if err := emit(event.Error("failed to process result", hit.URL)); err != nil {
				return err
			}
			continue
		}
		if err := emit(event.Result(result)); err != nil {
			return err
		}
		emitted++
	}

	s.countResults(modeStream, emitted)

	if err := emit(event.Metadata(event.MetadataPayload{
		StreamID:     streamID,
		TotalResults: emitted,
		SearchTimeMS: page.TimingMS,
		ElapsedMS:    time.Since(start).Milliseconds(),
		EnginesUsed:  domain.EnginesUsed(page.Hits),
	})); err != nil {
		return err
	}
	return emit(event.Done(event.StatusComplete))
}

// extractOne bounds a single extraction and describes why it degraded, if it did.
func (s *Service) extractOne(ctx context.Context, url string) (domain.ExtractedContent, string) {
	ctx, cancel := context.WithTimeout(ctx, s.extractTimeout)
	defer cancel()

	content := s.extractor.Extract(ctx, url)
	if !content.Empty() {
		return content, ""
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ExtractedContent{}, "content extraction timed out, using snippet"
	}
	return domain.ExtractedContent{}, "content extraction failed, using snippet"
}
