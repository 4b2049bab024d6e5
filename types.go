package searchscout

import (
	"errors"
	"time"

	"github.com/kailas-cloud/searchscout/internal/domain"
	"github.com/kailas-cloud/searchscout/internal/domain/search/event"
)

// Result types shared with the HTTP API.
type (
	// Result is one enriched search hit.
	Result = domain.EnrichedResult
	// Metadata holds heuristic features of a result.
	Metadata = domain.EnrichedMetadata
	// Citation holds APA, MLA and Chicago strings.
	Citation = domain.Citation
	// Response is a batch enrichment response.
	Response = domain.BatchResponse
	// Decision is the outcome of an admission check.
	Decision = domain.Decision
	// StreamMetadata summarizes a finished stream.
	StreamMetadata = event.MetadataPayload
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidRequest          = domain.ErrInvalidRequest
	ErrRateLimited             = domain.ErrRateLimited
	ErrBackendUnavailable      = domain.ErrBackendUnavailable
	ErrAIUnavailable           = domain.ErrAIUnavailable
	ErrAIProviderError         = domain.ErrAIProviderError
	ErrAIBudgetExceeded        = domain.ErrAIBudgetExceeded
	ErrDedupRequiresEmbeddings = domain.ErrDedupRequiresEmbeddings
)

// RetryAfter returns how long a rate limited caller must wait, or 0 if err is not a denial.
func RetryAfter(err error) time.Duration {
	var denied *domain.AdmissionDeniedError
	if errors.As(err, &denied) {
		return denied.Decision.RetryAfter
	}
	return 0
}

// SearchOptions configures a batch search.
type SearchOptions struct {
	Limit      int      // 0 = default (10)
	Engines    []string // empty = backend default
	Language   string   // default "en"
	Summarize  bool
	Embeddings bool
	Dedup      bool // requires Embeddings
}

// StreamOptions configures a streaming search.
type StreamOptions struct {
	Limit    int
	Engines  []string
	Language string
}

// EventKind names a stream event.
type EventKind string

// Stream event kinds.
const (
	EventResult   EventKind = EventKind(event.KindResult)
	EventError    EventKind = EventKind(event.KindError)
	EventMetadata EventKind = EventKind(event.KindMetadata)
	EventDone     EventKind = EventKind(event.KindDone)
)

// StreamError is a non-fatal per-item problem, or the cause of a failed stream.
type StreamError struct {
	Message string
	URL     string
}

// Event is one element of a stream. Exactly one payload field is set, matching Kind.
type Event struct {
	Kind     EventKind
	Result   *Result
	Error    *StreamError
	Metadata *StreamMetadata
	// Status is "complete" or "error" on the final done event.
	Status string
}

// TokenUsage is AI token consumption. Remaining values are -1 when unlimited.
type TokenUsage struct {
	DailyUsed        int64
	MonthlyUsed      int64
	DailyRemaining   int64
	MonthlyRemaining int64
}

// HealthReport is the aggregated dependency health.
type HealthReport struct {
	Status string
	Checks map[string]string
}

func fromEvent(e event.Event) Event {
	out := Event{Kind: EventKind(e.Kind)}
	switch p := e.Payload.(type) {
	case domain.EnrichedResult:
		out.Result = &p
	case event.ErrorPayload:
		out.Error = &StreamError{Message: p.Error, URL: p.URL}
	case event.MetadataPayload:
		out.Metadata = &p
	case event.DonePayload:
		out.Status = p.Status
	}
	return out
}
