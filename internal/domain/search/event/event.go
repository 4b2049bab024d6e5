// Package event defines the typed events of an incremental enrichment stream.
package event

import "github.com/kailas-cloud/searchscout/internal/domain"

// Kind names a stream event.
type Kind string

const (
	// KindResult carries one enriched result.
	KindResult Kind = "result"
	// KindError carries a non-fatal per-item problem or the terminal failure cause.
	KindError Kind = "error"
	// KindMetadata summarizes the stream after all results.
	KindMetadata Kind = "metadata"
	// KindDone terminates the stream.
	KindDone Kind = "done"
)

// Done statuses.
const (
	StatusComplete = "complete"
	StatusError    = "error"
)

// Event is one element of the stream. Payload is one of the *Payload types or domain.EnrichedResult.
type Event struct {
	Kind    Kind
	Payload any
}

// ErrorPayload describes a degraded item or a stream failure.
type ErrorPayload struct {
	Error string `json:"error"`
	URL   string `json:"url,omitempty"`
}

// MetadataPayload summarizes a finished stream.
type MetadataPayload struct {
	StreamID     string   `json:"stream_id"`
	TotalResults int      `json:"total_results"`
	SearchTimeMS int64    `json:"search_time_ms"`
	ElapsedMS    int64    `json:"elapsed_ms"`
	EnginesUsed  []string `json:"engines_used"`
}

// DonePayload terminates the stream.
type DonePayload struct {
	Status string `json:"status"`
}

// Result wraps an enriched result.
func Result(r domain.EnrichedResult) Event { return Event{Kind: KindResult, Payload: r} }

// Error wraps a non-fatal or fatal problem.
func Error(msg, url string) Event {
	return Event{Kind: KindError, Payload: ErrorPayload{Error: msg, URL: url}}
}

// Metadata wraps a stream summary.
func Metadata(p MetadataPayload) Event { return Event{Kind: KindMetadata, Payload: p} }

// Done terminates the stream with the given status.
func Done(status string) Event { return Event{Kind: KindDone, Payload: DonePayload{Status: status}} }
