package request

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/searchscout/internal/domain"
)

// Enrichment request limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength  = 500
	DefaultLimit    = 10
	MaxLimit        = 50
	DefaultLanguage = "en"
)

// AIFlags selects the optional AI stage of batch enrichment.
type AIFlags struct {
	Summarize bool
	Embed     bool
	Dedup     bool
}

// Any reports whether any AI feature was requested.
func (f AIFlags) Any() bool { return f.Summarize || f.Embed || f.Dedup }

// Request is a validated enrichment query.
type Request struct {
	query    string
	limit    int
	engines  string
	language string
	ai       AIFlags
}

// New validates and normalizes enrichment parameters.
// limit=0 selects DefaultLimit; maxLimit<=0 selects MaxLimit.
func New(query string, limit, maxLimit int, engines, language string, ai AIFlags) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrInvalidRequest)
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidRequest, MaxQueryLength)
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if limit == 0 {
		limit = min(DefaultLimit, maxLimit)
	}
	if limit < 1 || limit > maxLimit {
		return Request{}, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidRequest, maxLimit)
	}
	if ai.Dedup && !ai.Embed {
		return Request{}, domain.ErrDedupRequiresEmbeddings
	}
	if language == "" {
		language = DefaultLanguage
	}

	return Request{
		query:    query,
		limit:    limit,
		engines:  strings.TrimSpace(engines),
		language: language,
		ai:       ai,
	}, nil
}

// Query returns the search text.
func (r *Request) Query() string { return r.query }

// Limit returns the result count bound.
func (r *Request) Limit() int { return r.limit }

// Engines returns the comma-separated engine filter (empty = backend default).
func (r *Request) Engines() string { return r.engines }

// Language returns the language code.
func (r *Request) Language() string { return r.language }

// AI returns the requested AI features.
func (r *Request) AI() AIFlags { return r.ai }

// SearchQuery converts the request into a search backend query.
func (r *Request) SearchQuery() domain.SearchQuery {
	return domain.SearchQuery{
		Query:    r.query,
		Limit:    r.limit,
		Engines:  r.engines,
		Language: r.language,
	}
}
