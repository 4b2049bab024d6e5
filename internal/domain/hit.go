package domain

import "context"

// RawHit is one unprocessed result reported by the search backend.
// The same URL may appear more than once across engines.
type RawHit struct {
	Title             string
	URL               string
	Snippet           string
	Engine            string
	PublishedDateHint string
}

// SearchQuery is what the pipeline sends to the search backend.
type SearchQuery struct {
	Query    string
	Limit    int
	Engines  string // comma-separated, empty = backend default
	Language string
}

// SearchPage is the search backend response.
type SearchPage struct {
	Hits     []RawHit
	TimingMS int64
}

// Searcher is the search backend contract.
type Searcher interface {
	Search(ctx context.Context, q SearchQuery) (SearchPage, error)
}

// EnginesUsed returns the distinct engine tags of hits in first-seen order.
func EnginesUsed(hits []RawHit) []string {
	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		e := h.Engine
		if e == "" {
			e = "unknown"
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
