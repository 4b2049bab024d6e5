package domain

// NoContentMarker is the content of a result when neither extraction nor the snippet produced text.
const NoContentMarker = "No content available."

// ExtractedContent is the cleaned text of one fetched page.
// An empty BodyText means extraction degraded; callers fall back to the snippet.
type ExtractedContent struct {
	Title    string
	BodyText string
}

// Empty reports whether extraction produced no body text.
func (c ExtractedContent) Empty() bool { return c.BodyText == "" }

// EnrichedMetadata holds heuristic features derived from a hit and its body text.
type EnrichedMetadata struct {
	PublishedDate      *string  `json:"published_date"`
	Source             string   `json:"source"`
	ContentType        string   `json:"content_type"`
	WordCount          *int     `json:"word_count"`
	CredibilityScore   *float64 `json:"credibility_score"`
	Language           *string  `json:"language"`
	ReadingTimeMinutes *int     `json:"reading_time_minutes"`
	Keywords           []string `json:"keywords"`
	IsDirectAnswer     bool     `json:"is_direct_answer"`
}

// Citation holds pre-formatted bibliographic strings.
type Citation struct {
	APA     string `json:"apa"`
	MLA     string `json:"mla"`
	Chicago string `json:"chicago"`
}

// EnrichedResult is the terminal per-hit entity returned to callers.
type EnrichedResult struct {
	Title     string           `json:"title"`
	URL       string           `json:"url"`
	Content   string           `json:"content"`
	Snippet   string           `json:"snippet"`
	Metadata  EnrichedMetadata `json:"metadata"`
	Citation  Citation         `json:"citation"`
	Engine    string           `json:"engine"`
	Summary   *string          `json:"summary"`
	Embedding []float32        `json:"embedding"`
}

// BatchResponse is the materialized output of one batch enrichment call.
type BatchResponse struct {
	Query        string           `json:"query"`
	Results      []EnrichedResult `json:"results"`
	TotalResults int              `json:"total_results"`
	SearchTimeMS int64            `json:"search_time_ms"`
	EnginesUsed  []string         `json:"engines_used"`
}
