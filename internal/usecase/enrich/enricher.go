// Package enrich derives heuristic metadata from a search hit and its page text.
// Everything here is pure: the same inputs always produce the same metadata.
package enrich

import (
	"math"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kailas-cloud/searchscout/internal/domain"
)

const (
	wordsPerMinute  = 225
	minAnalyzedText = 20
	maxKeywords     = 10
	titleWeight     = 3
	answerPrefixLen = 200
	baseCredibility = 0.5
	unknownSource   = "unknown"
)

var keywordToken = regexp.MustCompile(`\b[a-z]{3,}\b`)

// Enricher computes EnrichedMetadata from lookup tables.
type Enricher struct {
	tables Tables
	now    func() time.Time
}

// New creates an enricher over the given tables.
func New(tables Tables) *Enricher {
	return &Enricher{tables: tables, now: time.Now}
}

// NewDefault creates an enricher over DefaultTables.
func NewDefault() *Enricher {
	return New(DefaultTables())
}

// WithClock replaces the time source used to reject far-future dates (tests).
func (e *Enricher) WithClock(now func() time.Time) *Enricher {
	e.now = now
	return e
}

// Enrich derives metadata for hit given the page body text.
func (e *Enricher) Enrich(hit domain.RawHit, bodyText string) domain.EnrichedMetadata {
	source := Source(hit.URL)
	words := countWords(bodyText)

	return domain.EnrichedMetadata{
		PublishedDate:      e.publishedDate(hit.PublishedDateHint, hit.URL, hit.Snippet+" "+hit.Title),
		Source:             source,
		ContentType:        e.contentType(hit.URL),
		WordCount:          words,
		CredibilityScore:   ptr(e.credibility(hit.URL, source)),
		Language:           e.language(bodyText),
		ReadingTimeMinutes: readingTime(words),
		Keywords:           e.keywords(bodyText, hit.Title),
		IsDirectAnswer:     e.directAnswer(hit.Snippet, bodyText, hit.Title),
	}
}

// Source returns the URL host without a leading "www.".
func Source(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return unknownSource
	}
	return strings.TrimPrefix(u.Host, "www.")
}

func (e *Enricher) contentType(rawURL string) string {
	lower := strings.ToLower(rawURL)
	for _, ct := range e.tables.ContentTypes {
		if ct.Pattern.MatchString(lower) {
			return ct.Type
		}
	}
	for _, dt := range e.tables.DomainTypes {
		if strings.Contains(lower, dt.Needle) {
			return dt.Type
		}
	}
	return "webpage"
}

func countWords(text string) *int {
	if text == "" {
		return nil
	}
	return ptr(len(strings.Fields(text)))
}

func (e *Enricher) credibility(rawURL, source string) float64 {
	if score, ok := e.tables.Credibility[source]; ok {
		return clamp01(score)
	}

	score := baseCredibility
	if strings.HasPrefix(rawURL, "https://") {
		score += 0.1
	}
	switch {
	case strings.Contains(source, ".edu"):
		score += 0.2
	case strings.Contains(source, ".gov"):
		score += 0.25
	case strings.Contains(source, ".org"):
		score += 0.1
	}
	for _, weak := range []string{"blog", "forum", "wiki"} {
		if strings.Contains(source, weak) {
			score -= 0.1
			break
		}
	}
	return clamp01(score)
}

// language votes with the number of distinct stop words present per language.
func (e *Enricher) language(text string) *string {
	if utf8.RuneCountInString(text) < minAnalyzedText {
		return nil
	}
	lower := strings.ToLower(text)

	best, bestCount := "", 0
	for _, lang := range e.tables.Languages {
		count := 0
		for _, w := range lang.Words {
			if strings.Contains(lower, " "+w+" ") {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = lang.Code, count
		}
	}
	if bestCount >= 2 {
		return ptr(best)
	}
	return ptr(DefaultLanguage)
}

func readingTime(words *int) *int {
	if words == nil || *words == 0 {
		return nil
	}
	return ptr(max(1, int(math.Round(float64(*words)/wordsPerMinute))))
}

// keywords ranks non-stop-word tokens by frequency, breaking ties by first appearance.
func (e *Enricher) keywords(text, title string) []string {
	if utf8.RuneCountInString(text) < minAnalyzedText {
		return nil
	}
	combined := strings.Repeat(title+" ", titleWeight) + text
	tokens := keywordToken.FindAllString(strings.ToLower(combined), -1)

	counts := make(map[string]int)
	var order []string
	for _, tok := range tokens {
		if _, stop := e.tables.StopWords[tok]; stop {
			continue
		}
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}
	if len(order) == 0 {
		return nil
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > maxKeywords {
		order = order[:maxKeywords]
	}
	return order
}

func (e *Enricher) directAnswer(snippet, content, title string) bool {
	text := strings.ToLower(snippet + " " + runePrefix(content, answerPrefixLen))
	for _, re := range e.tables.DirectAnswers {
		if re.MatchString(text) {
			return true
		}
	}

	if !strings.Contains(title, "?") {
		return false
	}
	opening := strings.ToLower(strings.TrimSpace(content))
	for _, w := range e.tables.AnswerOpeners {
		if strings.HasPrefix(opening, w) {
			return true
		}
	}
	return false
}

// runePrefix returns the first n characters of s.
func runePrefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func ptr[T any](v T) *T { return &v }
