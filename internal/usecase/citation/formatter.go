// Package citation formats bibliographic references for web results.
package citation

import (
	"regexp"
	"strings"
	"time"

	"github.com/kailas-cloud/searchscout/internal/domain"
)

var (
	dashSuffix = regexp.MustCompile(`\s+-\s+[^-]+$`)
	pipeSuffix = regexp.MustCompile(`\s*\|\s*[^|]+$`)
)

// AuthorOverride names a publisher whose source contains Needle.
type AuthorOverride struct {
	Needle string
	Author string
}

// DefaultAuthors maps well-known sources to their proper names. First match wins.
func DefaultAuthors() []AuthorOverride {
	return []AuthorOverride{
		{"nytimes", "The New York Times"},
		{"bbc", "BBC"},
		{"github", "GitHub"},
		{"stackoverflow", "Stack Overflow"},
		{"wikipedia", "Wikipedia"},
		{"arxiv", "arXiv"},
		{"pubmed", "PubMed"},
	}
}

// Formatter builds APA, MLA and Chicago citations.
type Formatter struct {
	authors []AuthorOverride
	now     func() time.Time
}

// New creates a formatter with the given author overrides.
func New(authors []AuthorOverride) *Formatter {
	return &Formatter{authors: authors, now: time.Now}
}

// NewDefault creates a formatter with DefaultAuthors.
func NewDefault() *Formatter {
	return New(DefaultAuthors())
}

// WithClock replaces the time source for the fallback year (tests).
func (f *Formatter) WithClock(now func() time.Time) *Formatter {
	f.now = now
	return f
}

// Format builds citations. publishedDate is an ISO date (YYYY-MM-DD) or nil.
func (f *Formatter) Format(title, rawURL, source string, publishedDate *string) domain.Citation {
	year := ""
	if publishedDate != nil {
		year, _, _ = strings.Cut(*publishedDate, "-")
	}
	if year == "" {
		year = f.now().UTC().Format("2006")
	}

	title = CleanTitle(title)
	author := f.author(source)
	quoted := quote(title)

	return domain.Citation{
		APA:     author + ". (" + apaDate(year, publishedDate) + "). " + title + " " + source + ". " + rawURL,
		MLA:     author + ". " + quoted + " " + source + ", " + year + ", " + rawURL + ".",
		Chicago: author + ". " + quoted + " " + source + ". " + year + ". " + rawURL + ".",
	}
}

// CleanTitle strips trailing " - Site" and " | Site" suffixes until none remain and ensures terminal punctuation.
func CleanTitle(title string) string {
	for {
		stripped := pipeSuffix.ReplaceAllString(dashSuffix.ReplaceAllString(title, ""), "")
		if stripped == title {
			break
		}
		title = stripped
	}
	title = strings.TrimSpace(title)
	if title != "" && !strings.ContainsAny(title[len(title)-1:], ".!?") {
		title += "."
	}
	return title
}

func (f *Formatter) author(source string) string {
	lower := strings.ToLower(source)
	for _, o := range f.authors {
		if strings.Contains(lower, o.Needle) {
			return o.Author
		}
	}

	name := source
	if parts := strings.Split(source, "."); len(parts) > 1 {
		name = parts[len(parts)-2]
	}
	return capitalize(name)
}

// quote wraps a title in quotes, moving a trailing period outside rather than doubling it.
func quote(title string) string {
	if strings.HasPrefix(title, `"`) {
		return title
	}
	return `"` + strings.TrimSuffix(title, ".") + `"`
}

func apaDate(year string, publishedDate *string) string {
	if publishedDate == nil {
		return year
	}
	t, err := time.Parse("2006-01-02", *publishedDate)
	if err != nil {
		return year
	}
	return year + ", " + t.Format("January 02")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
