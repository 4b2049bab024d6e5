package enrich

import "regexp"

// ContentTypePattern maps a URL path pattern to a content type.
type ContentTypePattern struct {
	Type    string
	Pattern *regexp.Regexp
}

// DomainType maps a URL substring to a content type when no path pattern matched.
type DomainType struct {
	Needle string
	Type   string
}

// LanguageWords lists the stop words that indicate one language.
type LanguageWords struct {
	Code  string
	Words []string
}

// Tables holds every lookup the enricher consults. Order matters in slices:
// the first match wins, and language ties go to the earlier entry.
type Tables struct {
	Credibility   map[string]float64
	ContentTypes  []ContentTypePattern
	DomainTypes   []DomainType
	Languages     []LanguageWords
	StopWords     map[string]struct{}
	DirectAnswers []*regexp.Regexp
	// AnswerOpeners are content prefixes that answer a question-shaped title.
	AnswerOpeners []string
}

// DefaultLanguage is reported when no language reaches the vote threshold.
const DefaultLanguage = "en"

// DefaultTables returns the built-in heuristics.
func DefaultTables() Tables {
	return Tables{
		Credibility: map[string]float64{
			"arxiv.org":               0.95,
			"scholar.google.com":      0.95,
			"pubmed.ncbi.nlm.nih.gov": 0.95,
			"semanticscholar.org":     0.9,
			"jstor.org":               0.9,
			"researchgate.net":        0.85,
			"github.com":              0.9,
			"stackoverflow.com":       0.85,
			"developer.mozilla.org":   0.95,
			"docs.python.org":         0.95,
			"docs.microsoft.com":      0.9,
			"reuters.com":             0.9,
			"apnews.com":              0.9,
			"bbc.com":                 0.85,
			"nytimes.com":             0.85,
			"theguardian.com":         0.85,
			"wikipedia.org":           0.8,
			"britannica.com":          0.85,
			"techcrunch.com":          0.75,
			"arstechnica.com":         0.8,
			"wired.com":               0.75,
		},
		ContentTypes: []ContentTypePattern{
			{"article", regexp.MustCompile(`/(article|post|blog|news)/`)},
			{"documentation", regexp.MustCompile(`/(docs|documentation|reference|api|guide)/`)},
			{"forum", regexp.MustCompile(`/(forum|discussion|thread|questions)/`)},
			{"tutorial", regexp.MustCompile(`/(tutorial|how-to|guide|learn)/`)},
			{"video", regexp.MustCompile(`/(watch|video)/`)},
			{"pdf", regexp.MustCompile(`\.pdf$`)},
			{"wiki", regexp.MustCompile(`/(wiki|encyclopedia)/`)},
		},
		DomainTypes: []DomainType{
			{"github.com", "code"},
			{"youtube.com", "video"},
			{"youtu.be", "video"},
			{"stackoverflow.com", "forum"},
			{"wikipedia.org", "encyclopedia"},
		},
		Languages: []LanguageWords{
			{"en", []string{"the", "and", "for", "that", "with", "this", "from", "are", "was"}},
			{"es", []string{"el", "la", "de", "que", "en", "los", "del", "para", "con"}},
			{"fr", []string{"le", "de", "un", "et", "à", "dans", "les", "des", "pour"}},
			{"de", []string{"der", "die", "das", "und", "den", "ist", "für", "von", "mit"}},
		},
		StopWords: wordSet(
			"the", "and", "for", "that", "with", "this", "from", "are", "was",
			"but", "not", "you", "all", "can", "her", "has", "had", "our",
			"out", "one", "two", "more", "than", "been", "have", "will",
			"what", "when", "who", "which", "their", "said", "each", "about",
			"how", "other", "into", "after", "also", "some", "these", "only",
			"then", "now", "may", "such", "very", "over", "just", "where",
			"most", "both", "through", "way", "could", "before", "does",
		),
		DirectAnswers: []*regexp.Regexp{
			regexp.MustCompile(`^(yes|no)[,.]`),
			regexp.MustCompile(`^\d+`),
			regexp.MustCompile(`\b(is|are|was|were)\s+\w+`),
			regexp.MustCompile(`\bmeans\s+\w+`),
			regexp.MustCompile(`refers to`),
			regexp.MustCompile(`^the answer is`),
			regexp.MustCompile(`^in short`),
			regexp.MustCompile(`^simply put`),
			regexp.MustCompile(`definition:\s*`),
		},
		AnswerOpeners: []string{"yes", "no", "the", "it"},
	}
}

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
