package enrich

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const isoDate = "2006-01-02"

var (
	urlDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`/(\d{4})/(\d{2})/(\d{2})/`),
		regexp.MustCompile(`/(\d{4})-(\d{2})-(\d{2})`),
		regexp.MustCompile(`[?&]date=(\d{4})-(\d{2})-(\d{2})`),
	}

	textISODate      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	textMonthDayYear = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]* (\d{1,2}),? (\d{4})\b`)
	textDayMonthYear = regexp.MustCompile(`(?i)\b(\d{1,2}) (jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]* (\d{4})\b`)
	textSlashDate    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
)

var monthPrefixes = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// publishedDate resolves a date-only ISO string from the hint, the URL, then free text.
func (e *Enricher) publishedDate(hint, rawURL, text string) *string {
	if hint = strings.TrimSpace(hint); hint != "" {
		if t, err := dateparse.ParseIn(hint, time.UTC); err == nil {
			return ptr(t.Format(isoDate))
		}
	}

	for _, re := range urlDatePatterns {
		m := re.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		if d, ok := civilDate(m[1], monthNumber(m[2]), m[3]); ok {
			return ptr(d.Format(isoDate))
		}
	}

	maxYear := e.now().Year() + 1
	for _, find := range []func(string) (time.Time, bool){
		findISODate, findMonthDayYear, findDayMonthYear, findSlashDate,
	} {
		if d, ok := find(text); ok && d.Year() <= maxYear {
			return ptr(d.Format(isoDate))
		}
	}
	return nil
}

func findISODate(text string) (time.Time, bool) {
	m := textISODate.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	return civilDate(m[1], monthNumber(m[2]), m[3])
}

func findMonthDayYear(text string) (time.Time, bool) {
	m := textMonthDayYear.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	return civilDate(m[3], monthPrefixes[strings.ToLower(m[1])], m[2])
}

func findDayMonthYear(text string) (time.Time, bool) {
	m := textDayMonthYear.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	return civilDate(m[3], monthPrefixes[strings.ToLower(m[2])], m[1])
}

// findSlashDate reads month/day/year, then day/month/year when the first reading is impossible.
func findSlashDate(text string) (time.Time, bool) {
	m := textSlashDate.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	if d, ok := civilDate(m[3], monthNumber(m[1]), m[2]); ok {
		return d, true
	}
	return civilDate(m[3], monthNumber(m[2]), m[1])
}

func monthNumber(s string) time.Month {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return time.Month(n)
}

// civilDate builds a UTC date and rejects values time.Date would normalize.
func civilDate(year string, month time.Month, day string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, false
	}
	if month < time.January || month > time.December || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, month, d, 0, 0, 0, 0, time.UTC)
	if t.Month() != month || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
