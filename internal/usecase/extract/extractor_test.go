package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

const articlePage = `<!DOCTYPE html>
<html><head><title>Understanding Rust Ownership</title>
<script>var tracking = "should never appear";</script></head>
<body>
<nav class="menu"><a href="/">Home</a></nav>
<article>
<h1>Understanding Rust Ownership</h1>
<p>Ownership is a set of rules that govern how a Rust program manages memory. All programs have to manage
the way they use a computer's memory while running, and Rust does this without a garbage collector.</p>
<p>Each value in Rust has an owner. There can only be one owner at a time, and when the owner goes out of
scope, the value will be dropped. This keeps memory safety guarantees without runtime overhead.</p>
<p>Borrowing lets code refer to a value without taking ownership of it. References must always be valid,
and the borrow checker enforces that at compile time. Read more in <a href="/book">the Rust book</a>.</p>
<img src="diagram.png" alt="diagram">
</article>
<footer>Copyright footer text</footer>
</body></html>`

func newTestExtractor(cfg Config) *Extractor {
	return New(cfg, zap.NewNop())
}

func TestExtract_HTMLPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	got := newTestExtractor(Config{}).Extract(context.Background(), srv.URL)

	if got.Empty() {
		t.Fatal("expected body text")
	}
	if !strings.Contains(got.BodyText, "Each value in Rust has an owner.") {
		t.Errorf("body missing article text: %q", got.BodyText)
	}
	if strings.Contains(got.BodyText, "should never appear") {
		t.Error("script content leaked into body")
	}
	if strings.Contains(got.BodyText, "\n\n\n") {
		t.Error("body contains 3+ consecutive newlines")
	}
	if got.Title == "" {
		t.Error("expected title")
	}
}

func TestExtract_NonHTMLIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"not a page"}`))
	}))
	defer srv.Close()

	got := newTestExtractor(Config{}).Extract(context.Background(), srv.URL)
	if !got.Empty() || got.Title != "" {
		t.Errorf("expected empty content, got %+v", got)
	}
}

func TestExtract_ErrorStatusIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	if got := newTestExtractor(Config{}).Extract(context.Background(), srv.URL); !got.Empty() {
		t.Errorf("expected empty content, got %+v", got)
	}
}

func TestExtract_UnreachableIsEmpty(t *testing.T) {
	got := newTestExtractor(Config{}).Extract(context.Background(), "http://127.0.0.1:1/nothing")
	if !got.Empty() {
		t.Errorf("expected empty content, got %+v", got)
	}
}

func TestExtract_InvalidURLIsEmpty(t *testing.T) {
	got := newTestExtractor(Config{}).Extract(context.Background(), "://bad url")
	if !got.Empty() {
		t.Errorf("expected empty content, got %+v", got)
	}
}

func TestExtract_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articlePage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got := newTestExtractor(Config{}).Extract(context.Background(), srv.URL+"/old")
	if got.Empty() {
		t.Fatal("expected content after redirect")
	}
}

func TestExtract_TimeoutIsEmpty(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	e := newTestExtractor(Config{Timeout: 50 * time.Millisecond})
	start := time.Now()
	got := e.Extract(context.Background(), srv.URL)
	if !got.Empty() {
		t.Errorf("expected empty content, got %+v", got)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
}

func TestExtract_Truncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	got := newTestExtractor(Config{MaxContentLength: 40}).Extract(context.Background(), srv.URL)
	if !strings.HasSuffix(got.BodyText, "...") {
		t.Fatalf("expected truncation marker, got %q", got.BodyText)
	}
	if n := len([]rune(got.BodyText)); n != 43 {
		t.Errorf("truncated length = %d runes, want 43", n)
	}
}

func TestExtract_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
	}))
	defer srv.Close()

	total := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_extraction_total"}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_extraction_duration_seconds"})
	e := newTestExtractor(Config{}).WithMetrics(total, duration)

	e.Extract(context.Background(), srv.URL)

	if got := testutil.ToFloat64(total.WithLabelValues(outcomeFailed)); got != 1 {
		t.Errorf("failed outcomes = %f, want 1", got)
	}
	if testutil.CollectAndCount(duration) != 1 {
		t.Error("expected duration observation")
	}
}

func TestBatchExtract_DistinctURLsAndIsolation(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articlePage))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	okURL, brokenURL := srv.URL+"/ok", srv.URL+"/broken"
	e := newTestExtractor(Config{MaxConcurrency: 2})

	got := e.BatchExtract(context.Background(), []string{okURL, brokenURL, okURL})

	if len(got) != 2 {
		t.Fatalf("expected 2 distinct entries, got %d", len(got))
	}
	if hits.Load() != 1 {
		t.Errorf("duplicate URL fetched %d times, want 1", hits.Load())
	}
	if got[okURL].Empty() {
		t.Error("healthy URL should have content")
	}
	if !got[brokenURL].Empty() {
		t.Error("broken URL should be empty")
	}
}

func TestBatchExtract_Empty(t *testing.T) {
	got := newTestExtractor(Config{}).BatchExtract(context.Background(), nil)
	if len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

func TestBasic_StripsChrome(t *testing.T) {
	e := newTestExtractor(Config{})
	got, err := e.basic([]byte(articlePage))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "Understanding Rust Ownership" {
		t.Errorf("Title = %q", got.Title)
	}
	for _, leaked := range []string{"should never appear", "Home", "Copyright footer text"} {
		if strings.Contains(got.BodyText, leaked) {
			t.Errorf("fallback body contains %q", leaked)
		}
	}
	if !strings.Contains(got.BodyText, "Borrowing lets code refer to a value") {
		t.Errorf("fallback body missing article text: %q", got.BodyText)
	}
}

func TestNormalize(t *testing.T) {
	in := "  first  \n\n\n\n   \nsecond\n\t\nthird  "
	if got, want := normalize(in), "first\nsecond\nthird"; got != want {
		t.Errorf("normalize = %q, want %q", got, want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"longer than ten", 10, "longer tha..."},
		{"привет мир", 6, "привет..."},
		{"anything", 0, "anything"},
	}
	for _, tc := range tests {
		if got := truncate(tc.in, tc.limit); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}

func TestRenderText(t *testing.T) {
	got, err := renderText(`<div><h2>Title</h2><p>See <a href="https://x.test">the docs</a> now.</p>` +
		`<img src="a.png" alt="pic"><ul><li>one</li><li>two</li></ul></div>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got = normalize(got)

	want := "Title\nSee the docs now.\n* one\n* two"
	if got != want {
		t.Errorf("renderText = %q, want %q", got, want)
	}
}
