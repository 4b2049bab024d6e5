package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
	"github.com/kailas-cloud/searchscout/internal/domain/search/event"
	"github.com/kailas-cloud/searchscout/internal/domain/search/request"
	domusage "github.com/kailas-cloud/searchscout/internal/domain/usage"
	"github.com/kailas-cloud/searchscout/internal/domain/usage/budget"
	"github.com/kailas-cloud/searchscout/internal/domain/usage/metrics"
	healthuc "github.com/kailas-cloud/searchscout/internal/usecase/health"
	searchuc "github.com/kailas-cloud/searchscout/internal/usecase/search"
)

// --- Mocks ---

type mockSearchService struct {
	decision   domain.Decision
	admitErr   error
	resp       domain.BatchResponse
	searchErr  error
	events     []event.Event
	lastReq    *request.Request
	searchCall int
	identities []string
	aiEnabled  bool
	aiTokens   int
}

func (m *mockSearchService) Admit(_ context.Context, identity string) (domain.Decision, error) {
	m.identities = append(m.identities, identity)
	return m.decision, m.admitErr
}

func (m *mockSearchService) Search(ctx context.Context, req request.Request) (domain.BatchResponse, error) {
	m.searchCall++
	m.lastReq = &req
	if m.aiTokens > 0 {
		domain.UsageFromContext(ctx).AddTokens(m.aiTokens)
	}
	return m.resp, m.searchErr
}

func (m *mockSearchService) AIEnabled() bool { return m.aiEnabled }

func (m *mockSearchService) Stream(_ context.Context, req request.Request, emit searchuc.Emit) error {
	m.lastReq = &req
	for _, e := range m.events {
		if err := emit(e); err != nil {
			return err
		}
	}
	return nil
}

type mockEngines struct{ engines []string }

func (m *mockEngines) Engines(_ context.Context) []string { return m.engines }

type mockUsage struct {
	report     domusage.Report
	lastPeriod domusage.Period
}

func (m *mockUsage) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	m.lastPeriod = period
	return m.report
}

type mockHealth struct{ report healthuc.Report }

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

// --- Helpers ---

func allowed() domain.Decision {
	return domain.Decision{
		Allowed:   true,
		Limit:     60,
		Remaining: 59,
		ResetAt:   time.Unix(1_800_000_000, 0),
	}
}

func newTestRouter(svc SearchService, health HealthReporter) http.Handler {
	return newTestRouterWithUsage(svc, &mockUsage{}, health)
}

func newTestRouterWithUsage(svc SearchService, usage UsageReporter, health HealthReporter) http.Handler {
	server := NewServer(svc, &mockEngines{engines: []string{"google", "bing"}}, usage, health,
		Limits{DefaultResults: 10, MaxResults: 50}, zap.NewNop())
	r := chi.NewRouter()
	r.Use(APIKeyMiddleware(nil))
	return HandlerWithOptions(server, ChiServerOptions{BaseRouter: r, ErrorHandlerFunc: WriteBindError})
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	req.RemoteAddr = "198.51.100.4:4000"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

// --- Search ---

func TestSearch_OK(t *testing.T) {
	svc := &mockSearchService{
		decision: allowed(),
		resp: domain.BatchResponse{
			Query:        "go",
			Results:      []domain.EnrichedResult{{Title: "Go", URL: "https://go.dev"}},
			TotalResults: 1,
			SearchTimeMS: 12,
			EnginesUsed:  []string{"google"},
		},
	}
	h := newTestRouter(svc, &mockHealth{})

	rr := do(t, h, "/api/v1/search?q=go&limit=5&engines=google&summarize=false")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "60" {
		t.Errorf("limit header: got %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "59" {
		t.Errorf("remaining header: got %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Reset"); got != "1800000000" {
		t.Errorf("reset header: got %q", got)
	}

	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, k := range []string{"query", "results", "total_results", "search_time_ms", "engines_used"} {
		if _, ok := body[k]; !ok {
			t.Errorf("missing key %q in %v", k, body)
		}
	}

	if svc.lastReq.Limit() != 5 || svc.lastReq.Engines() != "google" {
		t.Errorf("unexpected request: limit=%d engines=%q", svc.lastReq.Limit(), svc.lastReq.Engines())
	}
	if len(svc.identities) != 1 || svc.identities[0] != "ip:198.51.100.4" {
		t.Errorf("identities: got %v", svc.identities)
	}
}

func TestSearch_MissingQuery(t *testing.T) {
	svc := &mockSearchService{decision: allowed()}
	rr := do(t, newTestRouter(svc, &mockHealth{}), "/api/v1/search")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rr.Code)
	}
	if decodeError(t, rr).Code != ErrorCodeBadRequest {
		t.Error("expected bad_request code")
	}
	if svc.searchCall != 0 {
		t.Error("search must not be called")
	}
}

func TestSearch_MalformedLimit(t *testing.T) {
	svc := &mockSearchService{decision: allowed()}
	rr := do(t, newTestRouter(svc, &mockHealth{}), "/api/v1/search?q=go&limit=ten")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rr.Code)
	}
}

func TestSearch_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"limit above max", "/api/v1/search?q=go&limit=51"},
		{"negative limit", "/api/v1/search?q=go&limit=-1"},
		{"zero limit", "/api/v1/search?q=go&limit=0"},
		{"dedup without embeddings", "/api/v1/search?q=go&dedup=true"},
		{"blank query", "/api/v1/search?q=%20%20"},
		{"query too long", "/api/v1/search?q=" + strings.Repeat("a", request.MaxQueryLength+1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockSearchService{decision: allowed()}
			rr := do(t, newTestRouter(svc, &mockHealth{}), tc.query)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d", rr.Code)
			}
			if decodeError(t, rr).Code != ErrorCodeValidationFailed {
				t.Error("expected validation_failed code")
			}
			if svc.searchCall != 0 {
				t.Error("search must not be called")
			}
		})
	}
}

func TestSearch_RateLimited(t *testing.T) {
	d := domain.Decision{Limit: 60, ResetAt: time.Unix(1_800_000_030, 0), RetryAfter: 29200 * time.Millisecond}
	svc := &mockSearchService{decision: d, admitErr: domain.NewAdmissionDenied(d)}
	rr := do(t, newTestRouter(svc, &mockHealth{}), "/api/v1/search?q=go")

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status: got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After: got %q, want 30", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("remaining: got %q", got)
	}
	if decodeError(t, rr).Code != ErrorCodeRateLimited {
		t.Error("expected rate_limited code")
	}
	if svc.searchCall != 0 {
		t.Error("search must not be called")
	}
}

func TestSearch_DomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"ai unavailable", domain.ErrAIUnavailable, http.StatusBadRequest, ErrorCodeAIUnavailable},
		{"backend down", fmt.Errorf("%w: dial tcp", domain.ErrBackendUnavailable),
			http.StatusBadGateway, ErrorCodeBackendUnavailable},
		{"ai provider", domain.ErrAIProviderError, http.StatusBadGateway, ErrorCodeAIProviderError},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, ErrorCodeInternalError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockSearchService{decision: allowed(), searchErr: tc.err}
			rr := do(t, newTestRouter(svc, &mockHealth{}), "/api/v1/search?q=go")

			if rr.Code != tc.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tc.status)
			}
			resp := decodeError(t, rr)
			if resp.Code != tc.code {
				t.Errorf("code: got %q, want %q", resp.Code, tc.code)
			}
			if strings.Contains(resp.Message, "dial tcp") || strings.Contains(resp.Message, "boom") {
				t.Errorf("internal details leaked: %q", resp.Message)
			}
		})
	}
}

// --- Stream ---

func TestSearchStream_FramesEvents(t *testing.T) {
	svc := &mockSearchService{
		decision: allowed(),
		events: []event.Event{
			event.Result(domain.EnrichedResult{Title: "Go", URL: "https://go.dev"}),
			event.Error("content extraction timed out, using snippet", "https://slow.example"),
			event.Metadata(event.MetadataPayload{StreamID: "s1", TotalResults: 1}),
			event.Done(event.StatusComplete),
		},
	}
	rr := do(t, newTestRouter(svc, &mockHealth{}), "/api/v1/search/stream?q=go&limit=3")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type: got %q", ct)
	}
	if !rr.Flushed {
		t.Error("expected flushed response")
	}

	body := rr.Body.String()
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	wantKinds := []string{"result", "error", "metadata", "done"}
	if len(frames) != len(wantKinds) {
		t.Fatalf("frames: got %d, body %q", len(frames), body)
	}
	for i, f := range frames {
		if !strings.HasPrefix(f, "event: "+wantKinds[i]+"\ndata: ") {
			t.Errorf("frame %d: got %q", i, f)
		}
	}
	if !strings.Contains(frames[3], `{"status":"complete"}`) {
		t.Errorf("done frame: got %q", frames[3])
	}
}

func TestSearchStream_ValidationBeforeStreaming(t *testing.T) {
	svc := &mockSearchService{decision: allowed()}
	rr := do(t, newTestRouter(svc, &mockHealth{}), "/api/v1/search/stream?q=go&limit=500")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type: got %q", ct)
	}
}

// --- Misc routes ---

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name      string
		report    healthuc.Report
		status    int
		body      string
		connected bool
	}{
		{
			name: "healthy",
			report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{
				healthuc.ComponentSearch: healthuc.CheckOK,
			}},
			status: http.StatusOK, body: "healthy", connected: true,
		},
		{
			name: "optional component down",
			report: healthuc.Report{Status: healthuc.Degraded, Checks: map[string]healthuc.CheckResult{
				healthuc.ComponentSearch: healthuc.CheckOK,
				healthuc.ComponentAI:     healthuc.CheckError,
			}},
			status: http.StatusOK, body: "degraded", connected: true,
		},
		{
			name: "searxng down",
			report: healthuc.Report{Status: healthuc.Unhealthy, Checks: map[string]healthuc.CheckResult{
				healthuc.ComponentSearch: healthuc.CheckError,
			}},
			status: http.StatusServiceUnavailable, body: "degraded", connected: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, newTestRouter(&mockSearchService{}, &mockHealth{report: tc.report}), "/health")
			if rr.Code != tc.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tc.status)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tc.body || resp.SearxngConnected != tc.connected {
				t.Errorf("got %+v", resp)
			}
		})
	}
}

func TestListEngines(t *testing.T) {
	rr := do(t, newTestRouter(&mockSearchService{}, &mockHealth{}), "/api/v1/engines")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var resp EnginesResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(resp.Engines, ",") != "google,bing" {
		t.Errorf("engines: got %v", resp.Engines)
	}
}

func TestInfo(t *testing.T) {
	rr := do(t, newTestRouter(&mockSearchService{}, &mockHealth{}), "/")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var resp InfoResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Name != "searchscout" || resp.Endpoints["stream"] != "/api/v1/search/stream" {
		t.Errorf("got %+v", resp)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{200 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{59 * time.Second, 59},
	}
	for _, tc := range tests {
		if got := retryAfterSeconds(tc.in); got != tc.want {
			t.Errorf("retryAfterSeconds(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestSearch_DefaultLimit(t *testing.T) {
	svc := &mockSearchService{decision: allowed()}
	server := NewServer(svc, &mockEngines{}, &mockUsage{}, &mockHealth{},
		Limits{DefaultResults: 7, MaxResults: 20}, zap.NewNop())
	h := HandlerWithOptions(server, ChiServerOptions{ErrorHandlerFunc: WriteBindError})

	rr := do(t, h, "/api/v1/search?q=go")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if svc.lastReq.Limit() != 7 {
		t.Errorf("limit: got %d, want 7", svc.lastReq.Limit())
	}
	if svc.identities[0] != "ip:198.51.100.4" {
		t.Errorf("identity fallback: got %q", svc.identities[0])
	}
}

func TestSearch_AITokensHeader(t *testing.T) {
	svc := &mockSearchService{decision: allowed(), aiEnabled: true, aiTokens: 321}
	rr := do(t, newTestRouter(svc, &mockHealth{}), "/api/v1/search?q=go&summarize=true")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-AI-Tokens"); got != "321" {
		t.Errorf("X-AI-Tokens: got %q, want 321", got)
	}
}

// --- Usage ---

func TestGetUsage_OK(t *testing.T) {
	start := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	usage := &mockUsage{report: domusage.NewReport(domusage.PeriodDay, start.UnixMilli(), end.UnixMilli(),
		metrics.New(4, 1200), budget.New(5000, 3800, false, end.UnixMilli()))}
	svc := &mockSearchService{aiEnabled: true}

	rr := do(t, newTestRouterWithUsage(svc, usage, &mockHealth{}), "/api/v1/usage?period=day")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body.String())
	}
	if usage.lastPeriod != domusage.PeriodDay {
		t.Errorf("period: got %q", usage.lastPeriod)
	}

	var resp UsageResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Period != "day" || !resp.AIEnabled {
		t.Errorf("period/ai: got %q/%v", resp.Period, resp.AIEnabled)
	}
	if resp.Usage.Requests != 4 || resp.Usage.Tokens != 1200 {
		t.Errorf("usage: got %+v", resp.Usage)
	}
	if resp.Budget.TokensLimit != 5000 || resp.Budget.TokensRemaining != 3800 || resp.Budget.IsExhausted {
		t.Errorf("budget: got %+v", resp.Budget)
	}
	if resp.Budget.ResetsAt == nil || !resp.Budget.ResetsAt.Equal(end) {
		t.Errorf("resets_at: got %v, want %v", resp.Budget.ResetsAt, end)
	}
	if resp.PeriodStartAt == nil || !resp.PeriodStartAt.Equal(start) {
		t.Errorf("period_start_at: got %v", resp.PeriodStartAt)
	}
}

func TestGetUsage_DefaultsToMonth(t *testing.T) {
	usage := &mockUsage{report: domusage.NewReport(domusage.PeriodMonth, 0, 0,
		metrics.New(0, 0), budget.New(0, -1, false, 0))}

	rr := do(t, newTestRouterWithUsage(&mockSearchService{}, usage, &mockHealth{}), "/api/v1/usage")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if usage.lastPeriod != domusage.PeriodMonth {
		t.Errorf("period: got %q, want month", usage.lastPeriod)
	}
}

func TestGetUsage_InvalidPeriod(t *testing.T) {
	usage := &mockUsage{}
	rr := do(t, newTestRouterWithUsage(&mockSearchService{}, usage, &mockHealth{}), "/api/v1/usage?period=year")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != ErrorCodeValidationFailed {
		t.Errorf("code: got %q", resp.Code)
	}
	if usage.lastPeriod != "" {
		t.Error("usage must not be queried for an invalid period")
	}
}
