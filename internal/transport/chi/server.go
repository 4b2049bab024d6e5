package chi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
	"github.com/kailas-cloud/searchscout/internal/domain/search/request"
	domusage "github.com/kailas-cloud/searchscout/internal/domain/usage"
	logpkg "github.com/kailas-cloud/searchscout/internal/logger"
	healthuc "github.com/kailas-cloud/searchscout/internal/usecase/health"
	searchuc "github.com/kailas-cloud/searchscout/internal/usecase/search"
	"github.com/kailas-cloud/searchscout/internal/version"
)

const serviceName = "searchscout"

// SearchService is the enrichment pipeline as seen by the HTTP layer.
type SearchService interface {
	Admit(ctx context.Context, identity string) (domain.Decision, error)
	Search(ctx context.Context, req request.Request) (domain.BatchResponse, error)
	Stream(ctx context.Context, req request.Request, emit searchuc.Emit) error
	AIEnabled() bool
}

// EngineLister reports the search engines enabled on the backend.
type EngineLister interface {
	Engines(ctx context.Context) []string
}

// UsageReporter summarizes language model token consumption.
type UsageReporter interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}

// HealthReporter aggregates component health.
type HealthReporter interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, r *http.Request, err error, msg string) bool

// Limits bound the result count a caller may request.
type Limits struct {
	DefaultResults int
	MaxResults     int
}

// Server implements ServerInterface.
type Server struct {
	search        SearchService
	engines       EngineLister
	usage         UsageReporter
	health        HealthReporter
	limits        Limits
	logger        *zap.Logger
	errorHandlers []errorHandler
}

var _ ServerInterface = (*Server)(nil)

// NewServer creates an HTTP API server.
func NewServer(
	search SearchService,
	engines EngineLister,
	usage UsageReporter,
	health HealthReporter,
	limits Limits,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:  search,
		engines: engines,
		usage:   usage,
		health:  health,
		limits:  limits,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		admissionDeniedHandler,
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrAIUnavailable, http.StatusBadRequest, ErrorCodeAIUnavailable),
		sentinelHandler(domain.ErrAIBudgetExceeded, http.StatusTooManyRequests, ErrorCodeAIBudgetExceeded),
		sentinelHandler(domain.ErrAIProviderError, http.StatusBadGateway, ErrorCodeAIProviderError),
		sentinelHandler(domain.ErrBackendUnavailable, http.StatusBadGateway, ErrorCodeBackendUnavailable),
	}
	return s
}

// Search handles GET /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request, params SearchParams) {
	decision, ok := s.admit(w, r)
	if !ok {
		return
	}

	req, err := request.New(params.Q, s.limit(params.Limit), s.limits.MaxResults,
		derefString(params.Engines), derefString(params.Language),
		request.AIFlags{
			Summarize: derefBool(params.Summarize),
			Embed:     derefBool(params.Embeddings),
			Dedup:     derefBool(params.Dedup),
		})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	resp, err := s.search.Search(ctx, req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setRateHeaders(w, decision)
	setAIHeaders(w, usage)
	writeJSON(w, http.StatusOK, resp)
}

// SearchStream handles GET /api/v1/search/stream.
func (s *Server) SearchStream(w http.ResponseWriter, r *http.Request, params StreamParams) {
	decision, ok := s.admit(w, r)
	if !ok {
		return
	}

	req, err := request.New(params.Q, s.limit(params.Limit), s.limits.MaxResults,
		derefString(params.Engines), derefString(params.Language), request.AIFlags{})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setRateHeaders(w, decision)
	sse := newEventWriter(w)
	sse.Start()

	if err := s.search.Stream(r.Context(), req, sse.Send); err != nil {
		logpkg.FromContext(r.Context()).Info("Stream ended early", zap.Error(err))
	}
}

// ListEngines handles GET /api/v1/engines.
func (s *Server) ListEngines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, EnginesResponse{Engines: s.engines.Engines(r.Context())})
}

// GetUsage handles GET /api/v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request, params UsageParams) {
	period := domusage.PeriodMonth
	if params.Period != nil {
		period = domusage.Period(*params.Period)
		if !period.Valid() {
			writeError(w, r, http.StatusBadRequest, ErrorCodeValidationFailed,
				"period must be one of: day, month")
			return
		}
	}

	report := s.usage.GetReport(r.Context(), period)

	resp := UsageResponse{
		Period:    string(report.Period()),
		AIEnabled: s.search.AIEnabled(),
		Usage: UsageMetrics{
			Requests: report.Metrics().Requests(),
			Tokens:   report.Metrics().Tokens(),
		},
		Budget: BudgetStatus{
			TokensLimit:     report.Budget().TokensLimit(),
			TokensRemaining: report.Budget().TokensRemaining(),
			IsExhausted:     report.Budget().IsExhausted(),
		},
	}

	if report.PeriodStart() > 0 {
		start := time.UnixMilli(report.PeriodStart()).UTC()
		end := time.UnixMilli(report.PeriodEnd()).UTC()
		resp.PeriodStartAt = &start
		resp.PeriodEndAt = &end
	}
	if report.Budget().ResetsAt() > 0 {
		resetsAt := time.UnixMilli(report.Budget().ResetsAt()).UTC()
		resp.Budget.ResetsAt = &resetsAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := "healthy"
	if report.Status != healthuc.Healthy {
		status = "degraded"
	}
	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:           status,
		SearxngConnected: report.Checks[healthuc.ComponentSearch] == healthuc.CheckOK,
		Checks:           checks,
		Version:          version.Version,
	})
}

// Info handles GET /.
func (s *Server) Info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		Name:    serviceName,
		Version: version.Version,
		Commit:  version.Commit,
		Endpoints: map[string]string{
			"search":  "/api/v1/search",
			"stream":  "/api/v1/search/stream",
			"engines": "/api/v1/engines",
			"usage":   "/api/v1/usage",
			"health":  "/health",
			"metrics": "/metrics",
		},
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// admit charges the caller's budget. On denial the response is written and ok is false.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) (domain.Decision, bool) {
	identity := IdentityFromContext(r.Context())
	if identity == "" {
		identity = "ip:" + clientIP(r)
	}

	decision, err := s.search.Admit(r.Context(), identity)
	if err != nil {
		s.handleDomainError(w, r, err)
		return decision, false
	}
	return decision, true
}

// limit resolves the requested result count. An explicit 0 is rejected by request validation.
func (s *Server) limit(p *int) int {
	if p == nil {
		return s.limits.DefaultResults
	}
	if *p == 0 {
		return -1
	}
	return *p
}

func setRateHeaders(w http.ResponseWriter, d domain.Decision) {
	if d.Limit <= 0 {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
	if !d.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

func setAIHeaders(w http.ResponseWriter, usage *domain.AIUsage) {
	if usage.Used() {
		w.Header().Set("X-AI-Tokens", strconv.Itoa(usage.TotalTokens()))
	}
}

// retryAfterSeconds rounds up so clients never retry before the window frees.
func retryAfterSeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: chiMiddleware.GetReqID(r.Context()),
	})
}

// WriteBindError renders a query binding failure as a 400.
func WriteBindError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
}

// safeDomainMessage returns a client-safe message without exposing internals.
// Validation errors carry their own message since it names the offending parameter.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidRequest) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrRateLimited,
		domain.ErrAIUnavailable,
		domain.ErrAIBudgetExceeded,
		domain.ErrAIProviderError,
		domain.ErrBackendUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, r *http.Request, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, r, status, code, msg)
		return true
	}
}

// admissionDeniedHandler renders a rate limit rejection with its retry hints.
func admissionDeniedHandler(w http.ResponseWriter, r *http.Request, err error, _ string) bool {
	var denied *domain.AdmissionDeniedError
	if !errors.As(err, &denied) {
		return false
	}
	retry := retryAfterSeconds(denied.Decision.RetryAfter)
	setRateHeaders(w, denied.Decision)
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, r, http.StatusTooManyRequests, ErrorCodeRateLimited,
		"rate limit exceeded, try again in "+strconv.Itoa(retry)+" seconds")
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, r, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefBool(p *bool) bool {
	if p == nil {
		return false
	}
	return *p
}
