package chi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ErrorCode is a machine-readable error class.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest         ErrorCode = "bad_request"
	ErrorCodeValidationFailed   ErrorCode = "validation_failed"
	ErrorCodeUnauthorized       ErrorCode = "unauthorized"
	ErrorCodeForbidden          ErrorCode = "forbidden"
	ErrorCodeRateLimited        ErrorCode = "rate_limited"
	ErrorCodeAIUnavailable      ErrorCode = "ai_unavailable"
	ErrorCodeAIProviderError    ErrorCode = "ai_provider_error"
	ErrorCodeAIBudgetExceeded   ErrorCode = "ai_budget_exceeded"
	ErrorCodeBackendUnavailable ErrorCode = "search_backend_unavailable"
	ErrorCodeInternalError      ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// SearchParams are the query parameters of GET /api/v1/search.
type SearchParams struct {
	Q          string  `form:"q" json:"q"`
	Limit      *int    `form:"limit,omitempty" json:"limit,omitempty"`
	Engines    *string `form:"engines,omitempty" json:"engines,omitempty"`
	Language   *string `form:"language,omitempty" json:"language,omitempty"`
	Summarize  *bool   `form:"summarize,omitempty" json:"summarize,omitempty"`
	Embeddings *bool   `form:"embeddings,omitempty" json:"embeddings,omitempty"`
	Dedup      *bool   `form:"dedup,omitempty" json:"dedup,omitempty"`
}

// StreamParams are the query parameters of GET /api/v1/search/stream.
type StreamParams struct {
	Q        string  `form:"q" json:"q"`
	Limit    *int    `form:"limit,omitempty" json:"limit,omitempty"`
	Engines  *string `form:"engines,omitempty" json:"engines,omitempty"`
	Language *string `form:"language,omitempty" json:"language,omitempty"`
}

// UsageParamsPeriod is the aggregation window of GET /api/v1/usage.
type UsageParamsPeriod string

// Defines values for UsageParamsPeriod.
const (
	UsageParamsPeriodDay   UsageParamsPeriod = "day"
	UsageParamsPeriodMonth UsageParamsPeriod = "month"
)

// UsageParams are the query parameters of GET /api/v1/usage.
type UsageParams struct {
	Period *UsageParamsPeriod `form:"period,omitempty" json:"period,omitempty"`
}

// UsageMetrics is language model consumption within the period.
type UsageMetrics struct {
	Requests int `json:"requests"`
	Tokens   int `json:"tokens"`
}

// BudgetStatus is the token budget state within the period.
type BudgetStatus struct {
	TokensLimit     int        `json:"tokens_limit"`
	TokensRemaining int        `json:"tokens_remaining"`
	IsExhausted     bool       `json:"is_exhausted"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

// UsageResponse is the body of GET /api/v1/usage.
type UsageResponse struct {
	Period        string       `json:"period"`
	PeriodStartAt *time.Time   `json:"period_start_at,omitempty"`
	PeriodEndAt   *time.Time   `json:"period_end_at,omitempty"`
	AIEnabled     bool         `json:"ai_enabled"`
	Usage         UsageMetrics `json:"usage"`
	Budget        BudgetStatus `json:"budget"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status           string            `json:"status"`
	SearxngConnected bool              `json:"searxng_connected"`
	Checks           map[string]string `json:"checks"`
	Version          string            `json:"version"`
}

// EnginesResponse is the body of GET /api/v1/engines.
type EnginesResponse struct {
	Engines []string `json:"engines"`
}

// InfoResponse is the body of GET /.
type InfoResponse struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Commit    string            `json:"commit"`
	Endpoints map[string]string `json:"endpoints"`
}

// ServerInterface is the set of HTTP operations.
type ServerInterface interface {
	// GET /api/v1/search
	Search(w http.ResponseWriter, r *http.Request, params SearchParams)
	// GET /api/v1/search/stream
	SearchStream(w http.ResponseWriter, r *http.Request, params StreamParams)
	// GET /api/v1/engines
	ListEngines(w http.ResponseWriter, r *http.Request)
	// GET /api/v1/usage
	GetUsage(w http.ResponseWriter, r *http.Request, params UsageParams)
	// GET /health
	HealthCheck(w http.ResponseWriter, r *http.Request)
	// GET /
	Info(w http.ResponseWriter, r *http.Request)
	// GET /metrics
	Metrics(w http.ResponseWriter, r *http.Request)
}

// InvalidParamFormatError reports a query parameter that failed to bind.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

// ChiServerOptions configures route registration.
type ChiServerOptions struct {
	BaseRouter       chi.Router
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerWithOptions registers every operation of si on the base router.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	errorHandler := options.ErrorHandlerFunc
	if errorHandler == nil {
		errorHandler = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := serverInterfaceWrapper{handler: si, errorHandler: errorHandler}

	r.Get("/", si.Info)
	r.Get("/health", si.HealthCheck)
	r.Get("/metrics", si.Metrics)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", wrapper.Search)
		r.Get("/search/stream", wrapper.SearchStream)
		r.Get("/engines", si.ListEngines)
		r.Get("/usage", wrapper.GetUsage)
	})
	return r
}

type serverInterfaceWrapper struct {
	handler      ServerInterface
	errorHandler func(w http.ResponseWriter, r *http.Request, err error)
}

func (sw *serverInterfaceWrapper) Search(w http.ResponseWriter, r *http.Request) {
	var params SearchParams
	q := r.URL.Query()

	binds := []struct {
		name     string
		required bool
		dest     any
	}{
		{"q", true, &params.Q},
		{"limit", false, &params.Limit},
		{"engines", false, &params.Engines},
		{"language", false, &params.Language},
		{"summarize", false, &params.Summarize},
		{"embeddings", false, &params.Embeddings},
		{"dedup", false, &params.Dedup},
	}
	for _, b := range binds {
		if err := runtime.BindQueryParameter("form", true, b.required, b.name, q, b.dest); err != nil {
			sw.errorHandler(w, r, &InvalidParamFormatError{ParamName: b.name, Err: err})
			return
		}
	}

	sw.handler.Search(w, r, params)
}

func (sw *serverInterfaceWrapper) SearchStream(w http.ResponseWriter, r *http.Request) {
	var params StreamParams
	q := r.URL.Query()

	binds := []struct {
		name     string
		required bool
		dest     any
	}{
		{"q", true, &params.Q},
		{"limit", false, &params.Limit},
		{"engines", false, &params.Engines},
		{"language", false, &params.Language},
	}
	for _, b := range binds {
		if err := runtime.BindQueryParameter("form", true, b.required, b.name, q, b.dest); err != nil {
			sw.errorHandler(w, r, &InvalidParamFormatError{ParamName: b.name, Err: err})
			return
		}
	}

	sw.handler.SearchStream(w, r, params)
}

func (sw *serverInterfaceWrapper) GetUsage(w http.ResponseWriter, r *http.Request) {
	var params UsageParams

	if err := runtime.BindQueryParameter("form", true, false, "period", r.URL.Query(), &params.Period); err != nil {
		sw.errorHandler(w, r, &InvalidParamFormatError{ParamName: "period", Err: err})
		return
	}

	sw.handler.GetUsage(w, r, params)
}
