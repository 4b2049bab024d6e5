package health

import (
	"context"
	"time"
)

// DefaultTimeout bounds each component check.
const DefaultTimeout = 5 * time.Second

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates the search backend is failing.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckDisabled indicates an unconfigured optional component.
	CheckDisabled CheckResult = "disabled"
)

// Component names.
const (
	ComponentSearch  = "searxng"
	ComponentAI      = "openai"
	ComponentWindows = "redis"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	search  Checker
	ai      Checker
	windows Pinger
	timeout time.Duration
}

// New creates a Service. ai and windows can be nil.
func New(search Checker, ai Checker, windows Pinger) *Service {
	return &Service{search: search, ai: ai, windows: windows, timeout: DefaultTimeout}
}

// Check runs health checks against all components.
// The search backend is required; a failure there makes the service unhealthy.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{
		ComponentSearch: s.run(ctx, s.search.HealthCheck),
	}

	if s.ai != nil {
		checks[ComponentAI] = s.run(ctx, s.ai.HealthCheck)
	} else {
		checks[ComponentAI] = CheckDisabled
	}

	if s.windows != nil {
		checks[ComponentWindows] = s.run(ctx, s.windows.Ping)
	} else {
		checks[ComponentWindows] = CheckDisabled
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks[ComponentSearch] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) run(ctx context.Context, check func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := check(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
