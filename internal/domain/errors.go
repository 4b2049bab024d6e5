package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidRequest signals a malformed caller request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRateLimited signals an exhausted per-identity request budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrBackendUnavailable signals that the search backend is unreachable or returned garbage.
	ErrBackendUnavailable = errors.New("search backend unavailable")
	// ErrAIUnavailable signals AI features requested without a configured backend credential.
	ErrAIUnavailable = errors.New("ai features unavailable")
	// ErrAIProviderError signals a failed summarize or embed call.
	ErrAIProviderError = errors.New("ai provider error")
	// ErrAIBudgetExceeded signals an exhausted language model token budget with action=reject.
	ErrAIBudgetExceeded = errors.New("ai token budget exceeded")
	// ErrDedupRequiresEmbeddings signals dedup requested without embeddings.
	ErrDedupRequiresEmbeddings = fmt.Errorf("%w: deduplication requires embeddings=true", ErrInvalidRequest)
)

// AdmissionDeniedError wraps ErrRateLimited with the decision that rejected the caller.
type AdmissionDeniedError struct {
	Decision Decision
}

func (e *AdmissionDeniedError) Error() string {
	return fmt.Sprintf("%s: try again in %d seconds",
		ErrRateLimited.Error(), int(e.Decision.RetryAfter/time.Second))
}

func (e *AdmissionDeniedError) Unwrap() error { return ErrRateLimited }

// NewAdmissionDenied creates a rate limit rejection for the given decision.
func NewAdmissionDenied(d Decision) error {
	return &AdmissionDeniedError{Decision: d}
}
