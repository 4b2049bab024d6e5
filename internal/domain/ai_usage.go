package domain

import (
	"context"
	"sync/atomic"
)

type aiUsageKey struct{}

// AIUsage collects language model token usage for a single request.
// The handler puts it into the context; model decorators add to it; the handler
// reads it for response headers. Safe for concurrent use.
type AIUsage struct {
	tokens atomic.Int64
	used   atomic.Bool
}

// NewContextWithUsage returns a context with an attached usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *AIUsage) {
	u := &AIUsage{}
	return context.WithValue(ctx, aiUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *AIUsage {
	u, _ := ctx.Value(aiUsageKey{}).(*AIUsage)
	return u
}

// AddTokens records consumed tokens. A nil collector is a no-op.
func (u *AIUsage) AddTokens(n int) {
	if u == nil {
		return
	}
	u.tokens.Add(int64(n))
	u.used.Store(true)
}

// TotalTokens returns the tokens recorded so far.
func (u *AIUsage) TotalTokens() int {
	if u == nil {
		return 0
	}
	return int(u.tokens.Load())
}

// Used reports whether the language model was called, even on a cache hit with 0 tokens.
func (u *AIUsage) Used() bool {
	return u != nil && u.used.Load()
}
