package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
)

// WindowStore is the consumer interface for a shared sliding-window store (ISP).
// Record adds now to the identity's window unless it already holds limit entries
// and returns the window size after the call plus its oldest entry.
type WindowStore interface {
	Record(
		ctx context.Context, identity string, now time.Time, window time.Duration, limit int,
	) (domain.WindowState, error)
}

// SharedGate applies the sliding-window contract on top of a store shared by all replicas.
// Entries expire with the window, so no sweep is required.
type SharedGate struct {
	store     WindowStore
	limit     int
	window    time.Duration
	now       func() time.Time
	decisions *prometheus.CounterVec
	logger    *zap.Logger
}

// NewSharedGate creates a store-backed gate.
func NewSharedGate(store WindowStore, limit int, logger *zap.Logger) *SharedGate {
	return &SharedGate{
		store:  store,
		limit:  limit,
		window: DefaultWindow,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the time source (tests).
func (g *SharedGate) WithClock(now func() time.Time) *SharedGate {
	g.now = now
	return g
}

// WithMetrics attaches a decision counter with label "result".
func (g *SharedGate) WithMetrics(decisions *prometheus.CounterVec) *SharedGate {
	g.decisions = decisions
	return g
}

// Limit returns the per-window admission limit.
func (g *SharedGate) Limit() int { return g.limit }

// Admit records a request for identity if the shared budget allows it.
// Store failures admit the request and are logged.
func (g *SharedGate) Admit(ctx context.Context, identity string) (domain.Decision, error) {
	now := g.now()

	state, err := g.store.Record(ctx, identity, now, g.window, g.limit)
	if err != nil {
		g.logger.Warn("Shared rate window unavailable, admitting request",
			zap.String("identity", redact(identity)),
			zap.Error(err),
		)
		g.observe("store_error")
		return domain.Decision{
			Allowed:   true,
			Limit:     g.limit,
			Remaining: g.limit - 1,
			ResetAt:   now.Add(g.window),
		}, nil
	}

	if !state.Admitted {
		resetAt := state.Oldest.Add(g.window)
		d := domain.Decision{
			Allowed:    false,
			Limit:      g.limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: max(resetAt.Sub(now), 0),
		}
		g.observe("denied")
		return d, domain.NewAdmissionDenied(d)
	}

	g.observe("allowed")
	return domain.Decision{
		Allowed:   true,
		Limit:     g.limit,
		Remaining: max(g.limit-state.Count, 0),
		ResetAt:   now.Add(g.window),
	}, nil
}

func (g *SharedGate) observe(result string) {
	if g.decisions != nil {
		g.decisions.WithLabelValues(result).Inc()
	}
}

// redact keeps API keys out of logs.
func redact(identity string) string {
	if len(identity) <= 4 {
		return "****"
	}
	return identity[:4] + "****"
}
