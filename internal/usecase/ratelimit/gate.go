// Package ratelimit implements per-identity sliding-window admission control.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
)

// Window and sweep defaults.
const (
	DefaultWindow        = time.Minute
	DefaultSweepInterval = 5 * time.Minute
	DefaultRetention     = 5 * time.Minute
)

// Gate is an in-memory sliding-window rate limiter shared by all requests of the process.
// Every read and write of the window map happens under mu, including the periodic sweep.
type Gate struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	limit         int
	window        time.Duration
	sweepInterval time.Duration
	retention     time.Duration

	now       func() time.Time
	decisions *prometheus.CounterVec
	logger    *zap.Logger
}

// NewGate creates a gate admitting at most limit requests per identity per window.
func NewGate(limit int, logger *zap.Logger) *Gate {
	return &Gate{
		windows:       make(map[string][]time.Time),
		limit:         limit,
		window:        DefaultWindow,
		sweepInterval: DefaultSweepInterval,
		retention:     DefaultRetention,
		now:           time.Now,
		logger:        logger,
	}
}

// WithSweep overrides the sweep interval and the retention of timestamps kept by a sweep.
func (g *Gate) WithSweep(interval, retention time.Duration) *Gate {
	if interval > 0 {
		g.sweepInterval = interval
	}
	if retention > 0 {
		g.retention = retention
	}
	return g
}

// WithClock replaces the time source (tests).
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// WithMetrics attaches a decision counter with label "result" ("allowed"/"denied").
func (g *Gate) WithMetrics(decisions *prometheus.CounterVec) *Gate {
	g.decisions = decisions
	return g
}

// Limit returns the per-window admission limit.
func (g *Gate) Limit() int { return g.limit }

// Admit records a request for identity if the budget allows it.
// A denial returns *domain.AdmissionDeniedError alongside the decision.
func (g *Gate) Admit(_ context.Context, identity string) (domain.Decision, error) {
	g.mu.Lock()
	now := g.now()
	stamps := pruneBefore(g.windows[identity], now.Add(-g.window))

	if len(stamps) >= g.limit {
		g.windows[identity] = stamps
		g.mu.Unlock()

		resetAt := stamps[0].Add(g.window)
		d := domain.Decision{
			Allowed:    false,
			Limit:      g.limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
		g.observe("denied")
		return d, domain.NewAdmissionDenied(d)
	}

	stamps = append(stamps, now)
	g.windows[identity] = stamps
	g.mu.Unlock()

	g.observe("allowed")
	return domain.Decision{
		Allowed:   true,
		Limit:     g.limit,
		Remaining: g.limit - len(stamps),
		ResetAt:   now.Add(g.window),
	}, nil
}

// Run sweeps stale windows every sweep interval until ctx is canceled.
func (g *Gate) Run(ctx context.Context) {
	ticker := time.NewTicker(g.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := g.Sweep(); removed > 0 {
				g.logger.Debug("Rate windows swept", zap.Int("identities_removed", removed))
			}
		}
	}
}

// Sweep drops timestamps older than the retention period and deletes empty identities.
// Returns the number of identities removed.
func (g *Gate) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-g.retention)
	removed := 0
	for id, stamps := range g.windows {
		stamps = pruneBefore(stamps, cutoff)
		if len(stamps) == 0 {
			delete(g.windows, id)
			removed++
			continue
		}
		g.windows[id] = stamps
	}
	return removed
}

// Identities returns the number of tracked identities.
func (g *Gate) Identities() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.windows)
}

func (g *Gate) observe(result string) {
	if g.decisions != nil {
		g.decisions.WithLabelValues(result).Inc()
	}
}

// pruneBefore drops the leading timestamps not strictly after cutoff. stamps is ordered.
func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[i:]...)
}
