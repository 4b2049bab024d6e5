// Package quota enforces daily and monthly token budgets on the language model backend.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/domain"
)

// Action defines behavior when the token budget is exceeded.
type Action string

const (
	// ActionWarn logs a warning but allows the request.
	ActionWarn Action = "warn"
	// ActionReject blocks the request.
	ActionReject Action = "reject"
)

// Store is the persistence interface for budget counters.
// IncrBy may be called repeatedly for the same key.
type Store interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

const persistTimeout = 2 * time.Second

// counter is one period's usage.
type counter struct {
	tokens   int64
	requests int64
}

// Tracker is an in-memory token budget with optional write-behind persistence.
// Check never leaves the process; Record updates memory first, then the store.
type Tracker struct {
	mu             sync.Mutex
	daily          counter
	monthly        counter
	dailyLimit     int64
	monthlyLimit   int64
	action         Action
	provider       string
	lastDayReset   time.Time
	lastMonthReset time.Time
	store          Store
	now            func() time.Time
	logger         *zap.Logger
}

// NewTracker creates a tracker. A zero limit disables that period's cap;
// usage is still counted for reporting.
func NewTracker(
	provider string, dailyLimit, monthlyLimit int64,
	action Action, logger *zap.Logger,
) *Tracker {
	t := &Tracker{
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		action:       action,
		provider:     provider,
		now:          time.Now,
		logger:       logger,
	}
	now := t.now().UTC()
	t.lastDayReset = truncateToDay(now)
	t.lastMonthReset = truncateToMonth(now)
	return t
}

// WithStore attaches a persistence store and loads the current counters.
func (t *Tracker) WithStore(ctx context.Context, store Store) *Tracker {
	t.store = store
	t.loadFromStore(ctx)
	return t
}

func (t *Tracker) loadFromStore(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	t.daily = t.load(ctx, "daily", t.dailyKey(now, "tokens"), t.dailyKey(now, "requests"))
	t.monthly = t.load(ctx, "monthly", t.monthlyKey(now, "tokens"), t.monthlyKey(now, "requests"))

	t.logger.Info("Token budget loaded from store",
		zap.String("provider", t.provider),
		zap.Int64("daily_used", t.daily.tokens),
		zap.Int64("monthly_used", t.monthly.tokens),
	)
}

func (t *Tracker) load(ctx context.Context, period, tokensKey, requestsKey string) counter {
	var c counter
	var err error
	if c.tokens, err = t.store.Get(ctx, tokensKey); err != nil {
		t.logger.Warn("Failed to load token budget from store", zap.String("period", period), zap.Error(err))
	}
	if c.requests, err = t.store.Get(ctx, requestsKey); err != nil {
		t.logger.Warn("Failed to load request count from store", zap.String("period", period), zap.Error(err))
	}
	return c
}

func (t *Tracker) dailyKey(at time.Time, kind string) string {
	return fmt.Sprintf("%sbudget:%s:daily:%s:%s", domain.KeyPrefix, t.provider, kind, at.Format("2006-01-02"))
}

func (t *Tracker) monthlyKey(at time.Time, kind string) string {
	return fmt.Sprintf("%sbudget:%s:monthly:%s:%s", domain.KeyPrefix, t.provider, kind, at.Format("2006-01"))
}

// Check reports whether the budget allows a new call. In-memory only.
func (t *Tracker) Check(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()

	dailyExceeded := t.dailyLimit > 0 && t.daily.tokens >= t.dailyLimit
	monthlyExceeded := t.monthlyLimit > 0 && t.monthly.tokens >= t.monthlyLimit

	if !dailyExceeded && !monthlyExceeded {
		return nil
	}

	if t.action == ActionReject {
		return domain.ErrAIBudgetExceeded
	}

	t.logger.Warn("Token budget exceeded",
		zap.String("provider", t.provider),
		zap.Int64("daily_used", t.daily.tokens),
		zap.Int64("daily_limit", t.dailyLimit),
		zap.Int64("monthly_used", t.monthly.tokens),
		zap.Int64("monthly_limit", t.monthlyLimit),
	)
	return nil
}

// Record registers one completed call and the tokens it consumed.
func (t *Tracker) Record(tokens int64) {
	t.mu.Lock()
	t.resetIfNeeded()
	t.daily.tokens += tokens
	t.daily.requests++
	t.monthly.tokens += tokens
	t.monthly.requests++
	store := t.store
	now := t.now().UTC()
	t.mu.Unlock()

	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	writes := []struct {
		key string
		val int64
	}{
		{t.dailyKey(now, "tokens"), tokens},
		{t.dailyKey(now, "requests"), 1},
		{t.monthlyKey(now, "tokens"), tokens},
		{t.monthlyKey(now, "requests"), 1},
	}
	for _, w := range writes {
		if w.val == 0 {
			continue
		}
		if err := store.IncrBy(ctx, w.key, w.val); err != nil {
			t.logger.Warn("Failed to persist token budget", zap.String("key", w.key), zap.Error(err))
		}
	}
}

// RemainingDaily returns tokens left in the daily budget (-1 if unlimited).
func (t *Tracker) RemainingDaily() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return remaining(t.dailyLimit, t.daily.tokens)
}

// RemainingMonthly returns tokens left in the monthly budget (-1 if unlimited).
func (t *Tracker) RemainingMonthly() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return remaining(t.monthlyLimit, t.monthly.tokens)
}

func remaining(limit, used int64) int64 {
	if limit == 0 {
		return -1
	}
	return max(limit-used, 0)
}

// DailyLimit returns the daily token cap.
func (t *Tracker) DailyLimit() int64 { return t.dailyLimit }

// MonthlyLimit returns the monthly token cap.
func (t *Tracker) MonthlyLimit() int64 { return t.monthlyLimit }

// DailyUsed returns tokens consumed today.
func (t *Tracker) DailyUsed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.daily.tokens
}

// MonthlyUsed returns tokens consumed this month.
func (t *Tracker) MonthlyUsed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.monthly.tokens
}

// DailyRequests returns the number of calls recorded today.
func (t *Tracker) DailyRequests() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.daily.requests
}

// MonthlyRequests returns the number of calls recorded this month.
func (t *Tracker) MonthlyRequests() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.monthly.requests
}

// resetIfNeeded zeroes counters when the day or month rolls over.
func (t *Tracker) resetIfNeeded() {
	now := t.now().UTC()
	today := truncateToDay(now)
	thisMonth := truncateToMonth(now)

	if today.After(t.lastDayReset) {
		t.daily = counter{}
		t.lastDayReset = today
	}
	if thisMonth.After(t.lastMonthReset) {
		t.monthly = counter{}
		t.lastMonthReset = thisMonth
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
