// Package usage reports language model token consumption against the budget.
package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/searchscout/internal/domain/usage"
	"github.com/kailas-cloud/searchscout/internal/domain/usage/budget"
	"github.com/kailas-cloud/searchscout/internal/domain/usage/metrics"
)

// Service handles usage reporting.
type Service struct {
	br  BudgetReader
	now func() time.Time
}

// New creates a Service. br can be nil when AI features are disabled.
func New(br BudgetReader) *Service {
	return &Service{br: br, now: time.Now}
}

// GetReport builds a usage report for the given period. Unknown periods report the month.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	now := s.now().UTC()
	var start, end time.Time
	var limit, used, requests, remaining int64

	switch period {
	case domusage.PeriodDay:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.Add(24 * time.Hour)
		if s.br != nil {
			limit = s.br.DailyLimit()
			used = s.br.DailyUsed()
			requests = s.br.DailyRequests()
			remaining = s.br.RemainingDaily()
		}
	default:
		period = domusage.PeriodMonth
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
		if s.br != nil {
			limit = s.br.MonthlyLimit()
			used = s.br.MonthlyUsed()
			requests = s.br.MonthlyRequests()
			remaining = s.br.RemainingMonthly()
		}
	}

	exhausted := limit > 0 && remaining <= 0

	b := budget.New(int(limit), int(remaining), exhausted, end.UnixMilli())
	m := metrics.New(int(requests), int(used))

	return domusage.NewReport(period, start.UnixMilli(), end.UnixMilli(), m, b)
}
