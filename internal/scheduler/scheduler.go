// Package scheduler advances every configured identity through the trading
// calendar. Identities run concurrently and independently; within one
// identity, dates run strictly in order, and each identity resumes from the
// day after its last ledger entry.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/logger"
	"llm-day-trader/internal/trace"
	"llm-day-trader/internal/types"
)

// SessionRunner runs one trading day for one identity.
type SessionRunner interface {
	Run(ctx context.Context, identity string, date time.Time) (types.SessionResult, error)
}

type Scheduler struct {
	runner   SessionRunner
	ledger   interfaces.Ledger
	calendar interfaces.Calendar
	initDate time.Time
	endDate  time.Time
}

func New(runner SessionRunner, led interfaces.Ledger, cal interfaces.Calendar, initDate, endDate time.Time) *Scheduler {
	return &Scheduler{
		runner:   runner,
		ledger:   led,
		calendar: cal,
		initDate: initDate,
		endDate:  endDate,
	}
}

// Run drives all identities to the end date and returns every session result
// in (identity, date) order. A failed date is recorded and the identity moves
// on to the next date; only context cancellation stops an identity early.
func (s *Scheduler) Run(ctx context.Context, identities []string) ([]types.SessionResult, error) {
	ctx, span := trace.StartSpan(ctx, "scheduler.Run")
	defer span.End()

	var (
		mu      sync.Mutex
		results []types.SessionResult
		wg      sync.WaitGroup
	)
	for _, identity := range identities {
		wg.Add(1)
		go func(identity string) {
			defer wg.Done()
			res := s.runIdentity(ctx, identity)
			mu.Lock()
			results = append(results, res...)
			mu.Unlock()
		}(identity)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Identity != results[j].Identity {
			return results[i].Identity < results[j].Identity
		}
		return results[i].Date.Before(results[j].Date)
	})
	return results, ctx.Err()
}

func (s *Scheduler) runIdentity(ctx context.Context, identity string) []types.SessionResult {
	start, err := s.resumeDate(identity)
	if err != nil {
		logger.ErrorWithErr(ctx, "Cannot determine resume date", err, "identity", identity)
		return nil
	}

	days := s.calendar.TradingDays(start, s.endDate)
	if len(days) == 0 {
		logger.Info(ctx, "Identity already up to date", "identity", identity)
		return nil
	}
	logger.Info(ctx, "Scheduling identity",
		"identity", identity,
		"from", types.FormatDate(days[0]),
		"to", types.FormatDate(days[len(days)-1]),
		"sessions", len(days))

	var results []types.SessionResult
	for _, day := range days {
		if ctx.Err() != nil {
			return results
		}
		res, err := s.runner.Run(ctx, identity, day)
		results = append(results, res)
		if err != nil {
			// The date is marked failed; later dates still run so one bad
			// day cannot strand the identity.
			logger.ErrorWithErr(ctx, "Session failed", err,
				"identity", identity, "date", types.FormatDate(day))
		}
	}
	return results
}

// resumeDate picks the first date this identity still has to trade: the day
// after its newest ledger record, or the configured start for a fresh ledger.
func (s *Scheduler) resumeDate(identity string) (time.Time, error) {
	last, ok, err := s.ledger.LastDate(identity)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return s.initDate, nil
	}
	return last.AddDate(0, 0, 1), nil
}
