// Package rollover runs the worker-mode counter-reset scheduler: zero
// every project's currentDay bucket at local midnight, and currentMonth
// on the 1st of the month, in the configured timezone. The loop
// recomputes and waits for the next calendar boundary each pass rather
// than ticking on a fixed interval, since a fixed interval cannot land
// on midnight/month-start exactly.
package rollover

import (
	"context"
	"log/slog"
	"time"
)

// CounterRepository is the narrow reset contract the scheduler needs.
type CounterRepository interface {
	ResetDailyCounters(ctx context.Context) (int64, error)
	ResetMonthlyCounters(ctx context.Context) (int64, error)
}

// Scheduler ticks toward the next daily/monthly boundary and resets project
// usage counters when it arrives.
type Scheduler struct {
	Counters CounterRepository
	Location *time.Location
	Logger   *slog.Logger
}

// New constructs a Scheduler. loc defaults to UTC if nil.
func New(counters CounterRepository, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{Counters: counters, Location: loc, Logger: logger}
}

// Run blocks, resetting counters at each boundary, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := time.Now().In(s.Location)
		nextDay := nextMidnight(now)
		nextMonth := nextMonthStart(now)

		wait := nextDay
		if nextMonth.Before(wait) {
			wait = nextMonth
		}

		timer := time.NewTimer(time.Until(wait))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case fired := <-timer.C:
			s.onBoundary(ctx, fired.In(s.Location), nextDay, nextMonth)
		}
	}
}

func (s *Scheduler) onBoundary(ctx context.Context, fired, nextDay, nextMonth time.Time) {
	if !fired.Before(nextDay) {
		count, err := s.Counters.ResetDailyCounters(ctx)
		if err != nil {
			s.Logger.Error("resetting daily usage counters", "error", err)
		} else {
			s.Logger.Info("reset daily usage counters", "projects", count)
		}
	}
	if !fired.Before(nextMonth) {
		count, err := s.Counters.ResetMonthlyCounters(ctx)
		if err != nil {
			s.Logger.Error("resetting monthly usage counters", "error", err)
		} else {
			s.Logger.Info("reset monthly usage counters", "projects", count)
		}
	}
}

// nextMidnight returns the next local-midnight instant strictly after now.
func nextMidnight(now time.Time) time.Time {
	year, month, day := now.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	if !midnight.After(now) {
		midnight = midnight.AddDate(0, 0, 1)
	}
	return midnight
}

// nextMonthStart returns the next local 1st-of-month midnight instant
// strictly after now.
func nextMonthStart(now time.Time) time.Time {
	year, month, _ := now.Date()
	start := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	if !start.After(now) {
		start = start.AddDate(0, 1, 0)
	}
	return start
}
