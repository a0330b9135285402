// Package engagement implements the breathe achievement engine.
// Streaks, savings, health milestones, leaderboard ranks and one-time
// achievement unlocks are all derived from the daily smoking log.
// Design rule: the log history is canonical; everything else is a cache.
package engagement

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/breathe-app/breathe/internal/domain"
)

// StreakCalculator derives the smoke-free streak from the daily log.
// It performs no writes and is safe to retry.
type StreakCalculator struct {
	logs domain.LogStore
}

// NewStreakCalculator creates a streak calculator over a log store.
func NewStreakCalculator(logs domain.LogStore) *StreakCalculator {
	return &StreakCalculator{logs: logs}
}

// Compute returns the streak as of today.
//
// The most recent slip in [quit, today] anchors the streak: it starts the
// day after that slip, or on the quit date if there was none. Slips dated
// after today or before the quit date are outside the range and ignored.
// A nil quit date yields the zero state; a quit date after today yields
// zero days.
func (c *StreakCalculator) Compute(ctx context.Context, userID string, quit *civil.Date, today civil.Date) (domain.StreakState, error) {
	var state domain.StreakState
	if quit == nil {
		return state, nil
	}

	start := *quit
	if !quit.After(today) {
		slips, err := c.logs.ListSlipDates(ctx, userID, *quit, today)
		if err != nil {
			return state, fmt.Errorf("list slip dates: %w", err)
		}
		if len(slips) > 0 {
			last := latest(slips)
			state.LastSlipDate = &last
			start = last.AddDays(1)
		}
	}

	state.StartDate = &start
	state.CurrentDays = max(0, today.DaysSince(start))
	return state, nil
}

// latest returns the most recent date. Stores return slips newest first,
// but nothing here depends on that.
func latest(dates []civil.Date) civil.Date {
	m := dates[0]
	for _, d := range dates[1:] {
		if d.After(m) {
			m = d
		}
	}
	return m
}

// NeedsStreakRefresh reports whether replacing prev with next changes the
// entry's slip status, which is the only change that can move the streak.
// A missing previous entry counts as not a slip.
func NeedsStreakRefresh(prev *domain.DailyLogEntry, next domain.DailyLogEntry) bool {
	wasSlip := prev != nil && prev.IsSlip()
	return wasSlip != next.IsSlip()
}
