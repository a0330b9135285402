package engagement

import (
	"context"
	"fmt"
	"math"
	"time"

	"cloud.google.com/go/civil"

	"github.com/breathe-app/breathe/internal/domain"
	"github.com/breathe-app/breathe/internal/logger"
)

// SnapshotStore is the read surface the aggregator needs.
type SnapshotStore interface {
	domain.LogStore
	domain.ProfileStore
	domain.ChallengeStore
}

// Aggregator builds the MetricSnapshot every predicate reads.
// All reads for one evaluation pass happen here, once.
type Aggregator struct {
	store   SnapshotStore
	streaks *StreakCalculator
	ranker  *Ranker
	loc     *time.Location
	now     func() time.Time
}

// NewAggregator creates an aggregator. loc is the calendar used to decide
// "today" for users whose profile has no timezone; nil means UTC.
func NewAggregator(store SnapshotStore, ranker *Ranker, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		store:   store,
		streaks: NewStreakCalculator(store),
		ranker:  ranker,
		loc:     loc,
		now:     time.Now,
	}
}

// Aggregate computes the snapshot as of now.
func (a *Aggregator) Aggregate(ctx context.Context, userID string) (domain.MetricSnapshot, error) {
	return a.AggregateAt(ctx, userID, a.now())
}

// AggregateAt computes the snapshot as of the given instant.
func (a *Aggregator) AggregateAt(ctx context.Context, userID string, now time.Time) (domain.MetricSnapshot, error) {
	snap, _, err := a.aggregate(ctx, userID, now)
	return snap, err
}

// aggregate also returns the profile it read, so callers that need both
// do not read it twice. A missing profile yields an empty one.
func (a *Aggregator) aggregate(ctx context.Context, userID string, now time.Time) (domain.MetricSnapshot, domain.UserProfile, error) {
	profile, err := a.store.GetProfile(ctx, userID)
	if err != nil {
		return domain.MetricSnapshot{}, domain.UserProfile{}, fmt.Errorf("get profile: %w", err)
	}
	if profile == nil {
		profile = &domain.UserProfile{UserID: userID}
	}

	today := a.Today(*profile, now)
	snap := domain.MetricSnapshot{
		UserID:            userID,
		Today:             today,
		Mode:              domain.ModeStreak,
		AIMessageCount:    max(0, profile.AIMessagesCount),
		AudioSessionCount: max(0, profile.AudioSessionsCount),
	}

	anchor := profile.AnchorDate()
	if anchor != nil && anchor.After(today) {
		snap.Mode = domain.ModeCountdown
	}

	streak, err := a.streaks.Compute(ctx, userID, anchor, today)
	if err != nil {
		return snap, *profile, err
	}
	snap.StreakDays = streak.CurrentDays

	if snap.DailyLogCount, err = a.store.CountEntries(ctx, userID); err != nil {
		return snap, *profile, fmt.Errorf("count log entries: %w", err)
	}
	if snap.CompletedChallengeCount, err = a.store.CountCompletedChallenges(ctx, userID); err != nil {
		return snap, *profile, fmt.Errorf("count challenges: %w", err)
	}

	snap.SavingsAmount = Savings(snap.StreakDays, profile.CigarettesPerDayBefore, profile.CigarettesPerPack, profile.CostPerPack)
	snap.HealthStageRank = HealthStageRank(snap.StreakDays)

	if a.ranker != nil {
		if snap.LeaderboardRanks, err = a.ranker.RankAll(ctx, userID); err != nil {
			return snap, *profile, err
		}
	}

	logger.Debug("snapshot aggregated", "component", "aggregator", "user", userID,
		"today", today, "mode", snap.Mode, "streak", snap.StreakDays, "saved", snap.SavingsAmount)
	return snap, *profile, nil
}

// Today returns the user's current calendar date. The profile timezone
// wins; an empty or unknown one falls back to the aggregator's location.
func (a *Aggregator) Today(profile domain.UserProfile, now time.Time) civil.Date {
	return civil.DateOf(now.In(userLocation(profile.Timezone, a.loc)))
}

func userLocation(tz string, fallback *time.Location) *time.Location {
	if tz == "" {
		return fallback
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Debug("unknown profile timezone", "timezone", tz, "err", err)
		return fallback
	}
	return loc
}

// Savings estimates money not spent on cigarettes over the streak,
// rounded to whole currency units. Any non-positive input yields 0.
func Savings(streakDays int, perDayBefore, perPack, costPerPack float64) int64 {
	if streakDays <= 0 || perDayBefore <= 0 || perPack <= 0 || costPerPack <= 0 {
		return 0
	}
	v := float64(streakDays) * (perDayBefore / perPack) * costPerPack
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Round(v))
}
