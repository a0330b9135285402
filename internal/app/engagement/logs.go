package engagement

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/breathe-app/breathe/internal/domain"
	"github.com/breathe-app/breathe/internal/infra/metrics"
	"github.com/breathe-app/breathe/internal/logger"
)

// LogServiceStore is what log submission reads and writes.
type LogServiceStore interface {
	domain.LogStore
	domain.ProfileStore
}

// LogService accepts daily log submissions and keeps the profile's cached
// streak in step with the log history.
type LogService struct {
	store   LogServiceStore
	streaks *StreakCalculator
	loc     *time.Location
	now     func() time.Time
}

// NewLogService creates a log service. loc is the fallback calendar for
// users without a profile timezone; nil means UTC.
func NewLogService(store LogServiceStore, loc *time.Location) *LogService {
	if loc == nil {
		loc = time.UTC
	}
	return &LogService{
		store:   store,
		streaks: NewStreakCalculator(store),
		loc:     loc,
		now:     time.Now,
	}
}

// SaveResult describes one log submission.
type SaveResult struct {
	Entry     domain.DailyLogEntry `json:"entry"`
	Refreshed bool                 `json:"streak_refreshed"`
	Streak    *domain.StreakState  `json:"streak,omitempty"`
}

// Save validates, normalizes and upserts an entry. The cached streak is
// recomputed only when the entry's slip status flips.
func (s *LogService) Save(ctx context.Context, entry domain.DailyLogEntry) (SaveResult, error) {
	entry.Normalize()
	if err := entry.Validate(); err != nil {
		return SaveResult{}, err
	}
	entry.UpdatedAt = s.now()

	prev, err := s.store.SaveEntry(ctx, entry)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save log entry: %w", err)
	}
	res := SaveResult{Entry: entry}

	if !NeedsStreakRefresh(prev, entry) {
		return res, nil
	}
	state, err := s.RefreshStreak(ctx, entry.UserID)
	if err != nil {
		// The entry is saved; the next flip or an explicit refresh repairs the cache.
		logger.Warn("streak cache refresh failed", "component", "logs", "user", entry.UserID, "date", entry.Date, "err", err)
		return res, nil
	}
	res.Refreshed, res.Streak = true, &state
	return res, nil
}

// RefreshStreak recomputes the streak from the log and writes the cache.
func (s *LogService) RefreshStreak(ctx context.Context, userID string) (domain.StreakState, error) {
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return domain.StreakState{}, err
	}
	state, err := s.streaks.Compute(ctx, userID, profile.AnchorDate(), s.today(profile))
	if err != nil {
		return domain.StreakState{}, err
	}
	if err := s.store.UpdateStreakCache(ctx, userID, state); err != nil {
		return domain.StreakState{}, fmt.Errorf("update streak cache: %w", err)
	}
	metrics.StreakRefreshes.Inc()
	logger.Debug("streak cache refreshed", "component", "logs", "user", userID, "days", state.CurrentDays)
	return state, nil
}

// StreakStatus is the live streak plus the progress mode.
type StreakStatus struct {
	domain.StreakState
	Mode          domain.ProgressMode `json:"mode"`
	Today         civil.Date          `json:"today"`
	Anchor        *civil.Date         `json:"anchor_date,omitempty"`
	DaysUntilQuit int                 `json:"days_until_quit,omitempty"`
	Next          *HealthMilestone    `json:"next_milestone,omitempty"`
}

// Status computes the live streak without touching the cache.
func (s *LogService) Status(ctx context.Context, userID string) (StreakStatus, error) {
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return StreakStatus{}, err
	}
	today := s.today(profile)
	anchor := profile.AnchorDate()

	state, err := s.streaks.Compute(ctx, userID, anchor, today)
	if err != nil {
		return StreakStatus{}, err
	}
	st := StreakStatus{StreakState: state, Mode: domain.ModeStreak, Today: today, Anchor: anchor}
	if anchor != nil && anchor.After(today) {
		st.Mode = domain.ModeCountdown
		st.DaysUntilQuit = anchor.DaysSince(today)
	}
	st.Next = NextMilestone(state.CurrentDays)
	return st, nil
}

// Get returns one entry, or nil if the day was not logged.
func (s *LogService) Get(ctx context.Context, userID string, date civil.Date) (*domain.DailyLogEntry, error) {
	return s.store.GetEntry(ctx, userID, date)
}

// List returns entries in [from, to], oldest first.
func (s *LogService) List(ctx context.Context, userID string, from, to civil.Date) ([]domain.DailyLogEntry, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end %s before start %s", domain.ErrInvalidLog, to, from)
	}
	return s.store.ListEntries(ctx, userID, from, to)
}

// Today returns the user's current calendar date.
func (s *LogService) Today(ctx context.Context, userID string) (civil.Date, error) {
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return civil.Date{}, err
	}
	return s.today(profile), nil
}

func (s *LogService) profile(ctx context.Context, userID string) (domain.UserProfile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		return domain.UserProfile{UserID: userID}, nil
	}
	return *p, nil
}

func (s *LogService) today(p domain.UserProfile) civil.Date {
	return civil.DateOf(s.now().In(userLocation(p.Timezone, s.loc)))
}
