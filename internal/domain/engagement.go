// Package domain holds the engagement types, errors and store interfaces.
// The achievement engine turns a user's daily smoking log into streaks,
// savings, health milestones and one-time achievement unlocks.
package domain

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// ─── Daily Log ──────────────────────────────────────────────────────────────

// DailyLogEntry is one user's record for one calendar day.
// Keyed by (UserID, Date). Entries are never deleted; any date may be edited.
type DailyLogEntry struct {
	UserID           string     `json:"user_id"`
	Date             civil.Date `json:"date"`
	CigarettesSmoked int        `json:"cigarettes_smoked"`
	SmokeFree        bool       `json:"smoke_free"`
	CravingsCount    int        `json:"cravings_count"`
	MoodRating       int        `json:"mood_rating"`  // 1..5, 0 = not rated
	StressLevel      int        `json:"stress_level"` // 1..5, 0 = not rated
	Notes            string     `json:"notes"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Normalize derives SmokeFree from CigarettesSmoked. Called on every write.
func (e *DailyLogEntry) Normalize() {
	e.SmokeFree = e.CigarettesSmoked == 0
}

// IsSlip reports whether the entry records a day the user smoked.
// Both fields are checked: legacy rows may have only one of them right.
func (e DailyLogEntry) IsSlip() bool {
	return !e.SmokeFree || e.CigarettesSmoked > 0
}

// Validate checks the user-supplied fields of an entry.
func (e DailyLogEntry) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidLog)
	}
	if !e.Date.IsValid() {
		return fmt.Errorf("%w: invalid date %q", ErrInvalidLog, e.Date.String())
	}
	if e.CigarettesSmoked < 0 {
		return fmt.Errorf("%w: cigarettes smoked must be >= 0, got %d", ErrInvalidLog, e.CigarettesSmoked)
	}
	if e.CravingsCount < 0 {
		return fmt.Errorf("%w: cravings count must be >= 0, got %d", ErrInvalidLog, e.CravingsCount)
	}
	if e.MoodRating != 0 && (e.MoodRating < 1 || e.MoodRating > 5) {
		return fmt.Errorf("%w: mood rating must be 1..5, got %d", ErrInvalidLog, e.MoodRating)
	}
	if e.StressLevel != 0 && (e.StressLevel < 1 || e.StressLevel > 5) {
		return fmt.Errorf("%w: stress level must be 1..5, got %d", ErrInvalidLog, e.StressLevel)
	}
	return nil
}

// ─── Profile ────────────────────────────────────────────────────────────────

// DateMode selects which profile date anchors the streak.
type DateMode string

const (
	DateModeQuit   DateMode = "quit"
	DateModeTarget DateMode = "target"
)

// Counter names a per-profile activity counter.
type Counter string

const (
	CounterAIMessages    Counter = "ai_messages"
	CounterAudioSessions Counter = "audio_sessions"
)

// UserProfile is the single per-user document.
// The streak fields are a cache of StreakCalculator output; the daily log
// history is the source of truth.
type UserProfile struct {
	UserID         string      `json:"user_id"`
	DisplayName    string      `json:"display_name"`
	Avatar         string      `json:"avatar"`
	Timezone       string      `json:"timezone"`
	QuitDate       *civil.Date `json:"quit_date,omitempty"`
	TargetQuitDate *civil.Date `json:"target_quit_date,omitempty"`
	DateMode       DateMode    `json:"date_mode"`

	CigarettesPerDayBefore float64 `json:"cigarettes_per_day_before"`
	CostPerPack            float64 `json:"cost_per_pack"`
	CigarettesPerPack      float64 `json:"cigarettes_per_pack"`

	// Derived, cached.
	CurrentStreakDays  int         `json:"current_streak_days"`
	StreakStartDate    *civil.Date `json:"streak_start_date,omitempty"`
	LastSlipDate       *civil.Date `json:"last_slip_date,omitempty"`
	TotalPoints        int64       `json:"total_points"`
	AIMessagesCount    int         `json:"ai_messages_count"`
	AudioSessionsCount int         `json:"audio_sessions_count"`
}

// AnchorDate returns the date the streak is measured from.
// Target mode falls back to the quit date when no target is set.
func (p UserProfile) AnchorDate() *civil.Date {
	if p.DateMode == DateModeTarget && p.TargetQuitDate != nil {
		return p.TargetQuitDate
	}
	return p.QuitDate
}

// ─── Streak ─────────────────────────────────────────────────────────────────

// StreakState is the output of the streak calculator.
type StreakState struct {
	CurrentDays  int         `json:"current_streak_days"`
	StartDate    *civil.Date `json:"streak_start_date"`
	LastSlipDate *civil.Date `json:"last_slip_date"`
}

// Equal reports whether two states carry the same values.
func (s StreakState) Equal(o StreakState) bool {
	return s.CurrentDays == o.CurrentDays &&
		sameDate(s.StartDate, o.StartDate) &&
		sameDate(s.LastSlipDate, o.LastSlipDate)
}

func sameDate(a, b *civil.Date) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ProgressMode tells the UI whether the user is counting up or down.
type ProgressMode string

const (
	ModeStreak    ProgressMode = "streak"
	ModeCountdown ProgressMode = "countdown"
)

// ─── Metrics ────────────────────────────────────────────────────────────────

// LeaderboardMetric names a ranked leaderboard column.
type LeaderboardMetric string

const (
	MetricPoints LeaderboardMetric = "points"
	MetricStreak LeaderboardMetric = "streak"
	MetricSaved  LeaderboardMetric = "saved"
)

// LeaderboardMetrics lists every ranked metric in display order.
func LeaderboardMetrics() []LeaderboardMetric {
	return []LeaderboardMetric{MetricPoints, MetricStreak, MetricSaved}
}

// ParseLeaderboardMetric validates a metric name.
func ParseLeaderboardMetric(s string) (LeaderboardMetric, error) {
	switch m := LeaderboardMetric(s); m {
	case MetricPoints, MetricStreak, MetricSaved:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
}

// LeaderboardRanks holds the user's top-3 position per metric. 0 = not ranked.
type LeaderboardRanks struct {
	Points int `json:"points"`
	Streak int `json:"streak"`
	Saved  int `json:"saved"`
}

// MetricSnapshot is the single read shared by every predicate in one pass.
type MetricSnapshot struct {
	UserID                  string           `json:"user_id"`
	Today                   civil.Date       `json:"today"`
	Mode                    ProgressMode     `json:"mode"`
	StreakDays              int              `json:"streak_days"`
	DailyLogCount           int              `json:"daily_log_count"`
	AIMessageCount          int              `json:"ai_message_count"`
	AudioSessionCount       int              `json:"audio_session_count"`
	CompletedChallengeCount int              `json:"completed_challenge_count"`
	SavingsAmount           int64            `json:"savings_amount"`
	HealthStageRank         int              `json:"health_stage_rank"`
	LeaderboardRanks        LeaderboardRanks `json:"leaderboard_ranks"`
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

// LeaderboardRow is the denormalized public row for one user.
type LeaderboardRow struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar"`
	Points      int64     `json:"points"`
	StreakDays  int       `json:"streak_days"`
	SavedAmount int64     `json:"saved_amount"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ─── Achievement Types ──────────────────────────────────────────────────────

// AchievementCategory groups achievements by theme.
type AchievementCategory string

const (
	CatStreak      AchievementCategory = "streak"
	CatLogging     AchievementCategory = "logging"
	CatCoach       AchievementCategory = "coach"
	CatAudio       AchievementCategory = "audio"
	CatChallenges  AchievementCategory = "challenges"
	CatSavings     AchievementCategory = "savings"
	CatHealth      AchievementCategory = "health"
	CatLeaderboard AchievementCategory = "leaderboard"
)

// AchievementDef defines a single achievement's requirements.
// Predicate is a pure function of the snapshot; it performs no I/O.
type AchievementDef struct {
	ID          string                    `json:"id"`
	Title       string                    `json:"title"`
	Description string                    `json:"description"`
	Category    AchievementCategory       `json:"category"`
	Icon        string                    `json:"icon"`
	Points      int64                     `json:"points"`
	Predicate   func(MetricSnapshot) bool `json:"-"`
}

// AchievementUnlock is the append-once record of an earned achievement.
// Its existence is the unlock; it is never deleted and UnlockedAt never changes.
type AchievementUnlock struct {
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
	Seen          bool      `json:"seen"`
}

// UnlockResult reports the outcome of one unlock attempt.
type UnlockResult struct {
	Unlocked bool `json:"unlocked"`
	Deduped  bool `json:"deduped"`
}

// UnlockEvent is handed to the notification dispatcher once per successful unlock.
type UnlockEvent struct {
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Points        int64     `json:"points"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// ─── Notification Types ─────────────────────────────────────────────────────

// NotificationType categorizes notifications.
type NotificationType string

const (
	NotifyAchievement NotificationType = "achievement"
)

// Notification is a user-facing message.
type Notification struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	Type          NotificationType `json:"type"`
	Title         string           `json:"title"`
	Body          string           `json:"body"`
	AchievementID string           `json:"achievement_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	Shown         bool             `json:"shown"`
}

// PushRequest asks the delivery transport to push a notification to devices.
type PushRequest struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	NotificationID string    `json:"notification_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	RequestedAt    time.Time `json:"requested_at"`
}

// NotificationPolicy governs push delivery. Records are always persisted;
// quiet hours only hold back the push.
type NotificationPolicy struct {
	PushEnabled bool   `json:"push_enabled"`
	QuietStart  string `json:"quiet_start"` // "22:00"
	QuietEnd    string `json:"quiet_end"`   // "08:00"
}

// DefaultNotificationPolicy returns the default policy.
func DefaultNotificationPolicy() NotificationPolicy {
	return NotificationPolicy{
		PushEnabled: true,
		QuietStart:  "22:00",
		QuietEnd:    "08:00",
	}
}
