package domain

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
)

// ─── Store Interfaces ───────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// infra/sqlite, infra/postgres and infra/firestore implement them;
// the engagement engine depends only on them.
// Lookups return (nil, nil) when the record does not exist.

// LogStore persists daily log entries.
type LogStore interface {
	// SaveEntry upserts an entry and returns the version it replaced, if any.
	SaveEntry(ctx context.Context, entry DailyLogEntry) (*DailyLogEntry, error)
	GetEntry(ctx context.Context, userID string, date civil.Date) (*DailyLogEntry, error)
	// ListEntries returns entries with from <= date <= to, oldest first.
	ListEntries(ctx context.Context, userID string, from, to civil.Date) ([]DailyLogEntry, error)
	// ListSlipDates returns dates in [from, to] where smokeFree is false or
	// cigarettesSmoked > 0, newest first.
	ListSlipDates(ctx context.Context, userID string, from, to civil.Date) ([]civil.Date, error)
	CountEntries(ctx context.Context, userID string) (int, error)
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	// SaveProfile upserts the user-editable fields only.
	SaveProfile(ctx context.Context, p UserProfile) error
	UpdateStreakCache(ctx context.Context, userID string, s StreakState) error
	IncrementCounter(ctx context.Context, userID string, c Counter, delta int) error
}

// ChallengeStore records completed challenges.
type ChallengeStore interface {
	// CompleteChallenge returns false if the challenge was already completed.
	CompleteChallenge(ctx context.Context, userID, challengeID string, at time.Time) (bool, error)
	CountCompletedChallenges(ctx context.Context, userID string) (int, error)
}

// LeaderboardStore holds denormalized leaderboard rows.
type LeaderboardStore interface {
	// TopN returns at most n rows ordered by metric descending.
	TopN(ctx context.Context, metric LeaderboardMetric, n int) ([]LeaderboardRow, error)
	UpsertLeaderboardRow(ctx context.Context, row LeaderboardRow) error
}

// AchievementStore persists unlock records.
type AchievementStore interface {
	// UnlockAchievement creates the unlock record and adds points to the
	// profile in one atomic unit. Returns false, without writing, if the
	// record already exists.
	UnlockAchievement(ctx context.Context, u AchievementUnlock, points int64) (bool, error)
	IsAchievementUnlocked(ctx context.Context, userID, achievementID string) (bool, error)
	ListUnlockedAchievements(ctx context.Context, userID string) ([]AchievementUnlock, error)
	MarkAchievementSeen(ctx context.Context, userID, achievementID string) error
}

// NotificationStore persists user-visible notifications.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n Notification) error
	ListPendingNotifications(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkNotificationShown(ctx context.Context, userID, id string) error
}

// Store is the full persistence surface of one backend.
type Store interface {
	LogStore
	ProfileStore
	ChallengeStore
	LeaderboardStore
	AchievementStore
	NotificationStore

	Ping(ctx context.Context) error
	Close() error
}

// Pusher hands a push request to the device delivery transport.
type Pusher interface {
	Push(ctx context.Context, req PushRequest) error
}
