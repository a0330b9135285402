package engagement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/breathe-app/breathe/internal/domain"
)

// AchievementService answers read and acknowledgement queries about a
// user's achievements. Unlocking goes through UnlockManager only.
type AchievementService struct {
	store       domain.AchievementStore
	definitions []domain.AchievementDef
	byID        map[string]domain.AchievementDef
}

// NewAchievementService creates an achievement service over the full catalog.
func NewAchievementService(store domain.AchievementStore) *AchievementService {
	defs := AllAchievements()
	return &AchievementService{
		store:       store,
		definitions: defs,
		byID:        indexAchievements(defs),
	}
}

// AchievementView pairs a definition with the user's unlock state.
type AchievementView struct {
	domain.AchievementDef
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
	Seen       bool       `json:"seen"`
}

// List returns every achievement in catalog order with the user's state.
func (a *AchievementService) List(ctx context.Context, userID string) ([]AchievementView, error) {
	unlocks, err := a.store.ListUnlockedAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}
	got := make(map[string]domain.AchievementUnlock, len(unlocks))
	for _, u := range unlocks {
		got[u.AchievementID] = u
	}

	views := make([]AchievementView, 0, len(a.definitions))
	for _, def := range a.definitions {
		v := AchievementView{AchievementDef: def}
		if u, ok := got[def.ID]; ok {
			at := u.UnlockedAt
			v.Unlocked, v.UnlockedAt, v.Seen = true, &at, u.Seen
		}
		views = append(views, v)
	}
	return views, nil
}

// Get returns one achievement with the user's state.
func (a *AchievementService) Get(ctx context.Context, userID, achievementID string) (AchievementView, error) {
	def, err := a.Definition(achievementID)
	if err != nil {
		return AchievementView{}, err
	}
	views, err := a.List(ctx, userID)
	if err != nil {
		return AchievementView{}, err
	}
	for _, v := range views {
		if v.ID == def.ID {
			return v, nil
		}
	}
	return AchievementView{AchievementDef: def}, nil
}

// IsUnlocked reports whether the user holds the achievement.
func (a *AchievementService) IsUnlocked(ctx context.Context, userID, achievementID string) (bool, error) {
	if _, err := a.Definition(achievementID); err != nil {
		return false, err
	}
	return a.store.IsAchievementUnlocked(ctx, userID, achievementID)
}

// MarkSeen acknowledges an unlocked achievement. Only the seen flag changes.
func (a *AchievementService) MarkSeen(ctx context.Context, userID, achievementID string) error {
	if _, err := a.Definition(achievementID); err != nil {
		return err
	}
	return a.store.MarkAchievementSeen(ctx, userID, achievementID)
}

// Unseen returns the user's unlocked but unacknowledged achievements,
// oldest first.
func (a *AchievementService) Unseen(ctx context.Context, userID string) ([]AchievementView, error) {
	views, err := a.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []AchievementView
	for _, v := range views {
		if v.Unlocked && !v.Seen {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UnlockedAt.Before(*out[j].UnlockedAt) })
	return out, nil
}

// Definition looks up a catalog entry.
func (a *AchievementService) Definition(id string) (domain.AchievementDef, error) {
	def, ok := a.byID[id]
	if !ok {
		return domain.AchievementDef{}, fmt.Errorf("%w: %q", domain.ErrUnknownAchievement, id)
	}
	return def, nil
}

// Definitions returns all achievement definitions (for display).
func (a *AchievementService) Definitions() []domain.AchievementDef {
	return a.definitions
}

// TotalCount returns the total number of defined achievements.
func (a *AchievementService) TotalCount() int {
	return len(a.definitions)
}

func indexAchievements(defs []domain.AchievementDef) map[string]domain.AchievementDef {
	m := make(map[string]domain.AchievementDef, len(defs))
	for _, d := range defs {
		m[d.ID] = d
	}
	return m
}

// ─── Predicates ─────────────────────────────────────────────────────────────
// Every predicate is a threshold on one snapshot field, so a higher
// threshold in a family always implies every lower one.

func streakAtLeast(n int) func(domain.MetricSnapshot) bool {
	return func(s domain.MetricSnapshot) bool { return s.StreakDays >= n }
}

func logsAtLeast(n int) func(domain.MetricSnapshot) bool {
	return func(s domain.MetricSnapshot) bool { return s.DailyLogCount >= n }
}

func messagesAtLeast(n int) func(domain.MetricSnapshot) bool {
	return func(s domain.MetricSnapshot) bool { return s.AIMessageCount >= n }
}

func sessionsAtLeast(n int) func(domain.MetricSnapshot) bool {
	return func(s domain.MetricSnapshot) bool { return s.AudioSessionCount >= n }
}

func challengesAtLeast(n int) func(domain.MetricSnapshot) bool {
	return func(s domain.MetricSnapshot) bool { return s.CompletedChallengeCount >= n }
}

func savedAtLeast(n int64) func(domain.MetricSnapshot) bool {
	return func(s domain.MetricSnapshot) bool { return s.SavingsAmount >= n }
}

// reachedStage compares milestone ordinals, never day counts.
func reachedStage(id string) func(domain.MetricSnapshot) bool {
	rank := StageRank(id)
	return func(s domain.MetricSnapshot) bool { return rank > 0 && s.HealthStageRank >= rank }
}

func rankedWithin(metric domain.LeaderboardMetric, pos int) func(domain.MetricSnapshot) bool {
	return func(s domain.MetricSnapshot) bool {
		var r int
		switch metric {
		case domain.MetricPoints:
			r = s.LeaderboardRanks.Points
		case domain.MetricStreak:
			r = s.LeaderboardRanks.Streak
		case domain.MetricSaved:
			r = s.LeaderboardRanks.Saved
		}
		return r >= 1 && r <= pos
	}
}

// ─── Achievement Catalog ────────────────────────────────────────────────────
// 62 achievements across 8 categories. Table order is notification order
// when several unlock in the same pass.

// AllAchievements returns the full achievement catalog.
func AllAchievements() []domain.AchievementDef {
	defs := []domain.AchievementDef{
		// ── Streak (17) ────────────────────────────────────────────────
		{ID: "streak_1", Title: "First Day", Description: "One full day smoke-free.",
			Category: domain.CatStreak, Icon: "🌱", Points: 10, Predicate: streakAtLeast(1)},
		{ID: "streak_2", Title: "Two in a Row", Description: "Two days smoke-free.",
			Category: domain.CatStreak, Icon: "✌️", Points: 15, Predicate: streakAtLeast(2)},
		{ID: "streak_3", Title: "Hat Trick", Description: "Three days smoke-free. The hardest part is behind you.",
			Category: domain.CatStreak, Icon: "🎩", Points: 20, Predicate: streakAtLeast(3)},
		{ID: "streak_5", Title: "High Five", Description: "Five days smoke-free.",
			Category: domain.CatStreak, Icon: "🖐️", Points: 30, Predicate: streakAtLeast(5)},
		{ID: "streak_7", Title: "Week Warrior", Description: "A full week smoke-free.",
			Category: domain.CatStreak, Icon: "🔥", Points: 50, Predicate: streakAtLeast(7)},
		{ID: "streak_10", Title: "Perfect Ten", Description: "Ten days smoke-free.",
			Category: domain.CatStreak, Icon: "🔟", Points: 60, Predicate: streakAtLeast(10)},
		{ID: "streak_14", Title: "Fortnight Force", Description: "Two weeks smoke-free.",
			Category: domain.CatStreak, Icon: "📅", Points: 80, Predicate: streakAtLeast(14)},
		{ID: "streak_20", Title: "Twenty Strong", Description: "Twenty days smoke-free.",
			Category: domain.CatStreak, Icon: "💪", Points: 100, Predicate: streakAtLeast(20)},
		{ID: "streak_21", Title: "New Habit", Description: "Three weeks smoke-free. A new habit is forming.",
			Category: domain.CatStreak, Icon: "🧠", Points: 110, Predicate: streakAtLeast(21)},
		{ID: "streak_30", Title: "Monthly Milestone", Description: "A whole month smoke-free.",
			Category: domain.CatStreak, Icon: "🗓️", Points: 150, Predicate: streakAtLeast(30)},
		{ID: "streak_45", Title: "Six Weeks", Description: "Forty-five days smoke-free.",
			Category: domain.CatStreak, Icon: "🚀", Points: 200, Predicate: streakAtLeast(45)},
		{ID: "streak_60", Title: "Two Months", Description: "Sixty days smoke-free.",
			Category: domain.CatStreak, Icon: "⛰️", Points: 250, Predicate: streakAtLeast(60)},
		{ID: "streak_90", Title: "Quarter Year", Description: "Ninety days smoke-free.",
			Category: domain.CatStreak, Icon: "🏅", Points: 400, Predicate: streakAtLeast(90)},
		{ID: "streak_100", Title: "Centurion", Description: "One hundred days smoke-free.",
			Category: domain.CatStreak, Icon: "🏛️", Points: 500, Predicate: streakAtLeast(100)},
		{ID: "streak_180", Title: "Half a Year", Description: "Six months smoke-free.",
			Category: domain.CatStreak, Icon: "🌓", Points: 800, Predicate: streakAtLeast(180)},
		{ID: "streak_365", Title: "Year of Freedom", Description: "One full year smoke-free.",
			Category: domain.CatStreak, Icon: "⭐", Points: 2000, Predicate: streakAtLeast(365)},
		{ID: "streak_730", Title: "Two Years Free", Description: "Two years smoke-free.",
			Category: domain.CatStreak, Icon: "🌟", Points: 5000, Predicate: streakAtLeast(730)},

		// ── Logging (5) ────────────────────────────────────────────────
		{ID: "log_1", Title: "Dear Diary", Description: "Logged your first day.",
			Category: domain.CatLogging, Icon: "📝", Points: 10, Predicate: logsAtLeast(1)},
		{ID: "log_7", Title: "Week of Notes", Description: "Logged seven days.",
			Category: domain.CatLogging, Icon: "📒", Points: 30, Predicate: logsAtLeast(7)},
		{ID: "log_30", Title: "Faithful Logger", Description: "Logged thirty days.",
			Category: domain.CatLogging, Icon: "📚", Points: 100, Predicate: logsAtLeast(30)},
		{ID: "log_100", Title: "Chronicler", Description: "Logged one hundred days.",
			Category: domain.CatLogging, Icon: "🗂️", Points: 300, Predicate: logsAtLeast(100)},
		{ID: "log_365", Title: "Year in Review", Description: "Logged three hundred sixty-five days.",
			Category: domain.CatLogging, Icon: "📖", Points: 1000, Predicate: logsAtLeast(365)},

		// ── Coach (5) ──────────────────────────────────────────────────
		{ID: "coach_1", Title: "Hello Coach", Description: "Sent your first message to the coach.",
			Category: domain.CatCoach, Icon: "💬", Points: 10, Predicate: messagesAtLeast(1)},
		{ID: "coach_10", Title: "Conversation", Description: "Sent ten messages to the coach.",
			Category: domain.CatCoach, Icon: "🗨️", Points: 25, Predicate: messagesAtLeast(10)},
		{ID: "coach_50", Title: "Regular", Description: "Sent fifty messages to the coach.",
			Category: domain.CatCoach, Icon: "🤝", Points: 75, Predicate: messagesAtLeast(50)},
		{ID: "coach_100", Title: "Deep Talks", Description: "Sent one hundred messages to the coach.",
			Category: domain.CatCoach, Icon: "🧭", Points: 150, Predicate: messagesAtLeast(100)},
		{ID: "coach_500", Title: "Best Friends", Description: "Sent five hundred messages to the coach.",
			Category: domain.CatCoach, Icon: "🫂", Points: 500, Predicate: messagesAtLeast(500)},

		// ── Audio (6) ──────────────────────────────────────────────────
		{ID: "audio_1", Title: "First Breath", Description: "Played your first audio session.",
			Category: domain.CatAudio, Icon: "🎧", Points: 10, Predicate: sessionsAtLeast(1)},
		{ID: "audio_5", Title: "Tuned In", Description: "Played five audio sessions.",
			Category: domain.CatAudio, Icon: "🎵", Points: 25, Predicate: sessionsAtLeast(5)},
		{ID: "audio_10", Title: "Calm Mind", Description: "Played ten audio sessions.",
			Category: domain.CatAudio, Icon: "🧘", Points: 50, Predicate: sessionsAtLeast(10)},
		{ID: "audio_25", Title: "Inner Peace", Description: "Played twenty-five audio sessions.",
			Category: domain.CatAudio, Icon: "🕊️", Points: 100, Predicate: sessionsAtLeast(25)},
		{ID: "audio_50", Title: "Zen Master", Description: "Played fifty audio sessions.",
			Category: domain.CatAudio, Icon: "☯️", Points: 200, Predicate: sessionsAtLeast(50)},
		{ID: "audio_100", Title: "Sound Sanctuary", Description: "Played one hundred audio sessions.",
			Category: domain.CatAudio, Icon: "🏯", Points: 400, Predicate: sessionsAtLeast(100)},

		// ── Challenges (5) ─────────────────────────────────────────────
		{ID: "challenge_1", Title: "Challenger", Description: "Completed your first challenge.",
			Category: domain.CatChallenges, Icon: "🎯", Points: 20, Predicate: challengesAtLeast(1)},
		{ID: "challenge_5", Title: "Go-Getter", Description: "Completed five challenges.",
			Category: domain.CatChallenges, Icon: "🏹", Points: 50, Predicate: challengesAtLeast(5)},
		{ID: "challenge_10", Title: "Achiever", Description: "Completed ten challenges.",
			Category: domain.CatChallenges, Icon: "🥉", Points: 100, Predicate: challengesAtLeast(10)},
		{ID: "challenge_25", Title: "Unstoppable", Description: "Completed twenty-five challenges.",
			Category: domain.CatChallenges, Icon: "🥈", Points: 250, Predicate: challengesAtLeast(25)},
		{ID: "challenge_50", Title: "Champion", Description: "Completed fifty challenges.",
			Category: domain.CatChallenges, Icon: "🥇", Points: 500, Predicate: challengesAtLeast(50)},

		// ── Savings (7) ────────────────────────────────────────────────
		{ID: "saved_10", Title: "Piggy Bank", Description: "Saved 10 by not smoking.",
			Category: domain.CatSavings, Icon: "🐷", Points: 10, Predicate: savedAtLeast(10)},
		{ID: "saved_50", Title: "Treat Yourself", Description: "Saved 50 by not smoking.",
			Category: domain.CatSavings, Icon: "🎁", Points: 30, Predicate: savedAtLeast(50)},
		{ID: "saved_100", Title: "Triple Digits", Description: "Saved 100 by not smoking.",
			Category: domain.CatSavings, Icon: "💵", Points: 60, Predicate: savedAtLeast(100)},
		{ID: "saved_250", Title: "Weekend Away", Description: "Saved 250 by not smoking.",
			Category: domain.CatSavings, Icon: "🧳", Points: 120, Predicate: savedAtLeast(250)},
		{ID: "saved_500", Title: "Big Saver", Description: "Saved 500 by not smoking.",
			Category: domain.CatSavings, Icon: "💰", Points: 250, Predicate: savedAtLeast(500)},
		{ID: "saved_1000", Title: "Four Figures", Description: "Saved 1000 by not smoking.",
			Category: domain.CatSavings, Icon: "🏦", Points: 500, Predicate: savedAtLeast(1000)},
		{ID: "saved_5000", Title: "Fortune Kept", Description: "Saved 5000 by not smoking.",
			Category: domain.CatSavings, Icon: "👑", Points: 2000, Predicate: savedAtLeast(5000)},
	}

	// ── Health (11) ────────────────────────────────────────────────────
	for _, m := range healthMilestones {
		defs = append(defs, domain.AchievementDef{
			ID: "health_" + m.ID, Title: m.Title, Description: m.Description,
			Category: domain.CatHealth, Icon: "❤️", Points: healthPoints(m.Days),
			Predicate: reachedStage(m.ID),
		})
	}

	// ── Leaderboard (6) ────────────────────────────────────────────────
	return append(defs,
		domain.AchievementDef{ID: "leader_points_top3", Title: "Point Podium", Description: "Reached the top 3 by points.",
			Category: domain.CatLeaderboard, Icon: "🏆", Points: 100, Predicate: rankedWithin(domain.MetricPoints, 3)},
		domain.AchievementDef{ID: "leader_points_top1", Title: "Point Leader", Description: "Reached first place by points.",
			Category: domain.CatLeaderboard, Icon: "👑", Points: 300, Predicate: rankedWithin(domain.MetricPoints, 1)},
		domain.AchievementDef{ID: "leader_streak_top3", Title: "Streak Podium", Description: "Reached the top 3 by streak.",
			Category: domain.CatLeaderboard, Icon: "🏆", Points: 100, Predicate: rankedWithin(domain.MetricStreak, 3)},
		domain.AchievementDef{ID: "leader_streak_top1", Title: "Streak Leader", Description: "Reached first place by streak.",
			Category: domain.CatLeaderboard, Icon: "👑", Points: 300, Predicate: rankedWithin(domain.MetricStreak, 1)},
		domain.AchievementDef{ID: "leader_saved_top3", Title: "Savings Podium", Description: "Reached the top 3 by money saved.",
			Category: domain.CatLeaderboard, Icon: "🏆", Points: 100, Predicate: rankedWithin(domain.MetricSaved, 3)},
		domain.AchievementDef{ID: "leader_saved_top1", Title: "Savings Leader", Description: "Reached first place by money saved.",
			Category: domain.CatLeaderboard, Icon: "👑", Points: 300, Predicate: rankedWithin(domain.MetricSaved, 1)},
	)
}

// healthPoints scales the reward with how far away the milestone is.
func healthPoints(days int) int64 {
	switch {
	case days <= 3:
		return 20
	case days <= 30:
		return 75
	case days <= 365:
		return 300
	default:
		return 1500
	}
}
