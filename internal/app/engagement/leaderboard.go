package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/breathe-app/breathe/internal/domain"
	"github.com/breathe-app/breathe/internal/logger"
)

// topRanks is the number of leaderboard positions that count as ranked.
const topRanks = 3

// Ranker reports a user's top-3 position per leaderboard metric.
// Each call is one bounded TopN read; the full population is never scanned.
type Ranker struct {
	board  domain.LeaderboardStore
	window int
}

// NewRanker creates a ranker reading window rows per metric.
// A window below 3 is raised to 3.
func NewRanker(board domain.LeaderboardStore, window int) *Ranker {
	return &Ranker{board: board, window: max(window, topRanks)}
}

// Rank returns the user's 1-based position among the top 3 for metric,
// or 0 when the user is not among them.
func (r *Ranker) Rank(ctx context.Context, metric domain.LeaderboardMetric, userID string) (int, error) {
	rows, err := r.board.TopN(ctx, metric, r.window)
	if err != nil {
		return 0, fmt.Errorf("top %d by %s: %w", r.window, metric, err)
	}
	for i, row := range rows {
		if i >= topRanks {
			break
		}
		if row.UserID == userID {
			return i + 1, nil
		}
	}
	return 0, nil
}

// RankAll ranks the user on every metric. Read failures degrade that
// metric to unranked; only permission errors are returned.
func (r *Ranker) RankAll(ctx context.Context, userID string) (domain.LeaderboardRanks, error) {
	var ranks domain.LeaderboardRanks
	for _, m := range domain.LeaderboardMetrics() {
		pos, err := r.Rank(ctx, m, userID)
		if err != nil {
			if errors.Is(err, domain.ErrPermissionDenied) {
				return domain.LeaderboardRanks{}, err
			}
			logger.Warn("leaderboard rank unavailable", "component", "ranker", "user", userID, "metric", m, "err", err)
			continue
		}
		switch m {
		case domain.MetricPoints:
			ranks.Points = pos
		case domain.MetricStreak:
			ranks.Streak = pos
		case domain.MetricSaved:
			ranks.Saved = pos
		}
	}
	return ranks, nil
}

// Top returns the public leaderboard for a metric.
func (r *Ranker) Top(ctx context.Context, metric domain.LeaderboardMetric, limit int) ([]domain.LeaderboardRow, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.board.TopN(ctx, metric, min(limit, 100))
}

// LeaderboardPublisher writes the denormalized leaderboard row for a user.
// It is the only writer of leaderboard rows; the ranker only reads them.
type LeaderboardPublisher struct {
	board domain.LeaderboardStore
	now   func() time.Time
}

// NewLeaderboardPublisher creates a leaderboard publisher.
func NewLeaderboardPublisher(board domain.LeaderboardStore) *LeaderboardPublisher {
	return &LeaderboardPublisher{board: board, now: time.Now}
}

// Publish refreshes the user's row from their profile and latest snapshot.
func (p *LeaderboardPublisher) Publish(ctx context.Context, profile domain.UserProfile, snap domain.MetricSnapshot) error {
	row := domain.LeaderboardRow{
		UserID:      snap.UserID,
		Name:        profile.DisplayName,
		Avatar:      profile.Avatar,
		Points:      profile.TotalPoints,
		StreakDays:  snap.StreakDays,
		SavedAmount: snap.SavingsAmount,
		UpdatedAt:   p.now(),
	}
	if err := p.board.UpsertLeaderboardRow(ctx, row); err != nil {
		return fmt.Errorf("publish leaderboard row: %w", err)
	}
	return nil
}
