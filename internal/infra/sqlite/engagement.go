package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/breathe-app/breathe/internal/domain"
)

// ─── Achievements ───────────────────────────────────────────────────────────

// UnlockAchievement records an achievement as unlocked and credits its
// points, in one transaction. Returns false if already unlocked; in that
// case nothing is written.
func (d *DB) UnlockAchievement(ctx context.Context, u domain.AchievementUnlock, points int64) (bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO achievements (user_id, achievement_id, unlocked_at, seen) VALUES (?, ?, ?, 0)
		 ON CONFLICT(user_id, achievement_id) DO NOTHING`,
		u.UserID, u.AchievementID, unixOrNow(u.UnlockedAt),
	)
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return false, nil // Already unlocked
	}

	if points != 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO profiles (user_id, total_points, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET
				total_points = total_points + excluded.total_points,
				updated_at=excluded.updated_at`,
			u.UserID, points, time.Now().Unix(),
		)
		if err != nil {
			return false, fmt.Errorf("credit points: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// IsAchievementUnlocked checks whether an achievement has been unlocked.
func (d *DB) IsAchievementUnlocked(ctx context.Context, userID, achievementID string) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM achievements WHERE user_id = ? AND achievement_id = ?`,
		userID, achievementID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListUnlockedAchievements returns all of a user's unlocks, newest first.
func (d *DB) ListUnlockedAchievements(ctx context.Context, userID string) ([]domain.AchievementUnlock, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id, achievement_id, unlocked_at, seen FROM achievements
		 WHERE user_id = ? ORDER BY unlocked_at DESC, achievement_id ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var unlocks []domain.AchievementUnlock
	for rows.Next() {
		var a domain.AchievementUnlock
		var unlockedAt int64
		if err := rows.Scan(&a.UserID, &a.AchievementID, &unlockedAt, &a.Seen); err != nil {
			return nil, err
		}
		a.UnlockedAt = time.Unix(unlockedAt, 0)
		unlocks = append(unlocks, a)
	}
	return unlocks, rows.Err()
}

// MarkAchievementSeen flags an unlock as seen. unlocked_at is never touched.
func (d *DB) MarkAchievementSeen(ctx context.Context, userID, achievementID string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE achievements SET seen = 1 WHERE user_id = ? AND achievement_id = ?`,
		userID, achievementID,
	)
	return err
}

// ─── Challenges ─────────────────────────────────────────────────────────────

// CompleteChallenge records a completed challenge. Returns false if it was
// already recorded.
func (d *DB) CompleteChallenge(ctx context.Context, userID, challengeID string, at time.Time) (bool, error) {
	result, err := d.db.ExecContext(ctx,
		`INSERT INTO challenge_completions (user_id, challenge_id, completed_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, challenge_id) DO NOTHING`,
		userID, challengeID, unixOrNow(at),
	)
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// CountCompletedChallenges returns how many challenges the user completed.
func (d *DB) CountCompletedChallenges(ctx context.Context, userID string) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM challenge_completions WHERE user_id = ?`, userID,
	).Scan(&count)
	return count, err
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

// TopN returns the n highest rows for a metric. Ties break by user_id so a
// single read is stable.
func (d *DB) TopN(ctx context.Context, metric domain.LeaderboardMetric, n int) ([]domain.LeaderboardRow, error) {
	col, err := leaderboardColumn(metric)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id, name, avatar, points, streak_days, saved_amount, updated_at
		 FROM leaderboard ORDER BY `+col+` DESC, user_id ASC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LeaderboardRow
	for rows.Next() {
		var r domain.LeaderboardRow
		var updatedAt int64
		if err := rows.Scan(&r.UserID, &r.Name, &r.Avatar, &r.Points, &r.StreakDays, &r.SavedAmount, &updatedAt); err != nil {
			return nil, err
		}
		r.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertLeaderboardRow inserts or replaces a user's leaderboard row.
func (d *DB) UpsertLeaderboardRow(ctx context.Context, r domain.LeaderboardRow) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO leaderboard (user_id, name, avatar, points, streak_days, saved_amount, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			name=excluded.name,
			avatar=excluded.avatar,
			points=excluded.points,
			streak_days=excluded.streak_days,
			saved_amount=excluded.saved_amount,
			updated_at=excluded.updated_at`,
		r.UserID, r.Name, r.Avatar, r.Points, r.StreakDays, r.SavedAmount, unixOrNow(r.UpdatedAt),
	)
	return err
}

func leaderboardColumn(m domain.LeaderboardMetric) (string, error) {
	switch m {
	case domain.MetricPoints:
		return "points", nil
	case domain.MetricStreak:
		return "streak_days", nil
	case domain.MetricSaved:
		return "saved_amount", nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownMetric, m)
}

// ─── Notifications ──────────────────────────────────────────────────────────

// InsertNotification creates a notification record.
func (d *DB) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, type, title, body, achievement_id, created_at, shown)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Body, n.AchievementID, unixOrNow(n.CreatedAt), n.Shown,
	)
	return err
}

// ListPendingNotifications returns a user's unshown notifications, newest first.
func (d *DB) ListPendingNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, type, title, body, achievement_id, created_at, shown
		 FROM notifications WHERE user_id = ? AND shown = 0
		 ORDER BY created_at DESC, id ASC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifs []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var createdAt int64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.AchievementID, &createdAt, &n.Shown); err != nil {
			return nil, err
		}
		n.CreatedAt = time.Unix(createdAt, 0)
		notifs = append(notifs, n)
	}
	return notifs, rows.Err()
}

// MarkNotificationShown marks a notification as shown.
func (d *DB) MarkNotificationShown(ctx context.Context, userID, id string) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE notifications SET shown = 1 WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}
