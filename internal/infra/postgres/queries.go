package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/breathe-app/breathe/internal/domain"
)

// ─── Daily Logs ─────────────────────────────────────────────────────────────

const logColumns = `user_id, date, cigarettes_smoked, smoke_free, cravings_count, mood_rating, stress_level, notes, updated_at`

// SaveEntry upserts an entry and returns the row it replaced. Saves of
// the same (user, date) are serialized by a transaction-scoped advisory
// lock, which also covers the first save when no row exists to lock.
func (s *Store) SaveEntry(ctx context.Context, e domain.DailyLogEntry) (*domain.DailyLogEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text || '/' || $2::text, 0))`,
		e.UserID, e.Date.String()); err != nil {
		return nil, mapErr(err)
	}

	prev, err := scanLog(tx.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM daily_logs WHERE user_id = $1 AND date = $2 FOR UPDATE`,
		e.UserID, e.Date.String()))
	if errors.Is(err, sql.ErrNoRows) {
		prev, err = nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO daily_logs (`+logColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id, date) DO UPDATE SET
			cigarettes_smoked = EXCLUDED.cigarettes_smoked,
			smoke_free = EXCLUDED.smoke_free,
			cravings_count = EXCLUDED.cravings_count,
			mood_rating = EXCLUDED.mood_rating,
			stress_level = EXCLUDED.stress_level,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at`,
		e.UserID, e.Date.String(), e.CigarettesSmoked, e.SmokeFree, e.CravingsCount,
		e.MoodRating, e.StressLevel, e.Notes, timeOrNow(e.UpdatedAt),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapErr(err)
	}
	return prev, nil
}

// GetEntry returns one entry, or nil if the day was not logged.
func (s *Store) GetEntry(ctx context.Context, userID string, date civil.Date) (*domain.DailyLogEntry, error) {
	e, err := scanLog(s.db.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM daily_logs WHERE user_id = $1 AND date = $2`, userID, date.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, mapErr(err)
}

// ListEntries returns entries in [from, to], oldest first.
func (s *Store) ListEntries(ctx context.Context, userID string, from, to civil.Date) ([]domain.DailyLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM daily_logs
		 WHERE user_id = $1 AND date BETWEEN $2 AND $3 ORDER BY date ASC`,
		userID, from.String(), to.String())
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.DailyLogEntry
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, mapErr(rows.Err())
}

// ListSlipDates returns slip dates in [from, to], newest first. Either
// field marks a slip.
func (s *Store) ListSlipDates(ctx context.Context, userID string, from, to civil.Date) ([]civil.Date, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date FROM daily_logs
		 WHERE user_id = $1 AND date BETWEEN $2 AND $3
		   AND (NOT smoke_free OR cigarettes_smoked > 0)
		 ORDER BY date DESC`,
		userID, from.String(), to.String())
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []civil.Date
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, civil.DateOf(t))
	}
	return out, mapErr(rows.Err())
}

// CountEntries returns how many days the user has logged.
func (s *Store) CountEntries(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_logs WHERE user_id = $1`, userID).Scan(&n)
	return n, mapErr(err)
}

func scanLog(row scanner) (*domain.DailyLogEntry, error) {
	var e domain.DailyLogEntry
	var date time.Time
	err := row.Scan(&e.UserID, &date, &e.CigarettesSmoked, &e.SmokeFree, &e.CravingsCount,
		&e.MoodRating, &e.StressLevel, &e.Notes, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Date = civil.DateOf(date)
	return &e, nil
}

// ─── Profiles ───────────────────────────────────────────────────────────────

// GetProfile retrieves a profile. Returns nil if the user has none.
func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	var p domain.UserProfile
	var quit, target, streakStart, lastSlip sql.NullTime
	var perDay, cost, perPack sql.NullFloat64
	var mode string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, display_name, avatar, timezone, quit_date, target_quit_date, date_mode,
			cigarettes_per_day_before, cost_per_pack, cigarettes_per_pack,
			current_streak_days, streak_start_date, last_slip_date,
			total_points, ai_messages_count, audio_sessions_count
		 FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.DisplayName, &p.Avatar, &p.Timezone, &quit, &target, &mode,
		&perDay, &cost, &perPack,
		&p.CurrentStreakDays, &streakStart, &lastSlip,
		&p.TotalPoints, &p.AIMessagesCount, &p.AudioSessionsCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}

	p.DateMode = domain.DateMode(mode)
	p.CigarettesPerDayBefore = positive(perDay)
	p.CostPerPack = positive(cost)
	p.CigarettesPerPack = positive(perPack)
	p.QuitDate = dateFromNull(quit)
	p.TargetQuitDate = dateFromNull(target)
	p.StreakStartDate = dateFromNull(streakStart)
	p.LastSlipDate = dateFromNull(lastSlip)
	return &p, nil
}

// SaveProfile upserts the user-editable profile fields only.
func (s *Store) SaveProfile(ctx context.Context, p domain.UserProfile) error {
	mode := p.DateMode
	if mode == "" {
		mode = domain.DateModeQuit
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, display_name, avatar, timezone, quit_date, target_quit_date, date_mode,
			cigarettes_per_day_before, cost_per_pack, cigarettes_per_pack, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		 ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			avatar = EXCLUDED.avatar,
			timezone = EXCLUDED.timezone,
			quit_date = EXCLUDED.quit_date,
			target_quit_date = EXCLUDED.target_quit_date,
			date_mode = EXCLUDED.date_mode,
			cigarettes_per_day_before = EXCLUDED.cigarettes_per_day_before,
			cost_per_pack = EXCLUDED.cost_per_pack,
			cigarettes_per_pack = EXCLUDED.cigarettes_per_pack,
			updated_at = now()`,
		p.UserID, p.DisplayName, p.Avatar, p.Timezone,
		nullDate(p.QuitDate), nullDate(p.TargetQuitDate), string(mode),
		nullPositive(p.CigarettesPerDayBefore), nullPositive(p.CostPerPack), nullPositive(p.CigarettesPerPack),
	)
	return mapErr(err)
}

// UpdateStreakCache writes the derived streak fields.
func (s *Store) UpdateStreakCache(ctx context.Context, userID string, st domain.StreakState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, current_streak_days, streak_start_date, last_slip_date, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id) DO UPDATE SET
			current_streak_days = EXCLUDED.current_streak_days,
			streak_start_date = EXCLUDED.streak_start_date,
			last_slip_date = EXCLUDED.last_slip_date,
			updated_at = now()`,
		userID, st.CurrentDays, nullDate(st.StartDate), nullDate(st.LastSlipDate),
	)
	return mapErr(err)
}

// IncrementCounter atomically adds delta to one activity counter.
func (s *Store) IncrementCounter(ctx context.Context, userID string, c domain.Counter, delta int) error {
	var col string
	switch c {
	case domain.CounterAIMessages:
		col = "ai_messages_count"
	case domain.CounterAudioSessions:
		col = "audio_sessions_count"
	default:
		return fmt.Errorf("unknown counter %q", c)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, `+col+`, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET
			`+col+` = profiles.`+col+` + EXCLUDED.`+col+`,
			updated_at = now()`,
		userID, delta,
	)
	return mapErr(err)
}

// ─── Achievements ───────────────────────────────────────────────────────────

// UnlockAchievement creates the unlock record and credits points in one
// transaction. The primary key makes the insert a check-and-set.
func (s *Store) UnlockAchievement(ctx context.Context, u domain.AchievementUnlock, points int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, mapErr(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO achievements (user_id, achievement_id, unlocked_at, seen) VALUES ($1, $2, $3, FALSE)
		 ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		u.UserID, u.AchievementID, timeOrNow(u.UnlockedAt),
	)
	if err != nil {
		return false, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if points != 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO profiles (user_id, total_points, updated_at) VALUES ($1, $2, now())
			 ON CONFLICT (user_id) DO UPDATE SET
				total_points = profiles.total_points + EXCLUDED.total_points,
				updated_at = now()`,
			u.UserID, points,
		)
		if err != nil {
			return false, fmt.Errorf("credit points: %w", mapErr(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return false, mapErr(err)
	}
	return true, nil
}

// IsAchievementUnlocked checks whether an achievement has been unlocked.
func (s *Store) IsAchievementUnlocked(ctx context.Context, userID, achievementID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM achievements WHERE user_id = $1 AND achievement_id = $2)`,
		userID, achievementID,
	).Scan(&ok)
	return ok, mapErr(err)
}

// ListUnlockedAchievements returns all of a user's unlocks, newest first.
func (s *Store) ListUnlockedAchievements(ctx context.Context, userID string) ([]domain.AchievementUnlock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, achievement_id, unlocked_at, seen FROM achievements
		 WHERE user_id = $1 ORDER BY unlocked_at DESC, achievement_id ASC`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.AchievementUnlock
	for rows.Next() {
		var a domain.AchievementUnlock
		if err := rows.Scan(&a.UserID, &a.AchievementID, &a.UnlockedAt, &a.Seen); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, mapErr(rows.Err())
}

// MarkAchievementSeen flags an unlock as seen.
func (s *Store) MarkAchievementSeen(ctx context.Context, userID, achievementID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE achievements SET seen = TRUE WHERE user_id = $1 AND achievement_id = $2`,
		userID, achievementID)
	return mapErr(err)
}

// ─── Challenges ─────────────────────────────────────────────────────────────

// CompleteChallenge records a completed challenge. Returns false if it
// was already recorded.
func (s *Store) CompleteChallenge(ctx context.Context, userID, challengeID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO challenge_completions (user_id, challenge_id, completed_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, challenge_id) DO NOTHING`,
		userID, challengeID, timeOrNow(at))
	if err != nil {
		return false, mapErr(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CountCompletedChallenges returns how many challenges the user completed.
func (s *Store) CountCompletedChallenges(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM challenge_completions WHERE user_id = $1`, userID).Scan(&n)
	return n, mapErr(err)
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

// TopN returns the n highest rows for a metric, ties broken by user_id.
func (s *Store) TopN(ctx context.Context, metric domain.LeaderboardMetric, n int) ([]domain.LeaderboardRow, error) {
	var col string
	switch metric {
	case domain.MetricPoints:
		col = "points"
	case domain.MetricStreak:
		col = "streak_days"
	case domain.MetricSaved:
		col = "saved_amount"
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMetric, metric)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, name, avatar, points, streak_days, saved_amount, updated_at
		 FROM leaderboard ORDER BY `+col+` DESC, user_id ASC LIMIT $1`, n)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.LeaderboardRow
	for rows.Next() {
		var r domain.LeaderboardRow
		if err := rows.Scan(&r.UserID, &r.Name, &r.Avatar, &r.Points, &r.StreakDays, &r.SavedAmount, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, mapErr(rows.Err())
}

// UpsertLeaderboardRow inserts or replaces a user's leaderboard row.
func (s *Store) UpsertLeaderboardRow(ctx context.Context, r domain.LeaderboardRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leaderboard (user_id, name, avatar, points, streak_days, saved_amount, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			avatar = EXCLUDED.avatar,
			points = EXCLUDED.points,
			streak_days = EXCLUDED.streak_days,
			saved_amount = EXCLUDED.saved_amount,
			updated_at = EXCLUDED.updated_at`,
		r.UserID, r.Name, r.Avatar, r.Points, r.StreakDays, r.SavedAmount, timeOrNow(r.UpdatedAt))
	return mapErr(err)
}

// ─── Notifications ──────────────────────────────────────────────────────────

// InsertNotification creates a notification record.
func (s *Store) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, type, title, body, achievement_id, created_at, shown)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Body, n.AchievementID, timeOrNow(n.CreatedAt), n.Shown)
	return mapErr(err)
}

// ListPendingNotifications returns a user's unshown notifications, newest first.
func (s *Store) ListPendingNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, title, body, achievement_id, created_at, shown
		 FROM notifications WHERE user_id = $1 AND NOT shown
		 ORDER BY created_at DESC, id ASC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var typ string
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Body, &n.AchievementID, &n.CreatedAt, &n.Shown); err != nil {
			return nil, err
		}
		n.Type = domain.NotificationType(typ)
		out = append(out, n)
	}
	return out, mapErr(rows.Err())
}

// MarkNotificationShown marks a notification as shown.
func (s *Store) MarkNotificationShown(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET shown = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}
