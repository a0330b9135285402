package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/breathe-app/breathe/internal/domain"
)

// ─── Profiles ───────────────────────────────────────────────────────────────

// GetProfile retrieves a profile. Returns nil if the user has none.
func (d *DB) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT user_id, display_name, avatar, timezone, quit_date, target_quit_date, date_mode,
			cigarettes_per_day_before, cost_per_pack, cigarettes_per_pack,
			current_streak_days, streak_start_date, last_slip_date,
			total_points, ai_messages_count, audio_sessions_count
		 FROM profiles WHERE user_id = ?`, userID,
	)

	var p domain.UserProfile
	var quit, target, streakStart, lastSlip sql.NullString
	var perDay, cost, perPack sql.NullFloat64
	var mode string
	err := row.Scan(&p.UserID, &p.DisplayName, &p.Avatar, &p.Timezone, &quit, &target, &mode,
		&perDay, &cost, &perPack,
		&p.CurrentStreakDays, &streakStart, &lastSlip,
		&p.TotalPoints, &p.AIMessagesCount, &p.AudioSessionsCount)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.DateMode = domain.DateMode(mode)
	p.CigarettesPerDayBefore = positive(perDay)
	p.CostPerPack = positive(cost)
	p.CigarettesPerPack = positive(perPack)

	for _, f := range []struct {
		src sql.NullString
		dst **civil.Date
	}{
		{quit, &p.QuitDate},
		{target, &p.TargetQuitDate},
		{streakStart, &p.StreakStartDate},
		{lastSlip, &p.LastSlipDate},
	} {
		v, err := parseNullDate(f.src)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", userID, err)
		}
		*f.dst = v
	}
	return &p, nil
}

// SaveProfile upserts the user-editable profile fields. Cached streak
// fields, points and counters are left untouched.
func (d *DB) SaveProfile(ctx context.Context, p domain.UserProfile) error {
	mode := p.DateMode
	if mode == "" {
		mode = domain.DateModeQuit
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, display_name, avatar, timezone, quit_date, target_quit_date, date_mode,
			cigarettes_per_day_before, cost_per_pack, cigarettes_per_pack, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			display_name=excluded.display_name,
			avatar=excluded.avatar,
			timezone=excluded.timezone,
			quit_date=excluded.quit_date,
			target_quit_date=excluded.target_quit_date,
			date_mode=excluded.date_mode,
			cigarettes_per_day_before=excluded.cigarettes_per_day_before,
			cost_per_pack=excluded.cost_per_pack,
			cigarettes_per_pack=excluded.cigarettes_per_pack,
			updated_at=excluded.updated_at`,
		p.UserID, p.DisplayName, p.Avatar, p.Timezone,
		nullDate(p.QuitDate), nullDate(p.TargetQuitDate), string(mode),
		nullPositive(p.CigarettesPerDayBefore), nullPositive(p.CostPerPack), nullPositive(p.CigarettesPerPack),
		time.Now().Unix(),
	)
	return err
}

// UpdateStreakCache writes the derived streak fields.
func (d *DB) UpdateStreakCache(ctx context.Context, userID string, s domain.StreakState) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, current_streak_days, streak_start_date, last_slip_date, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			current_streak_days=excluded.current_streak_days,
			streak_start_date=excluded.streak_start_date,
			last_slip_date=excluded.last_slip_date,
			updated_at=excluded.updated_at`,
		userID, s.CurrentDays, nullDate(s.StartDate), nullDate(s.LastSlipDate), time.Now().Unix(),
	)
	return err
}

// IncrementCounter atomically adds delta to one activity counter.
func (d *DB) IncrementCounter(ctx context.Context, userID string, c domain.Counter, delta int) error {
	col, err := counterColumn(c)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, `+col+`, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			`+col+` = `+col+` + excluded.`+col+`,
			updated_at=excluded.updated_at`,
		userID, delta, time.Now().Unix(),
	)
	return err
}

func counterColumn(c domain.Counter) (string, error) {
	switch c {
	case domain.CounterAIMessages:
		return "ai_messages_count", nil
	case domain.CounterAudioSessions:
		return "audio_sessions_count", nil
	}
	return "", fmt.Errorf("unknown counter %q", c)
}
