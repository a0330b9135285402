package sqlite

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/breathe-app/breathe/internal/domain"
)

// ─── Daily Logs ─────────────────────────────────────────────────────────────

const logColumns = `user_id, date, cigarettes_smoked, smoke_free, cravings_count, mood_rating, stress_level, notes, updated_at`

// SaveEntry upserts a daily log entry and returns the row it replaced.
// Read and write share one transaction so the returned previous version
// is exactly what this write overwrote.
func (d *DB) SaveEntry(ctx context.Context, e domain.DailyLogEntry) (*domain.DailyLogEntry, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	prev, err := scanLog(tx.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM daily_logs WHERE user_id = ? AND date = ?`,
		e.UserID, e.Date.String(),
	))
	if err != nil {
		return nil, fmt.Errorf("read previous entry: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO daily_logs (`+logColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, date) DO UPDATE SET
			cigarettes_smoked=excluded.cigarettes_smoked,
			smoke_free=excluded.smoke_free,
			cravings_count=excluded.cravings_count,
			mood_rating=excluded.mood_rating,
			stress_level=excluded.stress_level,
			notes=excluded.notes,
			updated_at=excluded.updated_at`,
		e.UserID, e.Date.String(), e.CigarettesSmoked, e.SmokeFree,
		e.CravingsCount, e.MoodRating, e.StressLevel, e.Notes, unixOrNow(e.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return prev, nil
}

// GetEntry retrieves a single entry. Returns nil if not found.
func (d *DB) GetEntry(ctx context.Context, userID string, date civil.Date) (*domain.DailyLogEntry, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM daily_logs WHERE user_id = ? AND date = ?`,
		userID, date.String(),
	)
	return scanLog(row)
}

// ListEntries returns entries in [from, to] ordered by date ascending.
func (d *DB) ListEntries(ctx context.Context, userID string, from, to civil.Date) ([]domain.DailyLogEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM daily_logs
		 WHERE user_id = ? AND date >= ? AND date <= ?
		 ORDER BY date ASC`,
		userID, from.String(), to.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.DailyLogEntry
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ListSlipDates returns the dates in [from, to] on which the user smoked,
// newest first. A row counts if either field says so.
func (d *DB) ListSlipDates(ctx context.Context, userID string, from, to civil.Date) ([]civil.Date, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT date FROM daily_logs
		 WHERE user_id = ? AND date >= ? AND date <= ?
		   AND (smoke_free = 0 OR cigarettes_smoked > 0)
		 ORDER BY date DESC`,
		userID, from.String(), to.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []civil.Date
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		day, err := civil.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("parse log date %q: %w", s, err)
		}
		dates = append(dates, day)
	}
	return dates, rows.Err()
}

// CountEntries returns how many days the user has logged.
func (d *DB) CountEntries(ctx context.Context, userID string) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM daily_logs WHERE user_id = ?`, userID,
	).Scan(&count)
	return count, err
}

func scanLog(s scanner) (*domain.DailyLogEntry, error) {
	var e domain.DailyLogEntry
	var date string
	var updatedAt int64
	err := s.Scan(&e.UserID, &date, &e.CigarettesSmoked, &e.SmokeFree,
		&e.CravingsCount, &e.MoodRating, &e.StressLevel, &e.Notes, &updatedAt)
	if isNoRows(err) {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, err
	}
	e.Date, err = civil.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("parse log date %q: %w", date, err)
	}
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}

