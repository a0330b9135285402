// Package sqlite provides SQLite-based persistent storage for the achievement engine.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/breathe-app/breathe/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

var _ domain.Store = (*DB)(nil)

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Profiles: user-editable fields plus the cached streak view and counters.
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id                   TEXT PRIMARY KEY,
			display_name              TEXT NOT NULL DEFAULT '',
			avatar                    TEXT NOT NULL DEFAULT '',
			timezone                  TEXT NOT NULL DEFAULT '',
			quit_date                 TEXT,
			target_quit_date          TEXT,
			date_mode                 TEXT NOT NULL DEFAULT 'quit',
			cigarettes_per_day_before REAL,
			cost_per_pack             REAL,
			cigarettes_per_pack       REAL,
			current_streak_days       INTEGER NOT NULL DEFAULT 0,
			streak_start_date         TEXT,
			last_slip_date            TEXT,
			total_points              INTEGER NOT NULL DEFAULT 0,
			ai_messages_count         INTEGER NOT NULL DEFAULT 0,
			audio_sessions_count      INTEGER NOT NULL DEFAULT 0,
			updated_at                INTEGER NOT NULL
		)`,

		// Daily logs, one row per (user, ISO date).
		`CREATE TABLE IF NOT EXISTS daily_logs (
			user_id           TEXT NOT NULL,
			date              TEXT NOT NULL,
			cigarettes_smoked INTEGER NOT NULL DEFAULT 0,
			smoke_free        BOOLEAN NOT NULL DEFAULT 1,
			cravings_count    INTEGER NOT NULL DEFAULT 0,
			mood_rating       INTEGER NOT NULL DEFAULT 0,
			stress_level      INTEGER NOT NULL DEFAULT 0,
			notes             TEXT NOT NULL DEFAULT '',
			updated_at        INTEGER NOT NULL,
			PRIMARY KEY (user_id, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_smoke_free ON daily_logs(user_id, smoke_free, date)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_cigarettes ON daily_logs(user_id, cigarettes_smoked, date)`,

		// Unlocked achievements. The primary key is the exactly-once guarantee.
		`CREATE TABLE IF NOT EXISTS achievements (
			user_id        TEXT NOT NULL,
			achievement_id TEXT NOT NULL,
			unlocked_at    INTEGER NOT NULL,
			seen           BOOLEAN NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, achievement_id)
		)`,

		// Completed challenges
		`CREATE TABLE IF NOT EXISTS challenge_completions (
			user_id      TEXT NOT NULL,
			challenge_id TEXT NOT NULL,
			completed_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, challenge_id)
		)`,

		// Denormalized leaderboard rows
		`CREATE TABLE IF NOT EXISTS leaderboard (
			user_id      TEXT PRIMARY KEY,
			name         TEXT NOT NULL DEFAULT '',
			avatar       TEXT NOT NULL DEFAULT '',
			points       INTEGER NOT NULL DEFAULT 0,
			streak_days  INTEGER NOT NULL DEFAULT 0,
			saved_amount INTEGER NOT NULL DEFAULT 0,
			updated_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_points ON leaderboard(points DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_streak ON leaderboard(streak_days DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_saved ON leaderboard(saved_amount DESC)`,

		// Notification records
		`CREATE TABLE IF NOT EXISTS notifications (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			type           TEXT NOT NULL,
			title          TEXT NOT NULL,
			body           TEXT NOT NULL,
			achievement_id TEXT NOT NULL DEFAULT '',
			created_at     INTEGER NOT NULL,
			shown          BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notif_user ON notifications(user_id, shown, created_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullDate(d *civil.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) (*civil.Date, error) {
	if !s.Valid {
		return nil, nil
	}
	return domain.ParseOptionalDate(s.String)
}

// positive maps legacy NULL or non-positive consumption values to 0.
func positive(f sql.NullFloat64) float64 {
	if !f.Valid || f.Float64 <= 0 {
		return 0
	}
	return f.Float64
}

func nullPositive(f float64) sql.NullFloat64 {
	if f <= 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func unixOrNow(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}
