// Package postgres provides the PostgreSQL store for multi-instance
// deployments. Schema changes are embedded migrations applied on Open.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"

	"github.com/breathe-app/breathe/internal/domain"
	"github.com/breathe-app/breathe/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a domain.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ domain.Store = (*Store)(nil)

// Open connects to dsn, verifies the connection and applies pending
// migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres: empty connection string")
	}
	if _, err := pq.NewConnector(dsn); err != nil {
		return nil, fmt.Errorf("postgres: invalid connection string: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Configure connection pool parameters to avoid connection exhaustion
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "SSL is not enabled on the server") && !strings.Contains(dsn, "sslmode") {
			return nil, fmt.Errorf("connect postgres: %w (hint: try adding ?sslmode=disable to your connection string)", err)
		}
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// runMigrations applies the embedded migrations.
func runMigrations(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("postgres migrations up to date", "component", "postgres")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("postgres migrations applied", "component", "postgres")
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return mapErr(s.db.PingContext(ctx))
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// mapErr translates privilege and authorization failures into
// domain.ErrPermissionDenied.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 42501 insufficient_privilege; class 28 invalid authorization.
		if pqErr.Code == "42501" || pqErr.Code.Class() == "28" {
			return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, pqErr.Message)
		}
	}
	return err
}

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

func dateFromNull(t sql.NullTime) *civil.Date {
	if !t.Valid {
		return nil
	}
	d := civil.DateOf(t.Time)
	return &d
}

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

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
