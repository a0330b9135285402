package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/breathe-app/breathe/internal/infra/metrics"
	"github.com/breathe-app/breathe/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker(t *testing.T) {
	db := newTestDB(t)

	c := NewChecker(db, nil, t.TempDir())
	if len(c.checks) != 2 {
		t.Errorf("checks = %d, want 2 without push", len(c.checks))
	}

	c = NewChecker(db, pingFunc(func(context.Context) error { return nil }), t.TempDir())
	if len(c.checks) != 3 {
		t.Errorf("checks = %d, want 3 with push", len(c.checks))
	}

	c = NewChecker(db, nil, "")
	if len(c.checks) != 1 {
		t.Errorf("checks = %d, want 1 without a data dir", len(c.checks))
	}
}

func TestChecker_RunAllHealthy(t *testing.T) {
	db := newTestDB(t)
	c := NewChecker(db, nil, t.TempDir())
	c.runAll(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("Statuses() = %d, want 2", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true when all checks pass")
	}
	if got := testutil.ToFloat64(metrics.HealthCheckStatus.WithLabelValues("store")); got != 1 {
		t.Errorf("store gauge = %v, want 1", got)
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := NewChecker(newTestDB(t), nil, t.TempDir())
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run (no statuses)")
	}
}

func TestChecker_PushDown(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	c := NewChecker(newTestDB(t), down, t.TempDir())
	c.runAll(context.Background())

	if c.IsHealthy() {
		t.Error("IsHealthy() should be false when push is down")
	}
	for _, s := range c.Statuses() {
		if s.Name == "push" && (s.Healthy || s.Error == "") {
			t.Errorf("push status = %+v, want failure with message", s)
		}
	}
	if got := testutil.ToFloat64(metrics.HealthCheckStatus.WithLabelValues("push")); got != 0 {
		t.Errorf("push gauge = %v, want 0", got)
	}
}

func TestChecker_StoreClosed(t *testing.T) {
	db := newTestDB(t)
	c := NewChecker(db, nil, t.TempDir())
	db.Close()
	c.runAll(context.Background())

	if c.IsHealthy() {
		t.Error("IsHealthy() should be false after the store is closed")
	}
}

func TestChecker_DataDir(t *testing.T) {
	db := newTestDB(t)

	missing := filepath.Join(t.TempDir(), "nonexistent")
	c := NewChecker(db, nil, missing)
	c.runAll(context.Background())
	if !c.IsHealthy() {
		t.Errorf("missing data dir should be recreated, statuses = %+v", c.Statuses())
	}
	if info, err := os.Stat(missing); err != nil || !info.IsDir() {
		t.Errorf("data dir not created: %v", err)
	}

	file := filepath.Join(t.TempDir(), "data")
	os.WriteFile(file, []byte("not a dir"), 0644)
	c = NewChecker(db, nil, file)
	c.runAll(context.Background())
	for _, s := range c.Statuses() {
		if s.Name == "data_dir" && (s.Healthy || !strings.Contains(s.Error, "recovery failed")) {
			t.Errorf("data_dir should fail with a recovery error when path is a file, got %+v", s)
		}
	}
}

func TestChecker_CustomCheck(t *testing.T) {
	recovered := false
	c := &Checker{
		checks: []Check{
			{
				Name:      "always_fail",
				CheckFn:   func(ctx context.Context) error { return os.ErrPermission },
				RecoverFn: func(ctx context.Context) error { recovered = true; return nil },
			},
		},
	}
	c.runAll(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 1 || statuses[0].Healthy {
		t.Fatalf("statuses = %+v, want one failure", statuses)
	}
	if !recovered {
		t.Error("RecoverFn should run after a failure")
	}
}

func TestChecker_RecoveryRechecks(t *testing.T) {
	broken := true
	c := &Checker{
		checks: []Check{
			{
				Name: "flaky",
				CheckFn: func(ctx context.Context) error {
					if broken {
						return errors.New("down")
					}
					return nil
				},
				RecoverFn: func(ctx context.Context) error { broken = false; return nil },
			},
		},
	}
	c.runAll(context.Background())

	if !c.IsHealthy() {
		t.Errorf("check should pass after recovery, statuses = %+v", c.Statuses())
	}
}

func TestChecker_StatusesCopy(t *testing.T) {
	c := NewChecker(newTestDB(t), nil, t.TempDir())
	c.runAll(context.Background())

	s1 := c.Statuses()
	s2 := c.Statuses()
	s1[0].Healthy = false
	if !s2[0].Healthy {
		t.Error("Statuses() should return a copy, not a reference")
	}
}
