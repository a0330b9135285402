// Package health runs periodic dependency checks and exposes the latest
// results for /health.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/breathe-app/breathe/internal/infra/metrics"
	"github.com/breathe-app/breathe/internal/logger"
)

// Pinger is anything with a connectivity probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check defines a single health check with optional recovery action.
// After a successful recovery the check runs once more.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	timeout  time.Duration
}

// NewChecker creates a checker for the store and data directory. push may
// be nil when push delivery is disabled; an empty dataDir skips that check.
// A missing data directory is recreated.
func NewChecker(store Pinger, push Pinger, dataDir string) *Checker {
	c := &Checker{
		interval: 60 * time.Second,
		timeout:  5 * time.Second,
		checks:   []Check{{Name: "store", CheckFn: store.Ping}},
	}
	if dataDir != "" {
		c.checks = append(c.checks, Check{
			Name: "data_dir",
			CheckFn: func(ctx context.Context) error {
				return checkDir(dataDir)
			},
			RecoverFn: func(ctx context.Context) error {
				return os.MkdirAll(dataDir, 0755)
			},
		})
	}
	if push != nil {
		c.checks = append(c.checks, Check{Name: "push", CheckFn: push.Ping})
	}
	return c
}

// WithInterval overrides the check period.
func (c *Checker) WithInterval(d time.Duration) *Checker {
	if d > 0 {
		c.interval = d
	}
	return c
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{Name: check.Name, CheckedAt: time.Now()}
		err := c.run(ctx, check.CheckFn)
		if err != nil {
			logger.Warn("health check failed", "component", "health", "check", check.Name, "err", err)
			if check.RecoverFn != nil {
				err = c.tryRecover(ctx, check, err)
			}
		}
		if err != nil {
			s.Error = err.Error()
		} else {
			s.Healthy = true
		}
		gauge := 0.0
		if s.Healthy {
			gauge = 1
		}
		metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(gauge)
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// tryRecover runs the check's recovery and re-checks. It returns the error
// that should be reported.
func (c *Checker) tryRecover(ctx context.Context, check Check, cause error) error {
	if err := c.run(ctx, check.RecoverFn); err != nil {
		logger.Error("health recovery failed", "component", "health", "check", check.Name, "err", err)
		return fmt.Errorf("%w (recovery failed: %v)", cause, err)
	}
	if err := c.run(ctx, check.CheckFn); err != nil {
		return err
	}
	logger.Info("health check recovered", "component", "health", "check", check.Name)
	return nil
}

func (c *Checker) run(ctx context.Context, fn func(context.Context) error) error {
	timeout := c.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
