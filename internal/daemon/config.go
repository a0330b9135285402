// Package daemon manages the Breathe server lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/breathe-app/breathe/internal/domain"
)

// Store backends.
const (
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

// Config holds all daemon configuration.
type Config struct {
	Store         StoreConfig        `toml:"store"`
	API           APIConfig          `toml:"api"`
	Engagement    EngagementConfig   `toml:"engagement"`
	Notifications NotificationConfig `toml:"notifications"`
	Push          PushConfig         `toml:"push"`
	Logging       LoggingConfig      `toml:"logging"`
	Telemetry     TelemetryConfig    `toml:"telemetry"`
}

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	Backend          string `toml:"backend"`
	Dir              string `toml:"dir"`
	PostgresDSN      string `toml:"postgres_dsn"`
	FirestoreProject string `toml:"firestore_project"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// EngagementConfig tunes the achievement engine.
type EngagementConfig struct {
	Timezone   string `toml:"timezone"`    // fallback for profiles without one
	RankWindow int    `toml:"rank_window"` // leaderboard rows read per metric
	Currency   string `toml:"currency"`    // ISO 4217
	OutboxSize int    `toml:"outbox_size"` // per-user in-memory notification fallback
}

// NotificationConfig controls push delivery. Records are always stored.
type NotificationConfig struct {
	PushEnabled bool   `toml:"push_enabled"`
	QuietStart  string `toml:"quiet_start"`
	QuietEnd    string `toml:"quiet_end"`
}

// PushConfig locates the Redis stream push requests are appended to.
// An empty RedisURL disables push.
type PushConfig struct {
	RedisURL string `toml:"redis_url"`
	Stream   string `toml:"stream"`
	MaxLen   int64  `toml:"max_len"`

	// MaxRetries bounds republish attempts for a failed push; 0 uses the default.
	MaxRetries int `toml:"max_retries"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

// TelemetryConfig controls observability endpoints.
type TelemetryConfig struct {
	Prometheus     bool   `toml:"prometheus"`
	HealthInterval string `toml:"health_interval"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := breatheHome()
	policy := domain.DefaultNotificationPolicy()
	return Config{
		Store: StoreConfig{
			Backend: BackendSQLite,
			Dir:     homeDir,
		},
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        8787,
			CORSOrigins: []string{"*"},
		},
		Engagement: EngagementConfig{
			Timezone:   "UTC",
			RankWindow: 3,
			Currency:   "USD",
			OutboxSize: 50,
		},
		Notifications: NotificationConfig{
			PushEnabled: policy.PushEnabled,
			QuietStart:  policy.QuietStart,
			QuietEnd:    policy.QuietEnd,
		},
		Push: PushConfig{
			Stream: "breathe:push-requests",
			MaxLen: 10000,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      filepath.Join(homeDir, "breathe.log"),
			MaxSizeMB: 50,
			MaxFiles:  5,
		},
		Telemetry: TelemetryConfig{
			Prometheus:     true,
			HealthInterval: "60s",
		},
	}
}

// LoadConfig reads config from ~/.breathe/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile reads config from path, falling back to defaults when
// the file does not exist.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet; use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendSQLite
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = breatheHome()
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.breathe/config.toml.
func SaveConfig(cfg Config) error {
	return SaveConfigFile(ConfigPath(), cfg)
}

// SaveConfigFile writes the config to path.
func SaveConfigFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Policy converts the notification section to the engine's policy.
func (c Config) Policy() domain.NotificationPolicy {
	return domain.NotificationPolicy{
		PushEnabled: c.Notifications.PushEnabled,
		QuietStart:  c.Notifications.QuietStart,
		QuietEnd:    c.Notifications.QuietEnd,
	}
}

// Location loads the fallback timezone. An unknown name is an error so
// a typo is caught at startup.
func (c Config) Location() (*time.Location, error) {
	if c.Engagement.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Engagement.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engagement.timezone: %w", err)
	}
	return loc, nil
}

// ConfigPath returns the config file location.
func ConfigPath() string {
	return filepath.Join(breatheHome(), "config.toml")
}

// breatheHome returns the Breathe data directory.
func breatheHome() string {
	if env := os.Getenv("BREATHE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".breathe")
}

// BreatheHome is exported for use by other packages.
func BreatheHome() string {
	return breatheHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
