package daemon

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/breathe-app/breathe/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("BREATHE_HOME", "/tmp/breathe-test-home")
	cfg := DefaultConfig()

	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, BackendSQLite)
	}
	if cfg.Store.Dir != "/tmp/breathe-test-home" {
		t.Errorf("Store.Dir = %q, want BREATHE_HOME", cfg.Store.Dir)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.Engagement.RankWindow != 3 {
		t.Errorf("Engagement.RankWindow = %d, want 3", cfg.Engagement.RankWindow)
	}
	if p := cfg.Policy(); p != domain.DefaultNotificationPolicy() {
		t.Errorf("Policy() = %+v, want default policy", p)
	}
	if cfg.Push.RedisURL != "" {
		t.Errorf("Push.RedisURL = %q, push should be off by default", cfg.Push.RedisURL)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("BREATHE_HOME", t.TempDir())
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Errorf("API.Port = %d, want default", cfg.API.Port)
	}
}

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	t.Setenv("BREATHE_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Store.Backend = BackendPostgres
	cfg.Store.PostgresDSN = "postgres://localhost/breathe?sslmode=disable"
	cfg.Engagement.Timezone = "Europe/Paris"
	cfg.Notifications.QuietStart = "23:30"
	cfg.Push.RedisURL = "redis://localhost:6379/0"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got.Store.Backend != BackendPostgres || got.Store.PostgresDSN != cfg.Store.PostgresDSN {
		t.Errorf("Store = %+v", got.Store)
	}
	if got.Engagement.Timezone != "Europe/Paris" {
		t.Errorf("Timezone = %q", got.Engagement.Timezone)
	}
	if got.Notifications.QuietStart != "23:30" {
		t.Errorf("QuietStart = %q", got.Notifications.QuietStart)
	}
	if got.Push.RedisURL != cfg.Push.RedisURL {
		t.Errorf("RedisURL = %q", got.Push.RedisURL)
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[api]\nport = 9000\n"), 0600)

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Engagement.Currency != "USD" {
		t.Errorf("Currency = %q, default should survive", cfg.Engagement.Currency)
	}
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[api\nport = "), 0600)
	if _, err := LoadConfigFile(path); err == nil {
		t.Error("LoadConfigFile() should fail on malformed TOML")
	}
}

func TestConfig_Location(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engagement.Timezone = "Asia/Tokyo"
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Tokyo" {
		t.Errorf("Location() = %v, %v", loc, err)
	}

	cfg.Engagement.Timezone = "Mars/Olympus"
	if _, err := cfg.Location(); err == nil {
		t.Error("Location() should reject unknown timezone")
	}

	cfg.Engagement.Timezone = ""
	if loc, _ := cfg.Location(); loc != time.UTC {
		t.Errorf("empty timezone = %v, want UTC", loc)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"30s", 30 * time.Second},
		{"2m", 2 * time.Minute},
		{"", time.Minute},
		{"soon", time.Minute},
		{"-5s", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDuration(tt.input, time.Minute); got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ─── Daemon wiring ──────────────────────────────────────────────────────────

func TestOpenStore_UnknownBackend(t *testing.T) {
	_, err := OpenStore(context.Background(), StoreConfig{Backend: "mongo"})
	if !errors.Is(err, domain.ErrUnknownBackend) {
		t.Errorf("OpenStore(mongo) error = %v, want ErrUnknownBackend", err)
	}
}

func TestOpenStore_PostgresNeedsDSN(t *testing.T) {
	if _, err := OpenStore(context.Background(), StoreConfig{Backend: BackendPostgres}); err == nil {
		t.Error("OpenStore(postgres) without DSN should fail")
	}
}

func TestNewWithConfig_SQLite(t *testing.T) {
	home := t.TempDir()
	t.Setenv("BREATHE_HOME", home)

	cfg := DefaultConfig()
	cfg.Logging.File = ""
	d, err := NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if d.Push != nil {
		t.Error("Push should be nil without redis_url")
	}
	if err := d.Store.Ping(context.Background()); err != nil {
		t.Errorf("Store.Ping() error: %v", err)
	}
	if d.Engine == nil || d.Server == nil || d.Health == nil {
		t.Fatal("daemon components not wired")
	}
	if _, err := os.Stat(filepath.Join(home, "state.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	d.Close()
	d.Close() // idempotent
}

func TestServe_PortInUseClosesDaemon(t *testing.T) {
	t.Setenv("BREATHE_HOME", t.TempDir())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	defer ln.Close()

	cfg := DefaultConfig()
	cfg.Logging.File = ""
	cfg.API.Port = ln.Addr().(*net.TCPAddr).Port
	d, err := NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Serve() should fail when the port is taken")
		}
	case <-time.After(5 * time.Second):
		d.Close()
		t.Fatal("Serve() did not return")
	}

	if err := d.Store.Ping(context.Background()); err == nil {
		t.Error("store should be closed after Serve() fails")
	}
}

func TestNewWithConfig_BadRedisURL(t *testing.T) {
	t.Setenv("BREATHE_HOME", t.TempDir())
	cfg := DefaultConfig()
	cfg.Logging.File = ""
	cfg.Push.RedisURL = "not-a-url"
	if _, err := NewWithConfig(context.Background(), cfg); err == nil {
		t.Error("NewWithConfig() should fail on a bad redis_url")
	}
}
