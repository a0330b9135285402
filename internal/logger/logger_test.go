package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNoopBeforeInit(t *testing.T) {
	prev := Logger
	Logger = nil
	t.Cleanup(func() { Logger = prev })

	// Must not panic.
	Debug("debug", "k", 1)
	Info("info")
	Warn("warn")
	Error("error", "err", "boom")
}

func TestNew_WritesKeyvals(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger
	Logger = New(&buf, log.InfoLevel)
	t.Cleanup(func() { Logger = prev })

	Info("achievement unlocked", "user", "u1", "achievement", "streak_7")
	Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "achievement unlocked") || !strings.Contains(out, "streak_7") {
		t.Errorf("log output missing fields: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug message should be filtered at info level")
	}
}

func TestInit_CreatesLogFile(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev })

	file := filepath.Join(t.TempDir(), "logs", "breathe.log")
	if err := Init(Config{Level: "warn", File: file, MaxSizeMB: 1, MaxFiles: 1}); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	Warn("store unreachable", "backend", "sqlite")

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "store unreachable") {
		t.Errorf("log file missing message: %q", data)
	}
}
