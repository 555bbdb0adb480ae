package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/newthinker/upbot/internal/config"
)

func TestNew_Development(t *testing.T) {
	log, err := New(true)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	if log == nil {
		t.Fatal("expected non-nil logger")
	}

	// Should not panic
	log.Info("test message")
}

func TestNew_Production(t *testing.T) {
	log, err := New(false)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	if log == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestFromConfig_LevelAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upbot.log")

	log, err := FromConfig(config.LoggingConfig{Level: "warn", File: path})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	log.Info("hidden")
	log.Warn("shown")
	log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(string(data), "shown") || !strings.Contains(string(data), `"service":"upbot"`) {
		t.Errorf("unexpected log output: %s", data)
	}
}

func TestFromConfig_BadLevel(t *testing.T) {
	if _, err := FromConfig(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestMust(t *testing.T) {
	// Should not panic
	log := Must(true)
	if log == nil {
		t.Fatal("expected non-nil logger")
	}
}
