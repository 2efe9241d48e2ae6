package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mschirtzinger/tradejournal/internal/config"
)

func TestNew_Stderr(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "debug", Encoding: "json"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Error("debug level not enabled")
	}
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "loud"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Error("debug enabled for unknown level")
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tjsync.log")
	logger, err := New(config.LogConfig{Level: "info", Encoding: "json", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	logger.Info("upload batch committed")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"upload batch committed"`) {
		t.Errorf("log file = %q", data)
	}
}
