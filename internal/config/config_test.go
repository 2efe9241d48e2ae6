package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != "tradejournal.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Store.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.Store.PollInterval)
	}
	if cfg.Migration.BatchSize != 400 {
		t.Errorf("BatchSize = %d, want 400", cfg.Migration.BatchSize)
	}
	if !cfg.Offline.Enabled {
		t.Error("offline should be enabled by default")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tjsync.yaml")
	content := strings.Join([]string{
		"store:",
		"  driver: mongo",
		"  dsn: mongodb://localhost:27017/?replicaSet=rs0",
		"migration:",
		"  batch_size: 250",
		"log:",
		"  level: debug",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("TJ_LOG_LEVEL", "warn")
	t.Setenv("TJ_AUTH_OWNER_ID", "u1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store.Driver != "mongo" || cfg.Migration.BatchSize != 250 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want env override warn", cfg.Log.Level)
	}
	if cfg.Auth.OwnerID != "u1" {
		t.Errorf("Auth.OwnerID = %q, want u1", cfg.Auth.OwnerID)
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	tests := map[string]func(*Config){
		"unknown driver": func(c *Config) { c.Store.Driver = "postgres" },
		"empty dsn":      func(c *Config) { c.Store.DSN = "" },
		"batch too big":  func(c *Config) { c.Migration.BatchSize = 900 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() succeeded, want error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
