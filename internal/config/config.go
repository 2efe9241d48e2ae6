// Package config loads tjsync configuration from a YAML file and TJ_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Offline   OfflineConfig   `mapstructure:"offline"`
	Migration MigrationConfig `mapstructure:"migration"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Log       LogConfig       `mapstructure:"log"`
}

type StoreConfig struct {
	// Driver is "sqlite" (local file or libSQL URL) or "mongo".
	Driver       string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	AuthToken    string        `mapstructure:"auth_token"`
	Database     string        `mapstructure:"database"`
	Collection   string        `mapstructure:"collection"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type OfflineConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type MigrationConfig struct {
	BatchSize int    `mapstructure:"batch_size"`
	LocalDir  string `mapstructure:"local_dir"`
}

type AuthConfig struct {
	OwnerID   string        `mapstructure:"owner_id"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	Leeway    time.Duration `mapstructure:"leeway"`
}

type FeedConfig struct {
	Addr         string        `mapstructure:"addr"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	// File, when set, sends logs to a rotated file instead of stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads the configuration. An empty path uses defaults and the
// environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TJ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "tradejournal.db")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.database", "tradejournal")
	v.SetDefault("store.collection", "documents")
	v.SetDefault("store.poll_interval", "2s")
	v.SetDefault("store.timeout", "10s")
	v.SetDefault("offline.enabled", true)
	v.SetDefault("migration.batch_size", 400)
	v.SetDefault("migration.local_dir", ".tradejournal")
	v.SetDefault("auth.owner_id", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "tradejournal")
	v.SetDefault("auth.leeway", "30s")
	v.SetDefault("feed.addr", "127.0.0.1:8787")
	v.SetDefault("feed.write_timeout", "5s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", true)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at open time.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "mongo":
	default:
		return fmt.Errorf("invalid store.driver %q: must be sqlite or mongo", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return errors.New("store.dsn is required")
	}
	if c.Migration.BatchSize < 1 || c.Migration.BatchSize > 500 {
		return fmt.Errorf("invalid migration.batch_size %d: must be between 1 and 500", c.Migration.BatchSize)
	}
	return nil
}
