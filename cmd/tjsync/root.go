package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mschirtzinger/tradejournal/internal/auth"
	"github.com/mschirtzinger/tradejournal/internal/config"
	"github.com/mschirtzinger/tradejournal/internal/docstore"
	"github.com/mschirtzinger/tradejournal/internal/docstore/mongostore"
	"github.com/mschirtzinger/tradejournal/internal/docstore/offline"
	"github.com/mschirtzinger/tradejournal/internal/docstore/sqlite"
	"github.com/mschirtzinger/tradejournal/internal/journal"
	"github.com/mschirtzinger/tradejournal/internal/logging"
)

var (
	configPath string
	ownerFlag  string
	tokenFlag  string

	cfg    config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "tjsync",
	Short: "Trade journal sync tool",
	Long: `tjsync moves trade journal data between this device and the journal store.

The store is a local SQLite file, a remote Turso (libSQL) database or a
MongoDB replica set, selected by store.driver and store.dsn in the config
file or the TJ_STORE_DRIVER / TJ_STORE_DSN environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		l, err := logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "owner id to act as")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "signed session token identifying the owner")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
	rootCmd.AddCommand(migrateCmd, watchCmd, serveCmd, statusCmd, benchCmd)
}

// resolveOwner returns the owner id from --token, --owner or auth.owner_id,
// in that order.
func resolveOwner() (string, error) {
	if tokenFlag != "" {
		if cfg.Auth.JWTSecret == "" {
			return "", fmt.Errorf("--token needs auth.jwt_secret to be configured")
		}
		verifier := &auth.TokenVerifier{
			Secret: []byte(cfg.Auth.JWTSecret),
			Issuer: cfg.Auth.Issuer,
			Leeway: cfg.Auth.Leeway,
		}
		return verifier.OwnerID(tokenFlag)
	}
	if ownerFlag != "" {
		return ownerFlag, nil
	}
	if cfg.Auth.OwnerID != "" {
		return cfg.Auth.OwnerID, nil
	}
	return "", fmt.Errorf("%w: pass --owner or --token", auth.ErrNoOwner)
}

// openStore opens the configured store, wrapped in the offline layer when
// enabled. The caller MUST call Close on the result.
func openStore(ctx context.Context) (docstore.Store, error) {
	var store docstore.Store
	switch cfg.Store.Driver {
	case "mongo":
		s, err := mongostore.Open(ctx, cfg.Store.DSN, &mongostore.Config{
			Database:   cfg.Store.Database,
			Collection: cfg.Store.Collection,
			Timeout:    cfg.Store.Timeout,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		store = s
	default:
		sc := sqlite.DefaultConfig()
		sc.AuthToken = cfg.Store.AuthToken
		sc.Logger = logger
		if sqlite.IsRemote(cfg.Store.DSN) {
			sc.PollInterval = cfg.Store.PollInterval
		}
		s, err := sqlite.OpenWithConfig(cfg.Store.DSN, sc)
		if err != nil {
			return nil, err
		}
		store = s
	}
	if cfg.Offline.Enabled {
		store = offline.New(store, offline.WithLogger(logger))
	}
	return store, nil
}

// openService opens the store and returns a journal service on it.
func openService(ctx context.Context) (*journal.Service, docstore.Store, error) {
	store, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc := journal.New(store,
		journal.WithLogger(logger),
		journal.WithBatchSize(cfg.Migration.BatchSize),
	)
	return svc, store, nil
}
