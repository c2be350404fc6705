package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/spf13/cobra"

	"sprintboard/api/internal/config"
	"sprintboard/api/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		db, _, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		slog.Info("migrations applied", "driver", cfg.DatabaseDriver)
		return nil
	},
}

// openDatabase connects and migrates the configured database.
func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, store.Dialect, error) {
	dialect, err := store.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return nil, "", err
	}
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, "", err
	}
	if err := store.ApplyMigrations(ctx, db, dialect, cfg.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	return db, dialect, nil
}
