package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kanban/api/internal/config"
	"kanban/api/internal/store"
)

var errMemoryMigrations = errors.New("the in-memory store has no schema to migrate")

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), rootOpts.Config, func(ctx context.Context, db *sql.DB) error {
				migrations, err := store.Migrations(rootOpts.Config.MigrationsDir)
				if err != nil {
					return err
				}
				if err := store.ApplyMigrations(ctx, db, migrations); err != nil {
					return fmt.Errorf("apply migrations: %w", err)
				}
				stderrLogger(rootOpts.Config).InfoContext(ctx, "migrations applied")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), rootOpts.Config, func(ctx context.Context, db *sql.DB) error {
				migrations, err := store.Migrations(rootOpts.Config.MigrationsDir)
				if err != nil {
					return err
				}
				if err := store.RollbackMigrations(ctx, db, migrations); err != nil {
					return fmt.Errorf("roll back migrations: %w", err)
				}
				stderrLogger(rootOpts.Config).InfoContext(ctx, "migrations rolled back")
				return nil
			})
		},
	})

	return cmd
}

func withDatabase(ctx context.Context, cfg config.Config, fn func(context.Context, *sql.DB) error) error {
	if cfg.UseMemoryStore() {
		return errMemoryMigrations
	}
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()
	return fn(ctx, db)
}
