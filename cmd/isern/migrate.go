package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dport96/ISERN-Graph/internal/database"
)

func newMigrateCmd(global *globalOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "override database.migration_path")

	action := func(use, short string, args cobra.PositionalArgs, fn func(m *database.Migrator, logger zerolog.Logger, args []string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), global, path, func(m *database.Migrator, logger zerolog.Logger) error {
					if err := fn(m, logger, args); err != nil {
						return err
					}
					printVersion(m, logger)
					return nil
				})
			},
		}
	}

	cmd.AddCommand(
		action("up", "Apply all pending migrations", cobra.NoArgs, func(m *database.Migrator, logger zerolog.Logger, _ []string) error {
			logger.Info().Msg("running all pending migrations")
			if err := m.Up(); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			return nil
		}),
		action("down", "Roll back all migrations", cobra.NoArgs, func(m *database.Migrator, logger zerolog.Logger, _ []string) error {
			logger.Warn().Msg("rolling back all migrations")
			if err := m.Down(); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			return nil
		}),
		action("version", "Print the current migration version", cobra.NoArgs, func(*database.Migrator, zerolog.Logger, []string) error {
			return nil
		}),
		action("force <version>", "Force the migration version after a failed migration", cobra.ExactArgs(1), func(m *database.Migrator, logger zerolog.Logger, args []string) error {
			v, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			logger.Warn().Int("version", v).Msg("forcing migration version")
			if err := m.Force(v); err != nil {
				return fmt.Errorf("force version: %w", err)
			}
			return nil
		}),
	)
	return cmd
}

func parseVersion(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid migration version %q", s)
	}
	return v, nil
}

func withMigrator(parent context.Context, global *globalOptions, path string, fn func(*database.Migrator, zerolog.Logger) error) error {
	cfg, logger, err := global.load("migrate")
	if err != nil {
		return err
	}
	migrationDir := cfg.Database.MigrationPath
	if path != "" {
		migrationDir = path
	}

	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, migrationDir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()
	return fn(migrator, logger)
}

// migrateUp applies pending migrations at server startup.
func migrateUp(db *database.DB, path string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// printVersion logs the current migration version.
func printVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current migration version")
}
