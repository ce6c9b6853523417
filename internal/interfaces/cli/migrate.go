package cli

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/infrastructure/migration"
)

// NewMigrateCommand creates the migrate command group. It connects to the database
// named in the server configuration rather than going through the API.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database schema migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migration.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printVersion(cmd, opts, m)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return WrapExitError(ExitCommandError, "invalid --steps", fmt.Errorf("must be positive, got %d", steps))
			}
			return withMigrator(func(m *migration.Migrator) error {
				if err := m.Steps(-steps); err != nil {
					return err
				}
				return printVersion(cmd, opts, m)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migration.Migrator) error {
				return printVersion(cmd, opts, m)
			})
		},
	}

	force := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version and clear the dirty flag without migrating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid version", err)
			}
			return withMigrator(func(m *migration.Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				return printVersion(cmd, opts, m)
			})
		},
	}

	cmd.AddCommand(up, down, version, force)
	return cmd
}

func withMigrator(fn func(m *migration.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	log, err := logger.NewForEnvironment(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize logger", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return WrapExitError(ExitCommandError, "failed to reach database", err)
	}

	m, err := migration.New(db, log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to prepare migrations", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Migrator close", zap.Error(err))
		}
	}()
	if err := fn(m); err != nil {
		return WrapExitError(ExitFailure, "migration failed", err)
	}
	return nil
}

func printVersion(cmd *cobra.Command, opts *RootOptions, m *migration.Migrator) error {
	status, err := m.Status()
	if err != nil {
		return err
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"version": status.Version, "dirty": status.Dirty})
	}
	state := "clean"
	if status.Dirty {
		state = "dirty"
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (%s)\n", status.Version, state)
	return err
}
