package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	appmigrations "github.com/wolfman30/medspa-booking-wizard/migrations"
)

// Migrator applies the embedded audit schema. *migrate.Migrate satisfies it.
type Migrator interface {
	Up() error
	Force(version int) error
	Version() (version uint, dirty bool, err error)
	Close() (source error, database error)
}

// OpenMigrator connects to dsn and prepares the embedded migrations.
func OpenMigrator(ctx context.Context, dsn string) (Migrator, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		_ = dbDriver.Close()
		return nil, fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		_ = dbDriver.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

func newMigrateCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the booking audit schema",
	}
	cmd.AddCommand(newMigrateUpCmd(env))
	cmd.AddCommand(newMigrateForceCmd(env))
	cmd.AddCommand(newMigrateVersionCmd(env))
	return cmd
}

// withMigrator opens a migrator for one command and closes it afterwards.
func withMigrator(cmd *cobra.Command, env *Env, fn func(Migrator) error) error {
	m, err := env.OpenMigrator(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err := errors.Join(srcErr, dbErr); err != nil {
			env.Logger.Warn("close migrator failed", "error", err)
		}
	}()
	return fn(m)
}

func newMigrateUpCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, env, func(m Migrator) error {
				err := m.Up()
				if errors.Is(err, migrate.ErrNoChange) {
					env.Logger.Info("audit schema already current")
				} else if err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				return printVersion(cmd, env, m)
			})
		},
	}
}

func newMigrateForceCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Mark a schema version as applied and clear the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return withMigrator(cmd, env, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return fmt.Errorf("force version: %w", err)
				}
				env.Logger.Warn("audit schema version forced", "version", version)
				return printVersion(cmd, env, m)
			})
		},
	}
}

func newMigrateVersionCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, env, func(m Migrator) error {
				return printVersion(cmd, env, m)
			})
		},
	}
}

func printVersion(cmd *cobra.Command, env *Env, m Migrator) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Fprintln(cmd.OutOrStdout(), "version: none")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version: %d dirty: %t\n", version, dirty)
	if dirty {
		env.Logger.Warn("audit schema is dirty", "version", version)
	}
	return nil
}
