package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/vcwarden/internal/config"
)

// withMigrator loads the config, opens a migrator over the embedded
// migrations of the configured driver and runs fn with it.
func withMigrator(fn func(m *migrate.Migrate) error) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if s := cfg.Current().Store; s.Driver == driverPostgres && s.PostgresDSN == "" {
		return errors.New("store.driver is postgres but VCWARDEN_POSTGRES_DSN is not set")
	}
	m, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

// logVersion reports where the schema ended up after a change.
func logVersion(m *migrate.Migrate, msg string) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		slog.Info(msg, "version", "none")
		return
	}
	slog.Info(msg, "version", v, "dirty", dirty)
}

// ignoreNoChange treats "already there" as success.
func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the state store schema",
		Long:  "Apply, roll back or repair the embedded schema migrations of the configured store (sqlite or postgres).",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				if err := ignoreNoChange(m.Steps(-max(steps, 1))); err != nil {
					return fmt.Errorf("roll back %d step(s): %w", max(steps, 1), err)
				}
				logVersion(m, "schema rolled back")
				return nil
			})
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "how many migrations to roll back")

	var yes bool
	drop := &cobra.Command{
		Use:   "drop",
		Short: "Delete every table in the store, member configs included",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("drop deletes all persisted state; pass --yes to confirm")
			}
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Drop(); err != nil {
					return fmt.Errorf("drop store: %w", err)
				}
				slog.Warn("store dropped")
				return nil
			})
		},
	}
	drop.Flags().BoolVar(&yes, "yes", false, "confirm the drop")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations (run also does this on start)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *migrate.Migrate) error {
					if err := ignoreNoChange(m.Up()); err != nil {
						return fmt.Errorf("apply migrations: %w", err)
					}
					logVersion(m, "schema up to date")
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *migrate.Migrate) error {
					v, dirty, err := m.Version()
					switch {
					case errors.Is(err, migrate.ErrNilVersion):
						fmt.Println("schema: not initialized")
					case err != nil:
						return fmt.Errorf("read version: %w", err)
					case dirty:
						fmt.Printf("schema: v%d (dirty)\n", v)
					default:
						fmt.Printf("schema: v%d\n", v)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Record a version without running migrations (clears the dirty flag)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("version %q: %w", args[0], err)
				}
				return withMigrator(func(m *migrate.Migrate) error {
					if err := m.Force(v); err != nil {
						return fmt.Errorf("force v%d: %w", v, err)
					}
					logVersion(m, "schema version forced")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate up or down to a version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("version %q: %w", args[0], err)
				}
				return withMigrator(func(m *migrate.Migrate) error {
					if err := ignoreNoChange(m.Migrate(uint(v))); err != nil {
						return fmt.Errorf("migrate to v%d: %w", v, err)
					}
					logVersion(m, "schema migrated")
					return nil
				})
			},
		},
		drop,
	)
	return cmd
}
