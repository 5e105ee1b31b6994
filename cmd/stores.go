package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"

	"github.com/nextlevelbuilder/vcwarden/internal/config"
	"github.com/nextlevelbuilder/vcwarden/internal/store"
	"github.com/nextlevelbuilder/vcwarden/internal/store/pg"
	"github.com/nextlevelbuilder/vcwarden/internal/store/sqlite"
	"github.com/nextlevelbuilder/vcwarden/internal/upgrade"
)

const driverPostgres = "postgres"

// openStores migrates and opens the configured KV backend.
func openStores(cfg *config.Config) (*store.Stores, error) {
	s := cfg.Current().Store
	if s.Driver == driverPostgres {
		if err := pg.Migrate(s.PostgresDSN); err != nil {
			return nil, err
		}
		db, err := pg.OpenDB(s.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := checkSchema(db); err != nil {
			db.Close()
			return nil, err
		}
		slog.Info("store opened", "driver", driverPostgres)
		return &store.Stores{Driver: driverPostgres, KV: pg.NewPGKV(db), DB: db}, nil
	}

	path := cfg.StorePath()
	if err := sqlite.Migrate(path); err != nil {
		return nil, err
	}
	db, err := sqlite.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := checkSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("store opened", "driver", "sqlite", "path", path)
	return &store.Stores{Driver: "sqlite", KV: sqlite.NewKV(db), DB: db}, nil
}

// checkSchema refuses a store left dirty or migrated by a newer binary.
func checkSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := upgrade.Check(ctx, db)
	if err != nil {
		return err
	}
	return st.Err()
}

// newMigrator returns a migrator for the configured backend.
func newMigrator(cfg *config.Config) (*migrate.Migrate, error) {
	s := cfg.Current().Store
	if s.Driver == driverPostgres {
		return pg.NewMigrator(s.PostgresDSN)
	}
	return sqlite.NewMigrator(cfg.StorePath())
}
