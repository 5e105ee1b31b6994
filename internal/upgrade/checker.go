// Package upgrade checks that a store's schema matches this binary.
package upgrade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// RequiredSchemaVersion is the latest embedded migration version.
const RequiredSchemaVersion uint = 1

var (
	ErrSchemaOutdated = errors.New("store schema is outdated")
	ErrSchemaDirty    = errors.New("store schema is dirty")
	ErrSchemaAhead    = errors.New("store schema is newer than this binary")
)

// Status is the schema version found in a store.
type Status struct {
	Version  uint // 0 when no migration has ever run
	Required uint
	Dirty    bool
}

func (s Status) Compatible() bool {
	return !s.Dirty && s.Version == s.Required
}

func (s Status) NeedsMigration() bool {
	return !s.Dirty && s.Version < s.Required
}

// Err returns nil for a compatible store, otherwise one of the ErrSchema*
// sentinels wrapped with the fix the operator should run.
func (s Status) Err() error {
	switch {
	case s.Dirty:
		return fmt.Errorf("%w at v%d: run `vcwarden migrate force %d` then `vcwarden migrate up`",
			ErrSchemaDirty, s.Version, s.Version-1)
	case s.Compatible():
		return nil
	case s.NeedsMigration():
		return fmt.Errorf("%w (v%d, need v%d): run `vcwarden migrate up`", ErrSchemaOutdated, s.Version, s.Required)
	default:
		return fmt.Errorf("%w (v%d, binary knows v%d): upgrade vcwarden", ErrSchemaAhead, s.Version, s.Required)
	}
}

// Check reads golang-migrate's schema_migrations row. A store without the
// table reports version 0.
func Check(ctx context.Context, db *sql.DB) (Status, error) {
	st := Status{Required: RequiredSchemaVersion}
	err := db.QueryRowContext(ctx, "SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&st.Version, &st.Dirty)
	switch {
	case err == nil, errors.Is(err, sql.ErrNoRows):
		return st, nil
	case isMissingTable(err):
		return st, nil
	default:
		return st, fmt.Errorf("read schema version: %w", err)
	}
}

func isMissingTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01" // undefined_table
	}
	return strings.Contains(err.Error(), "no such table")
}
