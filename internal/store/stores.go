package store

import (
	"database/sql"
	"errors"
)

// Stores is the top-level container for the opened persistence backend.
// DB is nil for the in-memory backend.
type Stores struct {
	Driver string
	KV     KV
	DB     *sql.DB
}

// Close releases the KV and the underlying database handle.
func (s *Stores) Close() error {
	var errs []error
	if s.KV != nil {
		errs = append(errs, s.KV.Close())
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}
