package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/MapColonies/jobnik/pkg/core"
)

// PostgreSQL SQLSTATEs that mean "try again".
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// translateError maps driver errors that signal lost races to core.ErrConflict.
// Engine errors and anything else pass through unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var engineErr *core.Error
	if errors.As(err, &engineErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return core.Conflicting(err)
		}
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return core.Conflicting(err)
		}
	}

	return err
}
