package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/MapColonies/jobnik/pkg/core"
)

func TestTranslateError_Nil(t *testing.T) {
	assert.NoError(t, translateError(nil))
}

func TestTranslateError_PostgresConflicts(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		pgErr := &pgconn.PgError{Code: code, Message: "could not serialize access"}
		err := translateError(fmt.Errorf("update: %w", pgErr))

		assert.True(t, errors.Is(err, core.ErrConflict), code)
		assert.ErrorAs(t, err, &pgErr)
	}
}

func TestTranslateError_PostgresOtherPassesThrough(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	err := translateError(pgErr)

	assert.False(t, errors.Is(err, core.ErrConflict))
	assert.Same(t, pgErr, err)
}

func TestTranslateError_SQLiteBusy(t *testing.T) {
	err := translateError(sqlite3.Error{Code: sqlite3.ErrBusy})
	assert.True(t, errors.Is(err, core.ErrConflict))

	err = translateError(sqlite3.Error{Code: sqlite3.ErrConstraint})
	assert.False(t, errors.Is(err, core.ErrConflict))
}

func TestTranslateError_EngineErrorsUnchanged(t *testing.T) {
	notFound := core.NotFound(core.KindJob, "j")
	assert.Same(t, notFound, translateError(notFound))
}
