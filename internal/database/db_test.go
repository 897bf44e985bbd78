package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTxCommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rooms").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.Exec("UPDATE rooms SET occupied = occupied + 1 WHERE id = 1")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = WithTx(context.Background(), db, func(tx *sql.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaDeclaresOccupancyInvariant(t *testing.T) {
	assert.Contains(t, schema, "CHECK (occupied <= capacity)")
	assert.Contains(t, schema, "CHECK ((status = 'on_hold') = (hold_expires_at IS NOT NULL))")
}

func TestDriverConfigPinsSessionToUTC(t *testing.T) {
	cfg := driverConfig("app", "secret", "db", "3306", "hostel")
	assert.Equal(t, time.UTC, cfg.Loc)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "'+00:00'", cfg.Params["time_zone"])

	parsed, err := mysql.ParseDSN(cfg.FormatDSN())
	require.NoError(t, err)
	assert.Equal(t, "'+00:00'", parsed.Params["time_zone"])
}
