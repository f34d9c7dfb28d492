package db_test

import (
	"context"
	"errors"
	"testing"

	"ms-booking/internal/booking"
	"ms-booking/internal/booking/db"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func TestWithScheduleLockUsesRowLockOnPostgres(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT s\.id FROM "schedules" AS "s" WHERE \(s\.id = 'sched-1'\) FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sched-1"))
	mock.ExpectCommit()

	called := false
	err = db.New(bunDB).WithScheduleLock(context.Background(), "sched-1", func(ctx context.Context, tx booking.Tx) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithScheduleLockMissingSchedule(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err = db.New(bunDB).WithScheduleLock(context.Background(), "gone", func(ctx context.Context, tx booking.Tx) error {
		t.Fatal("callback must not run without the schedule lock")
		return nil
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, db.IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, db.IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.True(t, db.IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: bookings.pnr_number (2067)")))
	assert.False(t, db.IsUniqueViolation(errors.New("disk I/O error")))
}
