// Package testutil builds in-memory databases and fixtures shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-booking/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// NewSQLiteDB opens an in-memory SQLite database with every table created.
// A single connection keeps the in-memory database alive and serializes writers.
func NewSQLiteDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.User)(nil),
		(*models.Bus)(nil),
		(*models.Schedule)(nil),
		(*models.Booking)(nil),
	} {
		_, err := bunDB.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

func SeedBus(t *testing.T, db bun.IDB, totalSeats int) *models.Bus {
	t.Helper()
	now := time.Now().UTC()
	bus := &models.Bus{
		ID:         uuid.NewString(),
		Name:       "Express 1",
		Operator:   "Coastal Lines",
		BusType:    models.BusTypeAC,
		TotalSeats: totalSeats,
		Amenities:  []string{"wifi"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := db.NewInsert().Model(bus).Exec(context.Background())
	require.NoError(t, err)
	return bus
}

func SeedSchedule(t *testing.T, db bun.IDB, busID string, fare float64, departure time.Time) *models.Schedule {
	t.Helper()
	now := time.Now().UTC()
	s := &models.Schedule{
		ID:            uuid.NewString(),
		BusID:         busID,
		Source:        "Colombo",
		Destination:   "Kandy",
		DepartureTime: departure.UTC(),
		Fare:          fare,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := db.NewInsert().Model(s).Exec(context.Background())
	require.NoError(t, err)
	return s
}

func SeedUser(t *testing.T, db bun.IDB, role string) *models.User {
	t.Helper()
	id := uuid.NewString()
	u := &models.User{
		ID:        id,
		Name:      "Test User",
		Email:     id + "@example.com",
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.NewInsert().Model(u).Exec(context.Background())
	require.NoError(t, err)
	return u
}

func SeedBooking(t *testing.T, db bun.IDB, s *models.Schedule, userID, pnr string, status models.BookingStatus, seats ...string) *models.Booking {
	t.Helper()
	now := time.Now().UTC()
	b := &models.Booking{
		ID:            uuid.NewString(),
		UserID:        userID,
		ScheduleID:    s.ID,
		BusID:         s.BusID,
		SelectedSeats: seats,
		TotalFare:     s.Fare * float64(len(seats)),
		Status:        status,
		PNRNumber:     pnr,
		PaymentStatus: models.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if status == models.BookingStatusConfirmed {
		b.PaymentStatus = models.PaymentStatusSucceeded
		b.PaymentReference = "pi_seed_" + pnr
		b.PaymentDate = &now
	}
	_, err := db.NewInsert().Model(b).Exec(context.Background())
	require.NoError(t, err)
	return b
}
