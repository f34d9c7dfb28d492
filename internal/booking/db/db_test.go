package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-booking/internal/booking"
	"ms-booking/internal/booking/db"
	"ms-booking/internal/models"
	"ms-booking/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*db.DB, *models.Schedule) {
	bunDB := testutil.NewSQLiteDB(t)
	bus := testutil.SeedBus(t, bunDB, 40)
	schedule := testutil.SeedSchedule(t, bunDB, bus.ID, 20, time.Now().Add(72*time.Hour))
	return db.New(bunDB), schedule
}

func TestGetBookingNotFound(t *testing.T) {
	store, _ := setupStore(t)

	b, err := store.GetBooking(context.Background(), "missing")
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, models.ErrRecordNotFound))
}

func TestScheduleAndBusLookups(t *testing.T) {
	store, schedule := setupStore(t)
	ctx := context.Background()

	got, err := store.GetSchedule(ctx, schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.Fare)
	assert.Equal(t, "Colombo", got.Source)

	bus, err := store.GetBus(ctx, schedule.BusID)
	require.NoError(t, err)
	assert.Equal(t, []string{"wifi"}, bus.Amenities)

	_, err = store.GetUser(ctx, "nobody")
	assert.True(t, errors.Is(err, models.ErrRecordNotFound))
}

func TestActiveBookingsExcludeCancelled(t *testing.T) {
	store, schedule := setupStore(t)
	ctx := context.Background()

	testutil.SeedBooking(t, store.Bun, schedule, "u1", "PNRAAAAAAA", models.BookingStatusPending, "A1")
	testutil.SeedBooking(t, store.Bun, schedule, "u2", "PNRBBBBBBB", models.BookingStatusConfirmed, "A2", "A3")
	testutil.SeedBooking(t, store.Bun, schedule, "u3", "PNRCCCCCCC", models.BookingStatusCancelled, "A4")

	active, err := store.ActiveBookingsForSchedule(ctx, schedule.ID)
	require.NoError(t, err)
	require.Len(t, active, 2)

	held := booking.HeldSeats(active)
	assert.Len(t, held, 3)
	assert.NotContains(t, held, "A4")
	assert.Equal(t, "PNRBBBBBBB", held["A3"].PNRNumber)
	assert.Equal(t, models.BookingStatusConfirmed, held["A3"].Status)
}

func TestReferenceExistsAndUniqueIndex(t *testing.T) {
	store, schedule := setupStore(t)
	ctx := context.Background()

	existing := testutil.SeedBooking(t, store.Bun, schedule, "u1", "PNRDUPLICA", models.BookingStatusPending, "B1")

	exists, err := store.ReferenceExists(ctx, "PNRDUPLICA")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ReferenceExists(ctx, "PNRFRESH00")
	require.NoError(t, err)
	assert.False(t, exists)

	dup := *existing
	dup.ID = "another-id"
	dup.SelectedSeats = []string{"B2"}
	err = store.InsertBooking(ctx, &dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDuplicateKey))
}

func TestTransitionBookingIsConditional(t *testing.T) {
	store, schedule := setupStore(t)
	ctx := context.Background()
	b := testutil.SeedBooking(t, store.Bun, schedule, "u1", "PNRTRANSIT", models.BookingStatusPending, "C1")

	now := time.Now().UTC()
	confirmed := *b
	confirmed.Status = models.BookingStatusConfirmed
	confirmed.PaymentStatus = models.PaymentStatusSucceeded
	confirmed.PaymentReference = "pi_123"
	confirmed.PaymentDate = &now

	ok, err := store.TransitionBooking(ctx, &confirmed, models.BookingStatusPending)
	require.NoError(t, err)
	assert.True(t, ok)

	// a second writer that still believes the booking is pending loses
	cancelled := *b
	cancelled.Status = models.BookingStatusCancelled
	ok, err = store.TransitionBooking(ctx, &cancelled, models.BookingStatusPending)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, got.Status)
	assert.Equal(t, "pi_123", got.PaymentReference)
	assert.NotNil(t, got.PaymentDate)
}

func TestPaymentColumns(t *testing.T) {
	store, schedule := setupStore(t)
	ctx := context.Background()
	b := testutil.SeedBooking(t, store.Bun, schedule, "u1", "PNRPAYMENT", models.BookingStatusPending, "D1")

	require.NoError(t, store.SetPaymentIntent(ctx, b.ID, "pi_abc"))
	ok, err := store.SetPaymentStatus(ctx, b.ID, models.PaymentStatusFailed)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_abc", got.PaymentIntentID)
	assert.Equal(t, models.PaymentStatusFailed, got.PaymentStatus)

	confirmed := testutil.SeedBooking(t, store.Bun, schedule, "u1", "PNRCONFIRM", models.BookingStatusConfirmed, "D2")
	ok, err = store.SetPaymentStatus(ctx, confirmed.ID, models.PaymentStatusFailed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListBookingsNewestFirst(t *testing.T) {
	store, schedule := setupStore(t)
	ctx := context.Background()

	first := testutil.SeedBooking(t, store.Bun, schedule, "u1", "PNRFIRST00", models.BookingStatusPending, "E1")
	time.Sleep(5 * time.Millisecond)
	second := testutil.SeedBooking(t, store.Bun, schedule, "u1", "PNRSECOND0", models.BookingStatusPending, "E2")
	testutil.SeedBooking(t, store.Bun, schedule, "u2", "PNROTHER00", models.BookingStatusPending, "E3")

	mine, err := store.ListBookingsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	all, err := store.ListBookings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := store.ListBookingsByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPendingBookingsCreatedBefore(t *testing.T) {
	store, schedule := setupStore(t)
	ctx := context.Background()

	old := testutil.SeedBooking(t, store.Bun, schedule, "u1", "PNROLD0000", models.BookingStatusPending, "S1")
	older := testutil.SeedBooking(t, store.Bun, schedule, "u2", "PNROLDER00", models.BookingStatusPending, "S2")
	testutil.SeedBooking(t, store.Bun, schedule, "u1", "PNRPAID000", models.BookingStatusConfirmed, "S3")
	testutil.SeedBooking(t, store.Bun, schedule, "u1", "PNRNEW0000", models.BookingStatusPending, "S4")

	now := time.Now().UTC()
	for id, at := range map[string]time.Time{old.ID: now.Add(-time.Hour), older.ID: now.Add(-2 * time.Hour)} {
		_, err := store.Bun.NewUpdate().Model((*models.Booking)(nil)).
			Set("created_at = ?", at).
			Where("id = ?", id).
			Exec(ctx)
		require.NoError(t, err)
	}
	_, err := store.Bun.NewUpdate().Model((*models.Booking)(nil)).
		Set("created_at = ?", now.Add(-3*time.Hour)).
		Where("pnr_number = ?", "PNRPAID000").
		Exec(ctx)
	require.NoError(t, err)

	stale, err := store.PendingBookingsCreatedBefore(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, older.ID, stale[0].ID)
	assert.Equal(t, old.ID, stale[1].ID)

	none, err := store.PendingBookingsCreatedBefore(ctx, now.Add(-3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWithScheduleLockRollsBack(t *testing.T) {
	store, schedule := setupStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithScheduleLock(ctx, schedule.ID, func(ctx context.Context, tx booking.Tx) error {
		b := &models.Booking{
			ID:            "rolled-back",
			UserID:        "u1",
			ScheduleID:    schedule.ID,
			BusID:         schedule.BusID,
			SelectedSeats: []string{"F1"},
			Status:        models.BookingStatusPending,
			PNRNumber:     "PNRROLLBAC",
			PaymentStatus: models.PaymentStatusPending,
			CreatedAt:     time.Now().UTC(),
			UpdatedAt:     time.Now().UTC(),
		}
		require.NoError(t, tx.InsertBooking(ctx, b))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetBooking(ctx, "rolled-back")
	assert.True(t, errors.Is(err, models.ErrRecordNotFound))
}
