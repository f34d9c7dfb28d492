package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/booking"
	"ms-booking/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// DB implements booking.Store on bun. Bun is either the pool or an open transaction.
type DB struct {
	Bun bun.IDB
}

func New(db *bun.DB) *DB {
	return &DB{Bun: db}
}

// ---------------- REFERENCE DATA ----------------

func (d *DB) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	var s models.Schedule
	err := d.Bun.NewSelect().Model(&s).Where("s.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (d *DB) GetBus(ctx context.Context, id string) (*models.Bus, error) {
	var b models.Bus
	err := d.Bun.NewSelect().Model(&b).Where("bu.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (d *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := d.Bun.NewSelect().Model(&u).Where("u.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// ---------------- BOOKINGS ----------------

func (d *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().Model(&b).Where("b.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

// ActiveBookingsForSchedule returns the pending and confirmed bookings of a schedule.
func (d *DB) ActiveBookingsForSchedule(ctx context.Context, scheduleID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("b.schedule_id = ?", scheduleID).
		Where("b.status IN (?)", bun.In(models.ActiveBookingStatuses)).
		Order("b.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (d *DB) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Where("b.pnr_number = ?", ref).
		Exists(ctx)
}

func (d *DB) ListBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("b.user_id = ?", userID).
		Order("b.created_at DESC").
		Scan(ctx)
	return bookings, err
}

func (d *DB) ListBookings(ctx context.Context) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := d.Bun.NewSelect().
		Model(&bookings).
		Order("b.created_at DESC").
		Scan(ctx)
	return bookings, err
}

func (d *DB) PendingBookingsCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("b.status = ?", models.BookingStatusPending).
		Where("b.created_at < ?", cutoff).
		Order("b.created_at ASC").
		Scan(ctx)
	return bookings, err
}

func (d *DB) InsertBooking(ctx context.Context, b *models.Booking) error {
	_, err := d.Bun.NewInsert().Model(b).Exec(ctx)
	if err != nil {
		return translate(err)
	}
	return nil
}

// TransitionBooking writes the lifecycle columns of b if its stored status is still from.
func (d *DB) TransitionBooking(ctx context.Context, b *models.Booking, from models.BookingStatus) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model(b).
		Column("status", "payment_reference", "payment_status", "payment_date", "cancelled_at", "updated_at").
		Where("id = ?", b.ID).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (d *DB) SetPaymentIntent(ctx context.Context, bookingID, intentID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_intent_id = ?", intentID).
		Set("payment_status = ?", models.PaymentStatusPending).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", bookingID).
		Exec(ctx)
	return err
}

func (d *DB) SetPaymentStatus(ctx context.Context, bookingID string, status models.PaymentStatus) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", bookingID).
		Where("status = ?", models.BookingStatusPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ---------------- TRANSACTIONS ----------------

// WithScheduleLock runs fn in a transaction. On PostgreSQL the schedule row is locked
// FOR UPDATE so concurrent bookings on the same schedule serialize; SQLite serializes
// writers on its own.
func (d *DB) WithScheduleLock(ctx context.Context, scheduleID string, fn func(ctx context.Context, tx booking.Tx) error) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if tx.Dialect().Name() == dialect.PG {
			var s models.Schedule
			err := tx.NewSelect().
				Model(&s).
				ColumnExpr("s.id").
				Where("s.id = ?", scheduleID).
				For("UPDATE").
				Scan(ctx)
			if err != nil {
				return fmt.Errorf("lock schedule %s: %w", scheduleID, translate(err))
			}
		}
		return fn(ctx, &DB{Bun: tx})
	})
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// translate maps driver errors onto the shared store sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", models.ErrRecordNotFound, err)
	}
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: %w", models.ErrDuplicateKey, err)
	}
	return err
}

// IsUniqueViolation recognizes unique index violations from PostgreSQL and SQLite.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
