package booking

import (
	"context"
	"time"

	"ms-booking/internal/models"
)

// BookingReader returns models.ErrRecordNotFound for missing point lookups.
type BookingReader interface {
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	GetBus(ctx context.Context, id string) (*models.Bus, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ActiveBookingsForSchedule(ctx context.Context, scheduleID string) ([]models.Booking, error)
	ReferenceExists(ctx context.Context, ref string) (bool, error)
	ListBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error)
	ListBookings(ctx context.Context) ([]models.Booking, error)
	// PendingBookingsCreatedBefore returns pending bookings older than cutoff, oldest first.
	PendingBookingsCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
}

// BookingWriter returns models.ErrDuplicateKey when an insert violates the reference unique index.
type BookingWriter interface {
	InsertBooking(ctx context.Context, b *models.Booking) error
	// TransitionBooking persists b only if the stored status still equals from.
	TransitionBooking(ctx context.Context, b *models.Booking, from models.BookingStatus) (bool, error)
	SetPaymentIntent(ctx context.Context, bookingID, intentID string) error
	// SetPaymentStatus updates the payment status of a booking that is still pending.
	SetPaymentStatus(ctx context.Context, bookingID string, status models.PaymentStatus) (bool, error)
}

type Tx interface {
	BookingReader
	BookingWriter
}

type Store interface {
	Tx
	// WithScheduleLock runs fn in a transaction that excludes other writers on the same schedule.
	WithScheduleLock(ctx context.Context, scheduleID string, fn func(ctx context.Context, tx Tx) error) error
}
