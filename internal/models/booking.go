package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// ActiveBookingStatuses are the statuses that hold seats on a schedule.
var ActiveBookingStatuses = []BookingStatus{BookingStatusPending, BookingStatusConfirmed}

// IsActive reports whether a booking in this status holds its seats.
func (s BookingStatus) IsActive() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	// PaymentStatusRefunded marks a payment returned because it arrived after its booking was released.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID               string        `bun:"id,pk" json:"id"`
	UserID           string        `bun:"user_id,notnull" json:"userId"`
	ScheduleID       string        `bun:"schedule_id,notnull" json:"scheduleId"`
	BusID            string        `bun:"bus_id,notnull" json:"busId"`
	SelectedSeats    []string      `bun:"selected_seats,notnull" json:"selectedSeats"`
	TotalFare        float64       `bun:"total_fare,notnull" json:"totalFare"`
	Status           BookingStatus `bun:"status,notnull" json:"status"`
	PNRNumber        string        `bun:"pnr_number,notnull,unique" json:"pnrNumber"`
	PaymentIntentID  string        `bun:"payment_intent_id,nullzero" json:"paymentIntentId,omitempty"`
	PaymentReference string        `bun:"payment_reference,nullzero" json:"paymentId,omitempty"`
	PaymentStatus    PaymentStatus `bun:"payment_status,notnull" json:"paymentStatus"`
	PaymentDate      *time.Time    `bun:"payment_date,nullzero" json:"paymentDate,omitempty"`
	CancelledAt      *time.Time    `bun:"cancelled_at,nullzero" json:"cancelledAt,omitempty"`
	CreatedAt        time.Time     `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt        time.Time     `bun:"updated_at,notnull" json:"updatedAt"`
}

type CreateBookingRequest struct {
	ScheduleID    string   `json:"scheduleId"`
	SelectedSeats []string `json:"selectedSeats"`
	// TotalFare is accepted for compatibility with older clients and never used.
	TotalFare *float64 `json:"totalFare,omitempty"`
}

type ConfirmBookingRequest struct {
	BookingID       string `json:"bookingId"`
	PaymentIntentID string `json:"paymentIntentId"`
}

// BookingDetails is a booking enriched with the display data of its owner, schedule and bus.
type BookingDetails struct {
	Booking
	User     *UserSummary `json:"user,omitempty"`
	Schedule *Schedule    `json:"schedule,omitempty"`
	Bus      *Bus         `json:"bus,omitempty"`
}
