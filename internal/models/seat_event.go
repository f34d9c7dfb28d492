package models

import (
	"time"
)

type SeatStatus string

const (
	SeatStatusHeld      SeatStatus = "held"
	SeatStatusBooked    SeatStatus = "booked"
	SeatStatusAvailable SeatStatus = "available"
)

// SeatStatusEvent announces a change of state for a group of seats on one schedule.
type SeatStatusEvent struct {
	ScheduleID string     `json:"scheduleId"`
	Seats      []string   `json:"seats"`
	Status     SeatStatus `json:"status"`
	BookingID  string     `json:"bookingId"`
	OccurredAt time.Time  `json:"occurredAt"`
}

func NewSeatStatusEvent(b Booking, status SeatStatus) SeatStatusEvent {
	seats := make([]string, len(b.SelectedSeats))
	copy(seats, b.SelectedSeats)
	return SeatStatusEvent{
		ScheduleID: b.ScheduleID,
		Seats:      seats,
		Status:     status,
		BookingID:  b.ID,
		OccurredAt: time.Now().UTC(),
	}
}

type BookingEventType string

const (
	BookingCreated   BookingEventType = "booking.created"
	BookingConfirmed BookingEventType = "booking.confirmed"
	BookingCancelled BookingEventType = "booking.cancelled"
)

// BookingEvent is the payload published for every booking state change.
type BookingEvent struct {
	Type          BookingEventType `json:"type"`
	BookingID     string           `json:"bookingId"`
	PNRNumber     string           `json:"pnrNumber"`
	UserID        string           `json:"userId"`
	ScheduleID    string           `json:"scheduleId"`
	Seats         []string         `json:"seats"`
	TotalFare     float64          `json:"totalFare"`
	Status        BookingStatus    `json:"status"`
	PaymentStatus PaymentStatus    `json:"paymentStatus"`
	OccurredAt    time.Time        `json:"occurredAt"`
}

func NewBookingEvent(t BookingEventType, b Booking) BookingEvent {
	return BookingEvent{
		Type:          t,
		BookingID:     b.ID,
		PNRNumber:     b.PNRNumber,
		UserID:        b.UserID,
		ScheduleID:    b.ScheduleID,
		Seats:         b.SelectedSeats,
		TotalFare:     b.TotalFare,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		OccurredAt:    time.Now().UTC(),
	}
}
