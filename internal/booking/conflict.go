package booking

import (
	"context"

	"ms-booking/internal/models"
)

// SeatHolder identifies the active booking that holds a seat.
type SeatHolder struct {
	Seat      string               `json:"seat"`
	BookingID string               `json:"-"`
	PNRNumber string               `json:"pnrNumber"`
	Status    models.BookingStatus `json:"status"`
}

type ConflictResult struct {
	OK               bool
	ConflictingSeats []string
	Holders          []SeatHolder
}

// HeldSeats maps every seat held by an active booking to its holder.
// Bookings that are not active are ignored even if the caller passes them in.
func HeldSeats(bookings []models.Booking) map[string]SeatHolder {
	held := make(map[string]SeatHolder)
	for _, b := range bookings {
		if !b.Status.IsActive() {
			continue
		}
		for _, seat := range b.SelectedSeats {
			if _, taken := held[seat]; taken {
				continue
			}
			held[seat] = SeatHolder{Seat: seat, BookingID: b.ID, PNRNumber: b.PNRNumber, Status: b.Status}
		}
	}
	return held
}

// FindConflicts intersects the requested seats with the seats held by active bookings.
// Conflicts are reported in request order.
func FindConflicts(active []models.Booking, requested []string) ConflictResult {
	held := HeldSeats(active)
	result := ConflictResult{OK: true}
	for _, seat := range requested {
		if holder, taken := held[seat]; taken {
			result.OK = false
			result.ConflictingSeats = append(result.ConflictingSeats, seat)
			result.Holders = append(result.Holders, holder)
		}
	}
	return result
}

// CheckConflict loads the active bookings of a schedule and checks the requested seats against them.
// It must run inside the schedule's critical section to see a consistent snapshot.
func CheckConflict(ctx context.Context, store BookingReader, scheduleID string, requested []string) (ConflictResult, error) {
	active, err := store.ActiveBookingsForSchedule(ctx, scheduleID)
	if err != nil {
		return ConflictResult{}, err
	}
	return FindConflicts(active, requested), nil
}
