package booking

import (
	"errors"
	"fmt"
	"strings"

	"ms-booking/internal/models"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidTransition   = errors.New("invalid booking state transition")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrAllocationExhausted = errors.New("ticket reference allocation exhausted")
	ErrDuplicateReference  = errors.New("duplicate ticket reference")
	ErrInfrastructure      = errors.New("infrastructure error")
)

// SeatConflictError rejects a request whose seats are held by other bookings.
type SeatConflictError struct {
	ScheduleID string
	Seats      []string
	Holders    []SeatHolder
	// InFlight is set when the seats are locked by a request that has not committed yet.
	InFlight bool
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("seat conflict on schedule %s: %s", e.ScheduleID, strings.Join(e.Seats, ", "))
}

// Detail is the user-facing explanation naming each blocked seat.
func (e *SeatConflictError) Detail() string {
	if e.InFlight {
		return fmt.Sprintf("Seats %s are currently being booked by another customer. Please choose different seats or try again shortly.",
			strings.Join(e.Seats, ", "))
	}
	parts := make([]string, 0, len(e.Holders))
	for _, h := range e.Holders {
		state := "confirmed"
		if h.Status == models.BookingStatusPending {
			state = "pending payment"
		}
		parts = append(parts, fmt.Sprintf("seat %s is held by booking %s (%s)", h.Seat, h.PNRNumber, state))
	}
	return fmt.Sprintf("Seats %s are no longer available: %s.", strings.Join(e.Seats, ", "), strings.Join(parts, "; "))
}

func AsSeatConflict(err error) (*SeatConflictError, bool) {
	var conflict *SeatConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

// IsBusinessError reports whether err is an expected outcome rather than a system failure.
func IsBusinessError(err error) bool {
	if _, ok := AsSeatConflict(err); ok {
		return true
	}
	for _, target := range []error{ErrValidation, ErrNotFound, ErrForbidden, ErrInvalidTransition, ErrPaymentNotCompleted} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the caller may repeat the whole operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAllocationExhausted) || errors.Is(err, ErrDuplicateReference)
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func transitionError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}
