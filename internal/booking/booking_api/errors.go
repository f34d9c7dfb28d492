package booking_api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/utils"
)

// conflictDetails is the body detail of a 409 seat conflict.
type conflictDetails struct {
	ConflictingSeats []string `json:"conflictingSeats"`
	Detail           string   `json:"detail"`
}

// StatusFor maps a service error onto its HTTP status code.
func StatusFor(err error) int {
	if _, ok := booking.AsSeatConflict(err); ok {
		return http.StatusConflict
	}
	switch {
	case errors.Is(err, booking.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrDuplicateReference):
		return http.StatusConflict
	case errors.Is(err, booking.ErrPaymentNotCompleted):
		return http.StatusPaymentRequired
	case errors.Is(err, booking.ErrAllocationExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err with the shared response envelope. Infrastructure failures are
// logged in full and answered with a generic message.
func WriteError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	status := StatusFor(err)

	if conflict, ok := booking.AsSeatConflict(err); ok {
		log.Warn("API", fmt.Sprintf("%s: %v", op, err))
		resp := utils.ErrorResponse("Seat conflict", conflict.Detail())
		resp.Details = conflictDetails{ConflictingSeats: conflict.Seats, Detail: conflict.Detail()}
		utils.WriteJSON(w, status, resp)
		return
	}

	var message string
	switch status {
	case http.StatusInternalServerError:
		log.Error("API", fmt.Sprintf("%s: %v", op, err))
		utils.WriteJSON(w, status, utils.ErrorResponse("Internal server error", "an unexpected error occurred"))
		return
	case http.StatusServiceUnavailable:
		log.Error("API", fmt.Sprintf("%s: %v", op, err))
		w.Header().Set("Retry-After", "1")
		message = "Service temporarily unavailable"
	case http.StatusConflict:
		if errors.Is(err, booking.ErrDuplicateReference) {
			log.Warn("API", fmt.Sprintf("%s: %v", op, err))
			utils.WriteJSON(w, status, utils.ErrorResponse("Conflict", "Could not allocate a ticket number, please try again"))
			return
		}
		message = "Conflict"
	case http.StatusBadRequest:
		message = "Validation failed"
	case http.StatusNotFound:
		message = "Not found"
	case http.StatusForbidden:
		log.LogSecurity("FORBIDDEN", fmt.Sprintf("%s: %v", op, err))
		message = "Forbidden"
	case http.StatusPaymentRequired:
		message = "Payment not completed"
	}
	log.Debug("API", fmt.Sprintf("%s: %v", op, err))
	utils.WriteJSON(w, status, utils.ErrorResponse(message, publicMessage(err)))
}

// publicMessage strips the sentinel prefix so clients only see the contextual part.
func publicMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{
		booking.ErrValidation, booking.ErrNotFound, booking.ErrForbidden,
		booking.ErrInvalidTransition, booking.ErrPaymentNotCompleted, booking.ErrAllocationExhausted,
	} {
		if prefix := sentinel.Error() + ": "; strings.Contains(msg, prefix) {
			return strings.Replace(msg, prefix, "", 1)
		}
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return msg
}
