package booking_api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
	"ms-booking/internal/utils"
)

const maxWebhookBody = int64(65536)

func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	var req models.CreatePaymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	resp, err := h.BookingService.CreatePaymentIntent(r.Context(), principal, req.BookingID)
	if err != nil {
		WriteError(w, h.Logger, "CreatePaymentIntent", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment intent created successfully", resp))
}

// PaymentWebhook applies verified processor notifications. Business outcomes such as
// an already cancelled booking are acknowledged so the processor stops retrying;
// infrastructure failures answer 500 so it delivers again.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook body: %v", err))
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Webhook processing error", "could not read request body"))
		return
	}

	event, err := payment.ParseWebhook(payload, r.Header.Get("Stripe-Signature"), h.WebhookSecret)
	if err != nil {
		if werr, ok := payment.AsWebhookError(err); ok {
			h.Logger.LogSecurity("WEBHOOK_"+werr.Category, werr.InternalError)
			utils.WriteJSON(w, werr.StatusCode, utils.ErrorResponse(werr.PublicError, werr.Category))
			return
		}
		h.Logger.Error("WEBHOOK", err.Error())
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Webhook processing error", "invalid event"))
		return
	}
	h.Logger.Info("WEBHOOK", fmt.Sprintf("Received %s (%s) for booking %s", event.Type, event.ID, event.BookingID))

	ctx := r.Context()
	switch event.Type {
	case payment.EventIntentSucceeded:
		_, err = h.BookingService.HandlePaymentSucceeded(ctx, event.BookingID, event.Intent.ID, event.UserID)
	case payment.EventIntentFailed:
		err = h.BookingService.RecordPaymentFailure(ctx, event.BookingID, event.Intent.ID)
	case payment.EventIntentCanceled:
		err = h.BookingService.HandlePaymentCanceled(ctx, event.BookingID, event.Intent.ID)
	default:
		h.Logger.Debug("WEBHOOK", fmt.Sprintf("Ignoring event type %s", event.Type))
	}

	if err != nil {
		if !booking.IsBusinessError(err) {
			h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to apply %s for booking %s: %v", event.Type, event.BookingID, err))
			utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Webhook processing error", "processing failed"))
			return
		}
		h.Logger.Warn("WEBHOOK", fmt.Sprintf("%s for booking %s not applied: %v", event.Type, event.BookingID, err))
	}

	utils.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
