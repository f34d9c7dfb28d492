package booking_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	BookingService *booking.Service
	Logger         *logger.Logger
	// WebhookSecret verifies Stripe webhook signatures.
	WebhookSecret string
}

func NewHandler(service *booking.Service, webhookSecret string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{BookingService: service, Logger: log, WebhookSecret: webhookSecret}
}

// RegisterRoutes mounts the booking and payment routes. authenticate guards every route
// except the processor webhook, which is verified by signature instead.
func (h *Handler) RegisterRoutes(r chi.Router, authenticate func(http.Handler) http.Handler) {
	r.Route("/bookings", func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/", h.CreateBooking)
		r.Post("/confirm", h.ConfirmBooking)
		r.Get("/my-bookings", h.ListMyBookings)
		r.With(auth.RequireAdmin(h.Logger)).Get("/all", h.ListAllBookings)
		r.Get("/{bookingId}", h.GetBooking)
		r.Post("/{bookingId}/cancel", h.CancelBooking)
		r.Get("/{bookingId}/ticket", h.GetTicket)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/webhook", h.PaymentWebhook)
		r.With(authenticate).Post("/create-payment-intent", h.CreatePaymentIntent)
	})
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	var req models.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreateBooking: failed to decode request body: %v", err))
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("CreateBooking: user=%s schedule=%s seats=%v", principal.ID, req.ScheduleID, req.SelectedSeats))

	details, err := h.BookingService.CreateBooking(r.Context(), principal, req)
	if err != nil {
		WriteError(w, h.Logger, "CreateBooking", err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Booking created successfully", details))
	h.Logger.Info("API", fmt.Sprintf("CreateBooking: booking %s (%s) created", details.ID, details.PNRNumber))
}

func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	var req models.ConfirmBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	b, err := h.BookingService.ConfirmBooking(r.Context(), principal, req.BookingID, req.PaymentIntentID)
	if err != nil {
		WriteError(w, h.Logger, "ConfirmBooking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking confirmed successfully", b))
}

func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	bookings, err := h.BookingService.ListUserBookings(r.Context(), principal)
	if err != nil {
		WriteError(w, h.Logger, "ListMyBookings", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Bookings retrieved successfully", bookings))
}

func (h *Handler) ListAllBookings(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	bookings, err := h.BookingService.ListAllBookings(r.Context(), principal)
	if err != nil {
		WriteError(w, h.Logger, "ListAllBookings", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Bookings retrieved successfully", bookings))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	bookingID := chi.URLParam(r, "bookingId")

	details, err := h.BookingService.GetBooking(r.Context(), principal, bookingID)
	if err != nil {
		WriteError(w, h.Logger, "GetBooking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking retrieved successfully", details))
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("CancelBooking: bookingId=%s by %s", bookingID, principal.ID))

	b, err := h.BookingService.CancelBooking(r.Context(), principal, bookingID)
	if err != nil {
		WriteError(w, h.Logger, "CancelBooking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking cancelled successfully", b))
}

// GetTicket serves the e-ticket QR code as a PNG image.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	bookingID := chi.URLParam(r, "bookingId")

	png, err := h.BookingService.TicketQR(r.Context(), principal, bookingID)
	if err != nil {
		WriteError(w, h.Logger, "GetTicket", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "ticket-"+bookingID+".png"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetTicket: failed to write image: %v", err))
	}
}
