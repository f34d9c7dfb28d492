package analytics_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-booking/internal/analytics"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking/booking_api"
	"ms-booking/internal/logger"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, logger *logger.Logger) *Handler {
	return &Handler{
		Service: service,
		Logger:  logger,
	}
}

// RegisterRoutes registers the analytics routes. Only the booking counter is public.
func (h *Handler) RegisterRoutes(r chi.Router, authenticate func(http.Handler) http.Handler) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/bookings/count", h.GetConfirmedBookingsCount)

		r.Group(func(r chi.Router) {
			r.Use(authenticate, auth.RequireAdmin(h.Logger))
			r.Get("/schedules/{scheduleId}", h.GetScheduleAnalytics)
			r.Post("/schedules/batch", h.GetBatchScheduleAnalytics)
			r.Get("/buses/{busId}", h.GetBusAnalytics)
		})
	})
}

// BookingCountResponse is the public counter of confirmed bookings.
type BookingCountResponse struct {
	TotalCount int `json:"total_count"`
}

// GetConfirmedBookingsCount handles GET /analytics/bookings/count
func (h *Handler) GetConfirmedBookingsCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.Service.CountConfirmedBookings(r.Context())
	if err != nil {
		booking_api.WriteError(w, h.Logger, "GetConfirmedBookingsCount", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, BookingCountResponse{TotalCount: count})
}

// GetScheduleAnalytics handles GET /analytics/schedules/{scheduleId}
func (h *Handler) GetScheduleAnalytics(w http.ResponseWriter, r *http.Request) {
	scheduleID := chi.URLParam(r, "scheduleId")
	h.Logger.Info("ANALYTICS", fmt.Sprintf("Getting analytics for schedule: %s", scheduleID))

	result, err := h.Service.GetScheduleAnalytics(r.Context(), scheduleID)
	if err != nil {
		booking_api.WriteError(w, h.Logger, "GetScheduleAnalytics", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

// GetBusAnalytics handles GET /analytics/buses/{busId}
func (h *Handler) GetBusAnalytics(w http.ResponseWriter, r *http.Request) {
	busID := chi.URLParam(r, "busId")
	h.Logger.Info("ANALYTICS", fmt.Sprintf("Getting analytics for bus: %s", busID))

	result, err := h.Service.GetBusAnalytics(r.Context(), busID)
	if err != nil {
		booking_api.WriteError(w, h.Logger, "GetBusAnalytics", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

type batchRequest struct {
	ScheduleIDs []string `json:"schedule_ids"`
}

// GetBatchScheduleAnalytics handles POST /analytics/schedules/batch
func (h *Handler) GetBatchScheduleAnalytics(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("ANALYTICS", fmt.Sprintf("Invalid batch request body: %v", err))
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	if len(req.ScheduleIDs) == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Validation failed", "schedule_ids must not be empty"))
		return
	}

	result, err := h.Service.GetBatchScheduleAnalytics(r.Context(), req.ScheduleIDs)
	if err != nil {
		booking_api.WriteError(w, h.Logger, "GetBatchScheduleAnalytics", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}
