package schedule_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking/booking_api"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/schedule"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *schedule.Service
	Logger  *logger.Logger
	// SeatStream, when set, serves GET /schedules/{scheduleId}/seats/stream.
	SeatStream http.HandlerFunc
}

func NewHandler(service *schedule.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes mounts search and schedule details publicly and the bus and schedule
// administration behind authenticate plus the admin role.
func (h *Handler) RegisterRoutes(r chi.Router, authenticate func(http.Handler) http.Handler) {
	admin := chi.Chain(authenticate, auth.RequireAdmin(h.Logger))

	r.Get("/search", h.Search)

	r.Route("/schedules", func(r chi.Router) {
		r.Get("/{scheduleId}", h.GetSchedule)
		if h.SeatStream != nil {
			r.Get("/{scheduleId}/seats/stream", h.SeatStream)
		}

		r.Group(func(r chi.Router) {
			r.Use(admin...)
			r.Get("/", h.ListSchedules)
			r.Post("/", h.CreateSchedule)
			r.Get("/bus/{busId}", h.ListBusSchedules)
			r.Put("/{scheduleId}", h.UpdateSchedule)
			r.Delete("/{scheduleId}", h.DeleteSchedule)
		})
	})

	r.Route("/buses", func(r chi.Router) {
		r.Use(admin...)
		r.Get("/", h.ListBuses)
		r.Post("/", h.CreateBus)
		r.Get("/{busId}", h.GetBus)
		r.Put("/{busId}", h.UpdateBus)
		r.Delete("/{busId}", h.DeleteBus)
		r.Get("/{busId}/schedules", h.ListBusSchedules)
		r.Post("/{busId}/schedules", h.AddBusSchedules)
	})
}

// ---------------- PUBLIC ----------------

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.SearchQuery{Source: q.Get("source"), Destination: q.Get("destination")}

	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		date, err := utils.ParseDate(raw)
		if err != nil {
			utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Validation failed", "date must be YYYY-MM-DD or RFC3339"))
			return
		}
		query.Date = date
	}

	results, err := h.Service.Search(r.Context(), query)
	if err != nil {
		booking_api.WriteError(w, h.Logger, "Search", err)
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("Search: %s -> %s found %d schedules", query.Source, query.Destination, len(results)))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Schedules retrieved successfully", results))
}

// GetSchedule returns the schedule with its bus and currently booked seats.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	details, err := h.Service.GetAvailability(r.Context(), chi.URLParam(r, "scheduleId"))
	if err != nil {
		booking_api.WriteError(w, h.Logger, "GetSchedule", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Schedule retrieved successfully", details))
}

// ---------------- SCHEDULES ----------------

func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.Service.ListSchedules(r.Context())
	if err != nil {
		booking_api.WriteError(w, h.Logger, "ListSchedules", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Schedules retrieved successfully", schedules))
}

func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req models.CreateScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.Service.CreateSchedule(r.Context(), req)
	if err != nil {
		booking_api.WriteError(w, h.Logger, "CreateSchedule", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Schedule created successfully", created))
}

func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.Service.UpdateSchedule(r.Context(), chi.URLParam(r, "scheduleId"), req)
	if err != nil {
		booking_api.WriteError(w, h.Logger, "UpdateSchedule", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Schedule updated successfully", updated))
}

func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scheduleId")
	if err := h.Service.DeleteSchedule(r.Context(), id); err != nil {
		booking_api.WriteError(w, h.Logger, "DeleteSchedule", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("DeleteSchedule: schedule %s deleted", id))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Schedule deleted successfully", nil))
}

func (h *Handler) ListBusSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.Service.ListSchedulesByBus(r.Context(), chi.URLParam(r, "busId"))
	if err != nil {
		booking_api.WriteError(w, h.Logger, "ListBusSchedules", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Schedules retrieved successfully", schedules))
}

func (h *Handler) AddBusSchedules(w http.ResponseWriter, r *http.Request) {
	var req models.BulkScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.Service.AddSchedules(r.Context(), chi.URLParam(r, "busId"), req.Schedules)
	if err != nil {
		booking_api.WriteError(w, h.Logger, "AddBusSchedules", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse(fmt.Sprintf("%d schedules created successfully", len(created)), created))
}

// ---------------- BUSES ----------------

func (h *Handler) ListBuses(w http.ResponseWriter, r *http.Request) {
	buses, err := h.Service.ListBuses(r.Context())
	if err != nil {
		booking_api.WriteError(w, h.Logger, "ListBuses", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Buses retrieved successfully", buses))
}

func (h *Handler) CreateBus(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBusRequest
	if !h.decode(w, r, &req) {
		return
	}
	bus, err := h.Service.CreateBus(r.Context(), req)
	if err != nil {
		booking_api.WriteError(w, h.Logger, "CreateBus", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Bus created successfully", bus))
}

func (h *Handler) GetBus(w http.ResponseWriter, r *http.Request) {
	bus, err := h.Service.GetBus(r.Context(), chi.URLParam(r, "busId"))
	if err != nil {
		booking_api.WriteError(w, h.Logger, "GetBus", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Bus retrieved successfully", bus))
}

func (h *Handler) UpdateBus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateBusRequest
	if !h.decode(w, r, &req) {
		return
	}
	bus, err := h.Service.UpdateBus(r.Context(), chi.URLParam(r, "busId"), req)
	if err != nil {
		booking_api.WriteError(w, h.Logger, "UpdateBus", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Bus updated successfully", bus))
}

func (h *Handler) DeleteBus(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteBus(r.Context(), chi.URLParam(r, "busId")); err != nil {
		booking_api.WriteError(w, h.Logger, "DeleteBus", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Bus deleted successfully", nil))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("%s %s: invalid body: %v", r.Method, r.URL.Path, err))
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return false
	}
	return true
}
