package users_api

import (
	"fmt"
	"net/http"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking/booking_api"
	"ms-booking/internal/logger"
	"ms-booking/internal/users"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *users.Service
	Logger  *logger.Logger
}

func NewHandler(service *users.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes mounts user administration behind authenticate plus the admin role.
func (h *Handler) RegisterRoutes(r chi.Router, authenticate func(http.Handler) http.Handler) {
	r.Route("/users", func(r chi.Router) {
		r.Use(authenticate, auth.RequireAdmin(h.Logger))
		r.Get("/", h.ListUsers)
		r.Delete("/{userId}", h.DeleteUser)
	})
}

// ListUsers accepts ?role=admin|user; any other value lists everyone.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListUsers(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		booking_api.WriteError(w, h.Logger, "ListUsers", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Users retrieved successfully", list))
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	id := chi.URLParam(r, "userId")
	if err := h.Service.DeleteUser(r.Context(), principal, id); err != nil {
		booking_api.WriteError(w, h.Logger, "DeleteUser", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("DeleteUser: user %s removed", id))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("User removed successfully", nil))
}
