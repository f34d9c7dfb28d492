package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-booking/internal/logger"

	"github.com/go-chi/chi/v5"
)

// Handler streams seat status events for one schedule over Server-Sent Events.
type Handler struct {
	Emitter   *SeatEventEmitter
	Logger    *logger.Logger
	Heartbeat time.Duration
}

func NewHandler(emitter *SeatEventEmitter, log *logger.Logger) *Handler {
	return &Handler{Emitter: emitter, Logger: log, Heartbeat: 25 * time.Second}
}

func (h *Handler) StreamSeats(w http.ResponseWriter, r *http.Request) {
	scheduleID := chi.URLParam(r, "scheduleId")
	if scheduleID == "" {
		http.Error(w, "Schedule ID is required", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Streams outlive the server write timeout; not every writer supports deadlines.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	setupSSEHeaders(w)
	ctx := r.Context()
	events := h.Emitter.Subscribe(ctx, scheduleID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"scheduleId\":%q}\n\n", scheduleID)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to seat events for schedule: %s", scheduleID))

	heartbeat := time.NewTicker(h.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			jsonData, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize seat event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: seats\ndata: %s\n\n", jsonData)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from seat events for schedule: %s", scheduleID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}
