package sse

import (
	"context"
	"sync"

	"ms-booking/internal/models"
)

// SeatEventEmitter fans seat status changes out to the clients watching a schedule.
// It implements booking.EventPublisher.
type SeatEventEmitter struct {
	// key: scheduleID, value: client channels
	clients     map[string][]chan models.SeatStatusEvent
	clientMutex sync.RWMutex
}

func NewSeatEventEmitter() *SeatEventEmitter {
	return &SeatEventEmitter{
		clients: make(map[string][]chan models.SeatStatusEvent),
	}
}

// Subscribe adds a client to the schedule's seat events. The channel is closed once ctx is done.
func (e *SeatEventEmitter) Subscribe(ctx context.Context, scheduleID string) <-chan models.SeatStatusEvent {
	clientChan := make(chan models.SeatStatusEvent, 16)

	e.clientMutex.Lock()
	e.clients[scheduleID] = append(e.clients[scheduleID], clientChan)
	e.clientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeClient(scheduleID, clientChan)
	}()

	return clientChan
}

// Emit broadcasts an event to every subscriber of its schedule.
func (e *SeatEventEmitter) Emit(event models.SeatStatusEvent) {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()

	for _, clientChan := range e.clients[event.ScheduleID] {
		// slow clients miss updates instead of blocking the publisher
		select {
		case clientChan <- event:
		default:
		}
	}
}

func (e *SeatEventEmitter) PublishSeatStatus(_ context.Context, event models.SeatStatusEvent) error {
	e.Emit(event)
	return nil
}

func (e *SeatEventEmitter) PublishBookingEvent(context.Context, models.BookingEvent) error {
	return nil
}

func (e *SeatEventEmitter) removeClient(scheduleID string, clientChan chan models.SeatStatusEvent) {
	e.clientMutex.Lock()
	defer e.clientMutex.Unlock()

	clients := e.clients[scheduleID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[scheduleID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.clients[scheduleID]) == 0 {
		delete(e.clients, scheduleID)
	}
}

// ClientCount returns the number of clients watching a schedule.
func (e *SeatEventEmitter) ClientCount(scheduleID string) int {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()
	return len(e.clients[scheduleID])
}
