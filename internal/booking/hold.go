package booking

import (
	"context"
	"sync"
	"time"
)

// HoldTimer expires pending bookings that are never paid.
type HoldTimer interface {
	StartHold(ctx context.Context, bookingID string, ttl time.Duration) error
	ClearHold(ctx context.Context, bookingID string) error
}

type nopHoldTimer struct{}

func (nopHoldTimer) StartHold(context.Context, string, time.Duration) error { return nil }
func (nopHoldTimer) ClearHold(context.Context, string) error                { return nil }

// LocalHoldTimer runs hold expiry with in-process timers.
type LocalHoldTimer struct {
	mu       sync.Mutex
	timers   map[string]*time.Timer
	onExpire func(bookingID string)
}

func NewLocalHoldTimer(onExpire func(bookingID string)) *LocalHoldTimer {
	return &LocalHoldTimer{timers: make(map[string]*time.Timer), onExpire: onExpire}
}

func (h *LocalHoldTimer) StartHold(_ context.Context, bookingID string, ttl time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.timers[bookingID]; ok {
		t.Stop()
	}
	h.timers[bookingID] = time.AfterFunc(ttl, func() {
		h.mu.Lock()
		delete(h.timers, bookingID)
		h.mu.Unlock()
		h.onExpire(bookingID)
	})
	return nil
}

func (h *LocalHoldTimer) ClearHold(_ context.Context, bookingID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.timers[bookingID]; ok {
		t.Stop()
		delete(h.timers, bookingID)
	}
	return nil
}

// Pending returns the number of running holds.
func (h *LocalHoldTimer) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.timers)
}
