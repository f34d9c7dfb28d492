package booking

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// SeatLocker grants short-lived exclusive ownership of seats on a schedule.
// LockSeats is all-or-nothing: on failure nothing stays locked and the busy seats are returned.
type SeatLocker interface {
	LockSeats(ctx context.Context, scheduleID string, seats []string, owner string) (bool, []string, error)
	UnlockSeats(ctx context.Context, scheduleID string, seats []string, owner string) error
}

// SeatLockInspector lists the seats of a schedule locked by requests that have not committed yet.
type SeatLockInspector interface {
	LockedSeats(ctx context.Context, scheduleID string) ([]string, error)
}

func SeatLockKey(scheduleID, seat string) string {
	return "seat_lock:" + scheduleID + ":" + seat
}

// SortedSeats returns a sorted copy so every locker acquires keys in the same order.
func SortedSeats(seats []string) []string {
	out := make([]string, len(seats))
	copy(out, seats)
	sort.Strings(out)
	return out
}

// LocalSeatLocker is the single-instance SeatLocker.
type LocalSeatLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewLocalSeatLocker() *LocalSeatLocker {
	return &LocalSeatLocker{held: make(map[string]string)}
}

func (l *LocalSeatLocker) LockSeats(_ context.Context, scheduleID string, seats []string, owner string) (bool, []string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var busy []string
	for _, seat := range SortedSeats(seats) {
		if holder, ok := l.held[SeatLockKey(scheduleID, seat)]; ok && holder != owner {
			busy = append(busy, seat)
		}
	}
	if len(busy) > 0 {
		return false, busy, nil
	}
	for _, seat := range seats {
		l.held[SeatLockKey(scheduleID, seat)] = owner
	}
	return true, nil, nil
}

func (l *LocalSeatLocker) UnlockSeats(_ context.Context, scheduleID string, seats []string, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, seat := range seats {
		key := SeatLockKey(scheduleID, seat)
		if l.held[key] == owner {
			delete(l.held, key)
		}
	}
	return nil
}

func (l *LocalSeatLocker) LockedSeats(_ context.Context, scheduleID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prefix := SeatLockKey(scheduleID, "")
	seats := []string{}
	for key := range l.held {
		if strings.HasPrefix(key, prefix) {
			seats = append(seats, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(seats)
	return seats, nil
}

// keyedMutex serializes work per key, e.g. payment intent creation per booking.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
