package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ms-booking/internal/booking"
	"ms-booking/internal/logger"

	"github.com/go-redis/redis/v8"
)

const defaultLockTTL = 30 * time.Second

// unlockScript deletes a seat lock only while it still belongs to the caller.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements booking.SeatLocker and booking.HoldTimer on a shared Redis,
// so seat locks and payment holds work across service instances.
type Redis struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Redis{Client: client, TTL: ttl, Logger: log}
}

// globEscaper quotes the pattern characters of a key prefix for SCAN MATCH.
var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// LockedSeats scans the lock keys of a schedule. Locks expire on their own, so the
// answer is a snapshot of requests in flight.
func (r *Redis) LockedSeats(ctx context.Context, scheduleID string) ([]string, error) {
	prefix := booking.SeatLockKey(scheduleID, "")
	seats := []string{}
	iter := r.Client.Scan(ctx, 0, globEscaper.Replace(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		seats = append(seats, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan seat locks of schedule %s: %w", scheduleID, err)
	}
	sort.Strings(seats)
	return seats, nil
}

func (r *Redis) lockSeat(ctx context.Context, scheduleID, seat, owner string) (bool, error) {
	return r.Client.SetNX(ctx, booking.SeatLockKey(scheduleID, seat), owner, r.TTL).Result()
}

func (r *Redis) unlockSeat(ctx context.Context, scheduleID, seat, owner string) error {
	err := unlockScript.Run(ctx, r.Client, []string{booking.SeatLockKey(scheduleID, seat)}, owner).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// LockSeats locks every seat in sorted order or none of them.
func (r *Redis) LockSeats(ctx context.Context, scheduleID string, seats []string, owner string) (bool, []string, error) {
	locked := make([]string, 0, len(seats))
	rollback := func() {
		for _, seat := range locked {
			if err := r.unlockSeat(context.WithoutCancel(ctx), scheduleID, seat, owner); err != nil {
				r.Logger.Warn("REDIS", fmt.Sprintf("Failed to roll back lock on seat %s of schedule %s: %v", seat, scheduleID, err))
			}
		}
	}

	for _, seat := range booking.SortedSeats(seats) {
		ok, err := r.lockSeat(ctx, scheduleID, seat, owner)
		if err != nil {
			rollback()
			return false, nil, fmt.Errorf("lock seat %s: %w", seat, err)
		}
		if !ok {
			rollback()
			r.Logger.Debug("REDIS", fmt.Sprintf("Seat %s of schedule %s is locked by another request", seat, scheduleID))
			return false, []string{seat}, nil
		}
		locked = append(locked, seat)
	}
	return true, nil, nil
}

func (r *Redis) UnlockSeats(ctx context.Context, scheduleID string, seats []string, owner string) error {
	var firstErr error
	for _, seat := range seats {
		if err := r.unlockSeat(ctx, scheduleID, seat, owner); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
