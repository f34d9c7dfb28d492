package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const holdKeyPrefix = "booking_hold:"

func HoldKey(bookingID string) string {
	return holdKeyPrefix + bookingID
}

func (r *Redis) StartHold(ctx context.Context, bookingID string, ttl time.Duration) error {
	return r.Client.Set(ctx, HoldKey(bookingID), time.Now().UTC().Add(ttl).Format(time.RFC3339), ttl).Err()
}

func (r *Redis) ClearHold(ctx context.Context, bookingID string) error {
	return r.Client.Del(ctx, HoldKey(bookingID)).Err()
}

// WatchHoldExpiry calls onExpire for every payment hold Redis expires, until ctx is done.
// It enables expired-key notifications on the server, which needs CONFIG permission.
func (r *Redis) WatchHoldExpiry(ctx context.Context, onExpire func(ctx context.Context, bookingID string)) error {
	if err := r.Client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		r.Logger.Warn("REDIS", fmt.Sprintf("Could not enable keyspace notifications, relying on server config: %v", err))
	}

	channel := fmt.Sprintf("__keyevent@%d__:expired", r.Client.Options().DB)
	sub := r.Client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	r.Logger.Info("REDIS", fmt.Sprintf("Watching payment hold expiry on %s", channel))

	go func() {
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				r.dispatchExpired(ctx, msg, onExpire)
			}
		}
	}()
	return nil
}

func (r *Redis) dispatchExpired(ctx context.Context, msg *redis.Message, onExpire func(ctx context.Context, bookingID string)) {
	bookingID, ok := strings.CutPrefix(msg.Payload, holdKeyPrefix)
	if !ok || bookingID == "" {
		return
	}
	r.Logger.Info("REDIS", fmt.Sprintf("Payment hold expired for booking %s", bookingID))
	onExpire(ctx, bookingID)
}
