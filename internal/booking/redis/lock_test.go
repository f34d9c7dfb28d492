package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ms-booking/internal/booking"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a client against an in-memory miniredis server.
func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedis(client, time.Minute, nil), mr
}

func TestLockSeatsAllOrNothing(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, busy, err := r.LockSeats(ctx, "s1", []string{"A2", "A1"}, "order-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, busy)

	owner, err := mr.Get(booking.SeatLockKey("s1", "A1"))
	require.NoError(t, err)
	assert.Equal(t, "order-1", owner)
	assert.Equal(t, time.Minute, mr.TTL(booking.SeatLockKey("s1", "A1")))

	ok, busy, err = r.LockSeats(ctx, "s1", []string{"A3", "A2"}, "order-2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"A2"}, busy)
	assert.False(t, mr.Exists(booking.SeatLockKey("s1", "A3")), "partial lock must be rolled back")
}

func TestUnlockSeatsOnlyReleasesOwnLocks(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, _, err := r.LockSeats(ctx, "s1", []string{"A1"}, "order-1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, r.UnlockSeats(ctx, "s1", []string{"A1"}, "order-2"))
	assert.True(t, mr.Exists(booking.SeatLockKey("s1", "A1")))

	require.NoError(t, r.UnlockSeats(ctx, "s1", []string{"A1", "A9"}, "order-1"))
	assert.False(t, mr.Exists(booking.SeatLockKey("s1", "A1")))
}

func TestLocksExpire(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, _, err := r.LockSeats(ctx, "s1", []string{"A1"}, "order-1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, _, err = r.LockSeats(ctx, "s1", []string{"A1"}, "order-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockedSeats(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	locked, err := r.LockedSeats(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, locked)

	_, _, err = r.LockSeats(ctx, "s1", []string{"B4", "A2"}, "order-1")
	require.NoError(t, err)
	_, _, err = r.LockSeats(ctx, "s10", []string{"A1"}, "order-2")
	require.NoError(t, err)

	locked, err = r.LockedSeats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A2", "B4"}, locked)

	require.NoError(t, r.UnlockSeats(ctx, "s1", []string{"A2", "B4"}, "order-1"))
	locked, err = r.LockedSeats(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, locked)
}

func TestConcurrentLockingSingleWinner(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, _, err := r.LockSeats(ctx, "s1", []string{"A1", "A2"}, "order-"+string(rune('a'+i)))
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestHoldKeys(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.StartHold(ctx, "b-1", 15*time.Minute))
	assert.True(t, mr.Exists(HoldKey("b-1")))
	assert.Equal(t, 15*time.Minute, mr.TTL(HoldKey("b-1")))

	require.NoError(t, r.ClearHold(ctx, "b-1"))
	assert.False(t, mr.Exists(HoldKey("b-1")))
}

func TestDispatchExpiredFiltersKeys(t *testing.T) {
	r, _ := setupTestRedis(t)
	var got []string
	collect := func(_ context.Context, id string) { got = append(got, id) }

	r.dispatchExpired(context.Background(), &redis.Message{Payload: HoldKey("b-1")}, collect)
	r.dispatchExpired(context.Background(), &redis.Message{Payload: booking.SeatLockKey("s1", "A1")}, collect)
	r.dispatchExpired(context.Background(), &redis.Message{Payload: holdKeyPrefix}, collect)

	assert.Equal(t, []string{"b-1"}, got)
}
