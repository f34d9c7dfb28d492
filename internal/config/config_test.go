package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("PNR_MAX_ATTEMPTS", "")

	cfg := Load()

	assert.Equal(t, ":8084", cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.Equal(t, 10, cfg.Booking.MaxReferenceAttempts)
	assert.Equal(t, "PNR", cfg.Booking.ReferencePrefix)
	assert.Equal(t, 7, cfg.Booking.ReferenceLength)
	assert.Equal(t, 24*time.Hour, cfg.Booking.CancellationWindow)
	assert.Equal(t, 5*time.Minute, cfg.Booking.HoldSweepInterval)
	assert.Len(t, cfg.Kafka.Topics.All(), 4)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PNR_MAX_ATTEMPTS", "4")
	t.Setenv("SEAT_LOCK_WAIT", "750ms")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("PAYMENT_CURRENCY", "LKR")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 4, cfg.Booking.MaxReferenceAttempts)
	assert.Equal(t, 750*time.Millisecond, cfg.Booking.LockWait)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "lkr", cfg.Stripe.Currency)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("PNR_LENGTH", "seven")
	t.Setenv("SEAT_LOCK_WAIT", "soon")

	cfg := Load()

	assert.Equal(t, 7, cfg.Booking.ReferenceLength)
	assert.Equal(t, 3*time.Second, cfg.Booking.LockWait)
}
