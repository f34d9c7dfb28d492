package booking_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"ms-booking/internal/booking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceGeneratorFormat(t *testing.T) {
	gen := booking.ReferenceGenerator("PNR", 7)
	pattern := regexp.MustCompile(`^PNR[A-Z0-9]{7}$`)
	for i := 0; i < 50; i++ {
		ref, err := gen()
		require.NoError(t, err)
		assert.Regexp(t, pattern, ref)
	}
}

func TestAllocateSkipsTakenReferences(t *testing.T) {
	candidates := []string{"PNRAAAAAAA", "PNRBBBBBBB", "PNRCCCCCCC"}
	taken := map[string]bool{"PNRAAAAAAA": true, "PNRBBBBBBB": true}
	i := 0

	a := booking.Allocator{
		Generate: func() (string, error) {
			c := candidates[i]
			i++
			return c, nil
		},
		Exists: func(_ context.Context, ref string) (bool, error) {
			return taken[ref], nil
		},
		MaxAttempts: 5,
	}

	ref, err := a.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PNRCCCCCCC", ref)
	assert.Equal(t, 3, i)
}

func TestAllocateExhausted(t *testing.T) {
	calls := 0
	a := booking.Allocator{
		Generate: func() (string, error) { return "PNRSAMESAM", nil },
		Exists: func(context.Context, string) (bool, error) {
			calls++
			return true, nil
		},
		MaxAttempts: 4,
	}

	_, err := a.Allocate(context.Background())
	assert.ErrorIs(t, err, booking.ErrAllocationExhausted)
	assert.True(t, booking.IsRetryable(err))
	assert.Equal(t, 4, calls)
}

func TestAllocatePropagatesLookupFailure(t *testing.T) {
	boom := errors.New("connection reset")
	a := booking.Allocator{
		Generate: func() (string, error) { return "PNRAAAAAAA", nil },
		Exists:   func(context.Context, string) (bool, error) { return false, boom },
	}

	_, err := a.Allocate(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, booking.ErrAllocationExhausted)
}
