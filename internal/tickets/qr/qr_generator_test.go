package qr

import (
	"bytes"
	"testing"
	"time"

	"ms-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticket() models.TicketPayload {
	return models.TicketPayload{
		BookingID:     "b-1",
		PNRNumber:     "PNRAB12C34",
		ScheduleID:    "s-1",
		Seats:         []string{"A1", "A2"},
		Source:        "Colombo",
		Destination:   "Kandy",
		DepartureTime: time.Date(2030, 1, 2, 8, 30, 0, 0, time.UTC),
		IssuedAt:      time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEncodeProducesPNG(t *testing.T) {
	q, err := NewQRGenerator("secret")
	require.NoError(t, err)

	png, err := q.Encode(ticket())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")))
}

func TestSealRoundTrip(t *testing.T) {
	q, err := NewQRGenerator("secret")
	require.NoError(t, err)

	sealed, err := q.seal([]byte(`{"bookingId":"b-1","pnr":"PNRAB12C34","seats":["A1"]}`))
	require.NoError(t, err)

	got, err := q.Decode(sealed)
	require.NoError(t, err)
	assert.Equal(t, "PNRAB12C34", got.PNRNumber)
	assert.Equal(t, []string{"A1"}, got.Seats)

	other, err := NewQRGenerator("another-secret")
	require.NoError(t, err)
	_, err = other.Decode(sealed)
	assert.Error(t, err)
}

func TestEmptySecretRejected(t *testing.T) {
	_, err := NewQRGenerator("")
	assert.Error(t, err)
}
