package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testTopics() config.TopicConfig {
	return config.TopicConfig{
		BookingCreated:   "t.created",
		BookingConfirmed: "t.confirmed",
		BookingCancelled: "t.cancelled",
		SeatStatus:       "t.seats",
	}
}

func TestPublishBookingEventRoutesByType(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{Writer: w, Topics: testTopics(), Logger: logger.NewNop()}
	b := models.Booking{ID: "b-1", ScheduleID: "s-1", PNRNumber: "PNRAAAAAAA", SelectedSeats: []string{"A1"}}

	for _, typ := range []models.BookingEventType{models.BookingCreated, models.BookingConfirmed, models.BookingCancelled} {
		require.NoError(t, p.PublishBookingEvent(context.Background(), models.NewBookingEvent(typ, b)))
	}

	require.Len(t, w.messages, 3)
	assert.Equal(t, "t.created", w.messages[0].Topic)
	assert.Equal(t, "t.confirmed", w.messages[1].Topic)
	assert.Equal(t, "t.cancelled", w.messages[2].Topic)
	assert.Equal(t, []byte("b-1"), w.messages[0].Key)

	var decoded models.BookingEvent
	require.NoError(t, json.Unmarshal(w.messages[1].Value, &decoded))
	assert.Equal(t, models.BookingConfirmed, decoded.Type)
	assert.Equal(t, "PNRAAAAAAA", decoded.PNRNumber)
}

func TestPublishSeatStatusKeyedBySchedule(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{Writer: w, Topics: testTopics(), Logger: logger.NewNop()}
	b := models.Booking{ID: "b-1", ScheduleID: "s-9", SelectedSeats: []string{"A1", "A2"}}

	require.NoError(t, p.PublishSeatStatus(context.Background(), models.NewSeatStatusEvent(b, models.SeatStatusHeld)))

	require.Len(t, w.messages, 1)
	assert.Equal(t, "t.seats", w.messages[0].Topic)
	assert.Equal(t, []byte("s-9"), w.messages[0].Key)
}

func TestPublishErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &Producer{Writer: w, Topics: testTopics(), Logger: logger.NewNop()}

	err := p.PublishBookingEvent(context.Background(), models.BookingEvent{Type: "booking.unknown"})
	assert.Error(t, err)

	err = p.PublishBookingEvent(context.Background(), models.BookingEvent{Type: models.BookingCreated, BookingID: "b-1"})
	assert.ErrorContains(t, err, "broker down")
}

type fakeReader struct {
	messages []kafka.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *fakeReader) Close() error { return nil }

func TestSeatStatusConsumerSkipsBadMessages(t *testing.T) {
	good, err := json.Marshal(models.SeatStatusEvent{ScheduleID: "s-1", Seats: []string{"A1"}, Status: models.SeatStatusBooked})
	require.NoError(t, err)

	c := &SeatStatusConsumer{
		Reader: &fakeReader{messages: []kafka.Message{{Value: []byte("{not json")}, {Value: good}}},
		Logger: logger.NewNop(),
	}

	var got []models.SeatStatusEvent
	c.Start(context.Background(), func(e models.SeatStatusEvent) { got = append(got, e) })

	require.Len(t, got, 1)
	assert.Equal(t, "s-1", got[0].ScheduleID)
	assert.Equal(t, models.SeatStatusBooked, got[0].Status)
}
