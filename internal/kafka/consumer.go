package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// SeatStatusConsumer replays seat status events from every service instance.
type SeatStatusConsumer struct {
	Reader MessageReader
	Logger *logger.Logger
}

// NewSeatStatusConsumer reads the seat status topic. Each instance passes its own group id
// so that every instance sees every event.
func NewSeatStatusConsumer(brokers []string, topic, groupID string, log *logger.Logger) *SeatStatusConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	return &SeatStatusConsumer{Reader: reader, Logger: log}
}

// Start delivers events to handler until ctx is cancelled or the reader is closed.
func (c *SeatStatusConsumer) Start(ctx context.Context, handler func(models.SeatStatusEvent)) {
	c.Logger.Info("KAFKA", "Seat status consumer started")
	for {
		msg, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.Logger.Info("KAFKA", "Seat status consumer stopped")
				return
			}
			if errors.Is(err, io.EOF) {
				return
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		var event models.SeatStatusEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.Logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal seat status at offset %d: %v", msg.Offset, err))
			continue
		}
		handler(event)
	}
}

func (c *SeatStatusConsumer) Close() error {
	return c.Reader.Close()
}
