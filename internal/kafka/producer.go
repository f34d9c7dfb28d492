package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes booking and seat status events. It implements booking.EventPublisher.
type Producer struct {
	Writer MessageWriter
	Topics config.TopicConfig
	Logger *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{Writer: writer, Topics: topics, Logger: log}
}

func (p *Producer) topicFor(t models.BookingEventType) (string, error) {
	switch t {
	case models.BookingCreated:
		return p.Topics.BookingCreated, nil
	case models.BookingConfirmed:
		return p.Topics.BookingConfirmed, nil
	case models.BookingCancelled:
		return p.Topics.BookingCancelled, nil
	}
	return "", fmt.Errorf("no topic for event type %q", t)
}

// PublishBookingEvent streams a booking state change keyed by booking id.
func (p *Producer) PublishBookingEvent(ctx context.Context, event models.BookingEvent) error {
	topic, err := p.topicFor(event.Type)
	if err != nil {
		return err
	}
	return p.publish(ctx, topic, event.BookingID, event)
}

// PublishSeatStatus streams a seat status change keyed by schedule id, so one schedule's
// updates stay ordered on a single partition.
func (p *Producer) PublishSeatStatus(ctx context.Context, event models.SeatStatusEvent) error {
	return p.publish(ctx, p.Topics.SeatStatus, event.ScheduleID, event)
}

func (p *Producer) publish(ctx context.Context, topic, key string, payload interface{}) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.Logger.LogKafka("PUBLISH", topic, key)
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
