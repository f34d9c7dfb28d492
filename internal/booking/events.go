package booking

import (
	"context"
	"errors"

	"ms-booking/internal/models"
)

type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, event models.BookingEvent) error
	PublishSeatStatus(ctx context.Context, event models.SeatStatusEvent) error
}

type nopPublisher struct{}

func (nopPublisher) PublishBookingEvent(context.Context, models.BookingEvent) error  { return nil }
func (nopPublisher) PublishSeatStatus(context.Context, models.SeatStatusEvent) error { return nil }

// MultiPublisher fans every event out to all publishers and joins their errors.
type MultiPublisher []EventPublisher

func (m MultiPublisher) PublishBookingEvent(ctx context.Context, event models.BookingEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishBookingEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPublisher) PublishSeatStatus(ctx context.Context, event models.SeatStatusEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishSeatStatus(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
