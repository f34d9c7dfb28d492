package schedule

import (
	"context"
	"time"

	"ms-booking/internal/models"
)

// Store returns models.ErrRecordNotFound for missing point lookups.
type Store interface {
	InsertBus(ctx context.Context, b *models.Bus) error
	GetBus(ctx context.Context, id string) (*models.Bus, error)
	ListBuses(ctx context.Context) ([]models.Bus, error)
	GetBusesByIDs(ctx context.Context, ids []string) ([]models.Bus, error)
	UpdateBus(ctx context.Context, b *models.Bus) error
	DeleteBus(ctx context.Context, id string) error

	InsertSchedules(ctx context.Context, schedules []models.Schedule) error
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	ListSchedules(ctx context.Context) ([]models.Schedule, error)
	ListSchedulesByBus(ctx context.Context, busID string) ([]models.Schedule, error)
	// SearchSchedules matches substrings case-insensitively; a zero from/to disables the time filter.
	SearchSchedules(ctx context.Context, source, destination string, from, to time.Time) ([]models.Schedule, error)
	UpdateSchedule(ctx context.Context, s *models.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error

	CountBookingsForSchedule(ctx context.Context, scheduleID string) (int, error)
	CountSchedulesForBus(ctx context.Context, busID string) (int, error)
	ActiveBookingsForSchedule(ctx context.Context, scheduleID string) ([]models.Booking, error)
}
