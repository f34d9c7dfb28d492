package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// DB implements schedule.Store on bun.
type DB struct {
	Bun bun.IDB
}

func New(db bun.IDB) *DB {
	return &DB{Bun: db}
}

// ---------------- BUSES ----------------

func (d *DB) InsertBus(ctx context.Context, b *models.Bus) error {
	_, err := d.Bun.NewInsert().Model(b).Exec(ctx)
	return err
}

func (d *DB) GetBus(ctx context.Context, id string) (*models.Bus, error) {
	var b models.Bus
	if err := d.Bun.NewSelect().Model(&b).Where("bu.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (d *DB) ListBuses(ctx context.Context) ([]models.Bus, error) {
	buses := []models.Bus{}
	err := d.Bun.NewSelect().Model(&buses).Order("bu.created_at DESC").Scan(ctx)
	return buses, err
}

func (d *DB) GetBusesByIDs(ctx context.Context, ids []string) ([]models.Bus, error) {
	buses := []models.Bus{}
	if len(ids) == 0 {
		return buses, nil
	}
	err := d.Bun.NewSelect().Model(&buses).Where("bu.id IN (?)", bun.In(ids)).Scan(ctx)
	return buses, err
}

func (d *DB) UpdateBus(ctx context.Context, b *models.Bus) error {
	res, err := d.Bun.NewUpdate().
		Model(b).
		Column("name", "operator", "bus_type", "total_seats", "amenities", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (d *DB) DeleteBus(ctx context.Context, id string) error {
	res, err := d.Bun.NewDelete().Model((*models.Bus)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (d *DB) CountSchedulesForBus(ctx context.Context, busID string) (int, error) {
	return d.Bun.NewSelect().Model((*models.Schedule)(nil)).Where("s.bus_id = ?", busID).Count(ctx)
}

// ---------------- SCHEDULES ----------------

// InsertSchedules writes all rows in a single statement.
func (d *DB) InsertSchedules(ctx context.Context, schedules []models.Schedule) error {
	if len(schedules) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&schedules).Exec(ctx)
	return err
}

func (d *DB) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	var s models.Schedule
	if err := d.Bun.NewSelect().Model(&s).Where("s.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (d *DB) ListSchedules(ctx context.Context) ([]models.Schedule, error) {
	schedules := []models.Schedule{}
	err := d.Bun.NewSelect().Model(&schedules).Order("s.departure_time ASC").Scan(ctx)
	return schedules, err
}

func (d *DB) ListSchedulesByBus(ctx context.Context, busID string) ([]models.Schedule, error) {
	schedules := []models.Schedule{}
	err := d.Bun.NewSelect().
		Model(&schedules).
		Where("s.bus_id = ?", busID).
		Order("s.departure_time ASC").
		Scan(ctx)
	return schedules, err
}

func (d *DB) SearchSchedules(ctx context.Context, source, destination string, from, to time.Time) ([]models.Schedule, error) {
	schedules := []models.Schedule{}
	q := d.Bun.NewSelect().
		Model(&schedules).
		Where(`LOWER(s.source) LIKE ? ESCAPE '\'`, likePattern(source)).
		Where(`LOWER(s.destination) LIKE ? ESCAPE '\'`, likePattern(destination))
	if !from.IsZero() && !to.IsZero() {
		q = q.Where("s.departure_time >= ?", from).Where("s.departure_time <= ?", to)
	}
	err := q.Order("s.departure_time ASC").Scan(ctx)
	return schedules, err
}

func (d *DB) UpdateSchedule(ctx context.Context, s *models.Schedule) error {
	res, err := d.Bun.NewUpdate().
		Model(s).
		Column("source", "destination", "departure_time", "fare", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (d *DB) DeleteSchedule(ctx context.Context, id string) error {
	res, err := d.Bun.NewDelete().Model((*models.Schedule)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ---------------- BOOKINGS ----------------

func (d *DB) CountBookingsForSchedule(ctx context.Context, scheduleID string) (int, error) {
	return d.Bun.NewSelect().Model((*models.Booking)(nil)).Where("b.schedule_id = ?", scheduleID).Count(ctx)
}

func (d *DB) ActiveBookingsForSchedule(ctx context.Context, scheduleID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("b.schedule_id = ?", scheduleID).
		Where("b.status IN (?)", bun.In(models.ActiveBookingStatuses)).
		Scan(ctx)
	return bookings, err
}

func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + strings.ToLower(r.Replace(strings.TrimSpace(term))) + "%"
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", models.ErrRecordNotFound, err)
	}
	return err
}
