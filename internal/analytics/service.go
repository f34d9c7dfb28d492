package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"ms-booking/internal/booking"
	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// Service aggregates booking data for administrators.
type Service struct {
	db bun.IDB
}

func NewService(db bun.IDB) *Service {
	return &Service{db: db}
}

// StatusBreakdown counts bookings of one status.
type StatusBreakdown struct {
	Status   models.BookingStatus `json:"status"`
	Bookings int                  `json:"bookings"`
	Seats    int                  `json:"seats"`
	Amount   float64              `json:"amount"`
}

// DailySalesMetrics contains confirmed sales for a single booking day.
type DailySalesMetrics struct {
	Date      string  `json:"date"`
	Revenue   float64 `json:"revenue"`
	SeatsSold int     `json:"seats_sold"`
}

// ScheduleAnalytics is the sales picture of one schedule. Revenue counts confirmed bookings only.
type ScheduleAnalytics struct {
	ScheduleID string              `json:"schedule_id"`
	BusID      string              `json:"bus_id"`
	TotalSeats int                 `json:"total_seats"`
	SeatsSold  int                 `json:"seats_sold"`
	SeatsHeld  int                 `json:"seats_held"`
	Occupancy  float64             `json:"occupancy"`
	Revenue    float64             `json:"revenue"`
	ByStatus   []StatusBreakdown   `json:"by_status"`
	DailySales []DailySalesMetrics `json:"daily_sales"`
}

// ScheduleSummary is the per-schedule line of a bus report.
type ScheduleSummary struct {
	ScheduleID string  `json:"schedule_id"`
	SeatsSold  int     `json:"seats_sold"`
	Revenue    float64 `json:"revenue"`
	Occupancy  float64 `json:"occupancy"`
}

type BusAnalytics struct {
	BusID     string            `json:"bus_id"`
	Revenue   float64           `json:"revenue"`
	SeatsSold int               `json:"seats_sold"`
	Schedules []ScheduleSummary `json:"schedules"`
}

// BatchScheduleAnalytics aggregates several schedules into one report.
type BatchScheduleAnalytics struct {
	ScheduleIDs []string            `json:"schedule_ids"`
	Revenue     float64             `json:"revenue"`
	SeatsSold   int                 `json:"seats_sold"`
	DailySales  []DailySalesMetrics `json:"daily_sales"`
}

// GetScheduleAnalytics returns sales analytics for one schedule.
func (s *Service) GetScheduleAnalytics(ctx context.Context, scheduleID string) (*ScheduleAnalytics, error) {
	scheduleID = strings.TrimSpace(scheduleID)
	if scheduleID == "" {
		return nil, fmt.Errorf("%w: scheduleId is required", booking.ErrValidation)
	}

	var sched models.Schedule
	if err := s.db.NewSelect().Model(&sched).Where("s.id = ?", scheduleID).Limit(1).Scan(ctx); err != nil {
		return nil, lookupError(err, "schedule", scheduleID)
	}
	var bus models.Bus
	if err := s.db.NewSelect().Model(&bus).Where("bu.id = ?", sched.BusID).Limit(1).Scan(ctx); err != nil {
		return nil, lookupError(err, "bus", sched.BusID)
	}

	bookings, err := s.bookingsFor(ctx, []string{scheduleID})
	if err != nil {
		return nil, err
	}

	out := &ScheduleAnalytics{
		ScheduleID: scheduleID,
		BusID:      bus.ID,
		TotalSeats: bus.TotalSeats,
		ByStatus:   breakdown(bookings),
		DailySales: dailySales(bookings),
	}
	for _, b := range bookings {
		switch b.Status {
		case models.BookingStatusConfirmed:
			out.SeatsSold += len(b.SelectedSeats)
			out.Revenue += b.TotalFare
		case models.BookingStatusPending:
			out.SeatsHeld += len(b.SelectedSeats)
		}
	}
	out.Occupancy = occupancy(out.SeatsSold, bus.TotalSeats)
	return out, nil
}

// GetBusAnalytics summarises every schedule of a bus.
func (s *Service) GetBusAnalytics(ctx context.Context, busID string) (*BusAnalytics, error) {
	busID = strings.TrimSpace(busID)
	var bus models.Bus
	if err := s.db.NewSelect().Model(&bus).Where("bu.id = ?", busID).Limit(1).Scan(ctx); err != nil {
		return nil, lookupError(err, "bus", busID)
	}

	schedules := []models.Schedule{}
	if err := s.db.NewSelect().Model(&schedules).Where("s.bus_id = ?", busID).Order("s.departure_time ASC").Scan(ctx); err != nil {
		return nil, infra("load bus schedules", err)
	}
	ids := make([]string, 0, len(schedules))
	for _, sc := range schedules {
		ids = append(ids, sc.ID)
	}
	bookings, err := s.bookingsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	perSchedule := make(map[string]*ScheduleSummary, len(schedules))
	out := &BusAnalytics{BusID: busID, Schedules: make([]ScheduleSummary, 0, len(schedules))}
	for _, sc := range schedules {
		perSchedule[sc.ID] = &ScheduleSummary{ScheduleID: sc.ID}
	}
	for _, b := range bookings {
		if b.Status != models.BookingStatusConfirmed {
			continue
		}
		sum := perSchedule[b.ScheduleID]
		sum.SeatsSold += len(b.SelectedSeats)
		sum.Revenue += b.TotalFare
		out.SeatsSold += len(b.SelectedSeats)
		out.Revenue += b.TotalFare
	}
	for _, sc := range schedules {
		sum := perSchedule[sc.ID]
		sum.Occupancy = occupancy(sum.SeatsSold, bus.TotalSeats)
		out.Schedules = append(out.Schedules, *sum)
	}
	return out, nil
}

// GetBatchScheduleAnalytics aggregates confirmed sales across schedules.
func (s *Service) GetBatchScheduleAnalytics(ctx context.Context, scheduleIDs []string) (*BatchScheduleAnalytics, error) {
	ids := make([]string, 0, len(scheduleIDs))
	seen := make(map[string]bool)
	for _, id := range scheduleIDs {
		if id = strings.TrimSpace(id); id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	out := &BatchScheduleAnalytics{ScheduleIDs: ids, DailySales: []DailySalesMetrics{}}
	if len(ids) == 0 {
		return out, nil
	}

	bookings, err := s.bookingsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, b := range bookings {
		if b.Status == models.BookingStatusConfirmed {
			out.SeatsSold += len(b.SelectedSeats)
			out.Revenue += b.TotalFare
		}
	}
	out.DailySales = dailySales(bookings)
	return out, nil
}

// CountConfirmedBookings returns how many bookings have been paid for across all schedules.
func (s *Service) CountConfirmedBookings(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().
		Model((*models.Booking)(nil)).
		Where("b.status = ?", models.BookingStatusConfirmed).
		Count(ctx)
	if err != nil {
		return 0, infra("count bookings", err)
	}
	return count, nil
}

func (s *Service) bookingsFor(ctx context.Context, scheduleIDs []string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	if len(scheduleIDs) == 0 {
		return bookings, nil
	}
	err := s.db.NewSelect().
		Model(&bookings).
		Where("b.schedule_id IN (?)", bun.In(scheduleIDs)).
		Order("b.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, infra("load bookings", err)
	}
	return bookings, nil
}

func breakdown(bookings []models.Booking) []StatusBreakdown {
	order := []models.BookingStatus{models.BookingStatusPending, models.BookingStatusConfirmed, models.BookingStatusCancelled}
	byStatus := make(map[models.BookingStatus]*StatusBreakdown, len(order))
	for _, st := range order {
		byStatus[st] = &StatusBreakdown{Status: st}
	}
	for _, b := range bookings {
		row, ok := byStatus[b.Status]
		if !ok {
			continue
		}
		row.Bookings++
		row.Seats += len(b.SelectedSeats)
		row.Amount += b.TotalFare
	}
	out := make([]StatusBreakdown, 0, len(order))
	for _, st := range order {
		out = append(out, *byStatus[st])
	}
	return out
}

// dailySales buckets confirmed bookings by the UTC day they were made.
func dailySales(bookings []models.Booking) []DailySalesMetrics {
	byDay := make(map[string]*DailySalesMetrics)
	for _, b := range bookings {
		if b.Status != models.BookingStatusConfirmed {
			continue
		}
		day := b.CreatedAt.UTC().Format("2006-01-02")
		m, ok := byDay[day]
		if !ok {
			m = &DailySalesMetrics{Date: day}
			byDay[day] = m
		}
		m.Revenue += b.TotalFare
		m.SeatsSold += len(b.SelectedSeats)
	}
	out := make([]DailySalesMetrics, 0, len(byDay))
	for _, m := range byDay {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func occupancy(sold, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(sold) / float64(total)
}

func lookupError(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s not found", booking.ErrNotFound, kind, id)
	}
	return infra("load "+kind, err)
}

func infra(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, booking.ErrInfrastructure, err)
}
