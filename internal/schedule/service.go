package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/google/uuid"
)

// Booking guards are validation failures: the request is well formed but not allowed.
var (
	ErrScheduleInUse  = fmt.Errorf("%w: schedule has bookings and cannot be deleted", booking.ErrValidation)
	ErrScheduleBooked = fmt.Errorf("%w: schedule has bookings, fare and departure time can no longer change", booking.ErrValidation)
	ErrBusInUse       = fmt.Errorf("%w: bus has schedules and cannot be deleted", booking.ErrValidation)
)

type Service struct {
	Store  Store
	// Locks, when set, adds seats held by in-flight booking requests to availability.
	Locks  booking.SeatLockInspector
	Logger *logger.Logger
	now    func() time.Time
}

func NewService(store Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{Store: store, Logger: log, now: func() time.Time { return time.Now().UTC() }}
}

// ---------------- BUSES ----------------

func (s *Service) CreateBus(ctx context.Context, req models.CreateBusRequest) (*models.Bus, error) {
	bus := &models.Bus{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(req.Name),
		Operator:   strings.TrimSpace(req.Operator),
		BusType:    req.BusType,
		TotalSeats: req.TotalSeats,
		Amenities:  trimAll(req.Amenities),
	}
	if err := validateBus(bus); err != nil {
		return nil, err
	}
	bus.CreatedAt = s.now()
	bus.UpdatedAt = bus.CreatedAt

	if err := s.Store.InsertBus(ctx, bus); err != nil {
		return nil, s.infra("create bus", err)
	}
	s.Logger.LogDatabase("INSERT", "buses", fmt.Sprintf("bus %s (%s, %d seats)", bus.ID, bus.Operator, bus.TotalSeats))
	return bus, nil
}

func (s *Service) GetBus(ctx context.Context, id string) (*models.Bus, error) {
	bus, err := s.Store.GetBus(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, s.lookupError(err, "bus", id)
	}
	return bus, nil
}

// ListBuses returns buses newest first.
func (s *Service) ListBuses(ctx context.Context) ([]models.Bus, error) {
	buses, err := s.Store.ListBuses(ctx)
	if err != nil {
		return nil, s.infra("list buses", err)
	}
	return buses, nil
}

func (s *Service) UpdateBus(ctx context.Context, id string, req models.UpdateBusRequest) (*models.Bus, error) {
	bus, err := s.GetBus(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		bus.Name = strings.TrimSpace(*req.Name)
	}
	if req.Operator != nil {
		bus.Operator = strings.TrimSpace(*req.Operator)
	}
	if req.BusType != nil {
		bus.BusType = *req.BusType
	}
	if req.TotalSeats != nil {
		bus.TotalSeats = *req.TotalSeats
	}
	if req.Amenities != nil {
		bus.Amenities = trimAll(*req.Amenities)
	}
	if err := validateBus(bus); err != nil {
		return nil, err
	}
	bus.UpdatedAt = s.now()

	if err := s.Store.UpdateBus(ctx, bus); err != nil {
		return nil, s.infra("update bus", err)
	}
	return bus, nil
}

func (s *Service) DeleteBus(ctx context.Context, id string) error {
	bus, err := s.GetBus(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.Store.CountSchedulesForBus(ctx, bus.ID)
	if err != nil {
		return s.infra("count bus schedules", err)
	}
	if n > 0 {
		return ErrBusInUse
	}
	if err := s.Store.DeleteBus(ctx, bus.ID); err != nil {
		return s.lookupError(err, "bus", bus.ID)
	}
	s.Logger.LogDatabase("DELETE", "buses", bus.ID)
	return nil
}

func validateBus(b *models.Bus) error {
	if b.Operator == "" {
		return validationError("operator is required")
	}
	if !b.BusType.Valid() {
		return validationError("busType must be %q or %q", models.BusTypeAC, models.BusTypeNonAC)
	}
	if b.TotalSeats < 1 {
		return validationError("totalSeats must be at least 1")
	}
	if b.Amenities == nil {
		b.Amenities = []string{}
	}
	return nil
}

// ---------------- SCHEDULES ----------------

func (s *Service) CreateSchedule(ctx context.Context, req models.CreateScheduleRequest) (*models.ScheduleWithBus, error) {
	created, err := s.AddSchedules(ctx, req.BusID, []models.CreateScheduleRequest{req})
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// AddSchedules creates every schedule for one bus or none of them.
func (s *Service) AddSchedules(ctx context.Context, busID string, reqs []models.CreateScheduleRequest) ([]models.ScheduleWithBus, error) {
	busID = strings.TrimSpace(busID)
	if busID == "" {
		return nil, validationError("busId is required")
	}
	if len(reqs) == 0 {
		return nil, validationError("schedules must be a non-empty array")
	}
	bus, err := s.GetBus(ctx, busID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	schedules := make([]models.Schedule, 0, len(reqs))
	for i, req := range reqs {
		sc := models.Schedule{
			ID:            uuid.NewString(),
			BusID:         bus.ID,
			Source:        strings.TrimSpace(req.Source),
			Destination:   strings.TrimSpace(req.Destination),
			DepartureTime: req.DepartureTime.UTC(),
			Fare:          req.Fare,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := validateSchedule(&sc); err != nil {
			if len(reqs) > 1 {
				return nil, fmt.Errorf("schedule %d: %w", i, err)
			}
			return nil, err
		}
		schedules = append(schedules, sc)
	}

	if err := s.Store.InsertSchedules(ctx, schedules); err != nil {
		return nil, s.infra("create schedules", err)
	}
	s.Logger.LogDatabase("INSERT", "schedules", fmt.Sprintf("%d schedules for bus %s", len(schedules), bus.ID))

	out := make([]models.ScheduleWithBus, 0, len(schedules))
	for _, sc := range schedules {
		out = append(out, models.ScheduleWithBus{Schedule: sc, Bus: bus})
	}
	return out, nil
}

// ListSchedules returns every schedule with its bus, by departure time.
func (s *Service) ListSchedules(ctx context.Context) ([]models.ScheduleWithBus, error) {
	schedules, err := s.Store.ListSchedules(ctx)
	if err != nil {
		return nil, s.infra("list schedules", err)
	}
	return s.withBuses(ctx, schedules)
}

func (s *Service) ListSchedulesByBus(ctx context.Context, busID string) ([]models.ScheduleWithBus, error) {
	bus, err := s.GetBus(ctx, busID)
	if err != nil {
		return nil, err
	}
	schedules, err := s.Store.ListSchedulesByBus(ctx, bus.ID)
	if err != nil {
		return nil, s.infra("list bus schedules", err)
	}
	out := make([]models.ScheduleWithBus, 0, len(schedules))
	for _, sc := range schedules {
		out = append(out, models.ScheduleWithBus{Schedule: sc, Bus: bus})
	}
	return out, nil
}

// UpdateSchedule edits a schedule. Fare and departure time are frozen once any booking
// references the schedule; the route can still be corrected.
func (s *Service) UpdateSchedule(ctx context.Context, id string, req models.UpdateScheduleRequest) (*models.ScheduleWithBus, error) {
	sc, err := s.Store.GetSchedule(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, s.lookupError(err, "schedule", id)
	}
	fareChanged := req.Fare != nil && *req.Fare != sc.Fare
	departureChanged := req.DepartureTime != nil && !req.DepartureTime.Equal(sc.DepartureTime)
	if fareChanged || departureChanged {
		n, err := s.Store.CountBookingsForSchedule(ctx, sc.ID)
		if err != nil {
			return nil, s.infra("count schedule bookings", err)
		}
		if n > 0 {
			s.Logger.Warn("SCHEDULE", fmt.Sprintf("Refusing fare/departure change on schedule %s with %d bookings", sc.ID, n))
			return nil, ErrScheduleBooked
		}
	}
	if req.Source != nil {
		sc.Source = strings.TrimSpace(*req.Source)
	}
	if req.Destination != nil {
		sc.Destination = strings.TrimSpace(*req.Destination)
	}
	if req.DepartureTime != nil {
		sc.DepartureTime = req.DepartureTime.UTC()
	}
	if req.Fare != nil {
		sc.Fare = *req.Fare
	}
	if err := validateSchedule(sc); err != nil {
		return nil, err
	}
	sc.UpdatedAt = s.now()

	if err := s.Store.UpdateSchedule(ctx, sc); err != nil {
		return nil, s.infra("update schedule", err)
	}
	s.Logger.LogDatabase("UPDATE", "schedules", sc.ID)

	out, err := s.withBuses(ctx, []models.Schedule{*sc})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// DeleteSchedule refuses to delete a schedule that any booking references, cancelled ones included.
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	sc, err := s.Store.GetSchedule(ctx, strings.TrimSpace(id))
	if err != nil {
		return s.lookupError(err, "schedule", id)
	}
	n, err := s.Store.CountBookingsForSchedule(ctx, sc.ID)
	if err != nil {
		return s.infra("count schedule bookings", err)
	}
	if n > 0 {
		return ErrScheduleInUse
	}
	if err := s.Store.DeleteSchedule(ctx, sc.ID); err != nil {
		return s.lookupError(err, "schedule", sc.ID)
	}
	s.Logger.LogDatabase("DELETE", "schedules", sc.ID)
	return nil
}

// GetAvailability returns a schedule with its bus and the seats held by pending or confirmed bookings.
func (s *Service) GetAvailability(ctx context.Context, id string) (*models.ScheduleAvailability, error) {
	sc, err := s.Store.GetSchedule(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, s.lookupError(err, "schedule", id)
	}
	bus, err := s.Store.GetBus(ctx, sc.BusID)
	if err != nil && !errors.Is(err, models.ErrRecordNotFound) {
		return nil, s.infra("load bus", err)
	}

	active, err := s.Store.ActiveBookingsForSchedule(ctx, sc.ID)
	if err != nil {
		return nil, s.infra("load active bookings", err)
	}
	held := booking.HeldSeats(active)
	booked := make([]string, 0, len(held))
	for seat := range held {
		booked = append(booked, seat)
	}
	sort.Strings(booked)

	out := &models.ScheduleAvailability{Schedule: *sc, Bus: bus, BookedSeats: booked, LockedSeats: s.lockedSeats(ctx, sc.ID, held)}
	if bus != nil {
		out.AvailableCount = max(bus.TotalSeats-len(booked)-len(out.LockedSeats), 0)
	}
	return out, nil
}

// lockedSeats returns seats locked by in-flight requests that no booking holds yet.
// Lock lookups are advisory, so a failure only drops them from the answer.
func (s *Service) lockedSeats(ctx context.Context, scheduleID string, held map[string]booking.SeatHolder) []string {
	locked := []string{}
	if s.Locks == nil {
		return locked
	}
	seats, err := s.Locks.LockedSeats(ctx, scheduleID)
	if err != nil {
		s.Logger.Warn("SCHEDULE", fmt.Sprintf("Failed to read seat locks of schedule %s: %v", scheduleID, err))
		return locked
	}
	for _, seat := range seats {
		if _, ok := held[seat]; !ok {
			locked = append(locked, seat)
		}
	}
	return locked
}

// Search finds schedules departing on the query's day. When nothing departs that day it
// falls back to the same route on any day.
func (s *Service) Search(ctx context.Context, q models.SearchQuery) ([]models.ScheduleWithBus, error) {
	source := strings.TrimSpace(q.Source)
	destination := strings.TrimSpace(q.Destination)
	if source == "" || destination == "" || q.Date.IsZero() {
		return nil, validationError("source, destination and date are required parameters")
	}

	from, to := utils.DayBounds(q.Date)
	schedules, err := s.Store.SearchSchedules(ctx, source, destination, from.UTC(), to.UTC())
	if err != nil {
		return nil, s.infra("search schedules", err)
	}
	if len(schedules) == 0 {
		s.Logger.Debug("SEARCH", fmt.Sprintf("No schedules %s -> %s on %s, searching without date", source, destination, from.Format("2006-01-02")))
		schedules, err = s.Store.SearchSchedules(ctx, source, destination, time.Time{}, time.Time{})
		if err != nil {
			return nil, s.infra("search schedules", err)
		}
	}
	return s.withBuses(ctx, schedules)
}

func validateSchedule(sc *models.Schedule) error {
	if sc.Source == "" || sc.Destination == "" {
		return validationError("source and destination are required")
	}
	if strings.EqualFold(sc.Source, sc.Destination) {
		return validationError("source and destination must differ")
	}
	if sc.DepartureTime.IsZero() {
		return validationError("departureTime is required")
	}
	if sc.Fare < 0 {
		return validationError("fare must not be negative")
	}
	return nil
}

// ---------------- HELPERS ----------------

func (s *Service) withBuses(ctx context.Context, schedules []models.Schedule) ([]models.ScheduleWithBus, error) {
	ids := make([]string, 0, len(schedules))
	seen := make(map[string]bool)
	for _, sc := range schedules {
		if !seen[sc.BusID] {
			seen[sc.BusID] = true
			ids = append(ids, sc.BusID)
		}
	}

	buses := map[string]*models.Bus{}
	if len(ids) > 0 {
		list, err := s.Store.GetBusesByIDs(ctx, ids)
		if err != nil {
			return nil, s.infra("load buses", err)
		}
		for i := range list {
			buses[list[i].ID] = &list[i]
		}
	}

	out := make([]models.ScheduleWithBus, 0, len(schedules))
	for _, sc := range schedules {
		out = append(out, models.ScheduleWithBus{Schedule: sc, Bus: buses[sc.BusID]})
	}
	return out, nil
}

func (s *Service) lookupError(err error, kind, id string) error {
	if errors.Is(err, models.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s not found", booking.ErrNotFound, kind, id)
	}
	return s.infra("load "+kind, err)
}

func (s *Service) infra(op string, err error) error {
	s.Logger.Error("SCHEDULE", fmt.Sprintf("%s: %v", op, err))
	return fmt.Errorf("%s: %w: %w", op, booking.ErrInfrastructure, err)
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", booking.ErrValidation, fmt.Sprintf(format, args...))
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
