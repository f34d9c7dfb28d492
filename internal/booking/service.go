package booking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"

	"github.com/google/uuid"
)

type PaymentGateway interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error)
	GetIntent(ctx context.Context, id string) (*payment.Intent, error)
	CancelIntent(ctx context.Context, id string) error
	Refund(ctx context.Context, intentID string) error
}

type TicketEncoder interface {
	Encode(ticket models.TicketPayload) ([]byte, error)
}

type Options struct {
	MaxSeatsPerBooking   int
	MaxReferenceAttempts int
	MaxBookingAttempts   int
	LockWait             time.Duration
	LockRetryInterval    time.Duration
	HoldTTL              time.Duration
	CancellationWindow   time.Duration
	Currency             string
	// NewReference overrides the default PNR generator.
	NewReference func() (string, error)
}

func OptionsFromConfig(cfg config.BookingConfig, currency string) Options {
	return Options{
		MaxSeatsPerBooking:   cfg.MaxSeatsPerBooking,
		MaxReferenceAttempts: cfg.MaxReferenceAttempts,
		MaxBookingAttempts:   cfg.MaxBookingAttempts,
		LockWait:             cfg.LockWait,
		LockRetryInterval:    cfg.LockRetryInterval,
		HoldTTL:              cfg.HoldTTL,
		CancellationWindow:   cfg.CancellationWindow,
		Currency:             currency,
		NewReference:         ReferenceGenerator(cfg.ReferencePrefix, cfg.ReferenceLength),
	}
}

// Dependencies are the collaborators of the Service. Only Store is required.
type Dependencies struct {
	Store    Store
	Locker   SeatLocker
	Events   EventPublisher
	Payments PaymentGateway
	Holds    HoldTimer
	Tickets  TicketEncoder
	Logger   *logger.Logger
}

type Service struct {
	Store    Store
	Locker   SeatLocker
	Events   EventPublisher
	Payments PaymentGateway
	Holds    HoldTimer
	Tickets  TicketEncoder
	Logger   *logger.Logger

	opts        Options
	now         func() time.Time
	intentLocks keyedMutex
}

func NewService(deps Dependencies, opts Options) *Service {
	s := &Service{
		Store:    deps.Store,
		Locker:   deps.Locker,
		Events:   deps.Events,
		Payments: deps.Payments,
		Holds:    deps.Holds,
		Tickets:  deps.Tickets,
		Logger:   deps.Logger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.Locker == nil {
		s.Locker = NewLocalSeatLocker()
	}
	if s.Events == nil {
		s.Events = nopPublisher{}
	}
	if s.Holds == nil {
		s.Holds = nopHoldTimer{}
	}
	if s.Logger == nil {
		s.Logger = logger.NewNop()
	}
	if s.opts.MaxSeatsPerBooking <= 0 {
		s.opts.MaxSeatsPerBooking = 10
	}
	if s.opts.MaxReferenceAttempts <= 0 {
		s.opts.MaxReferenceAttempts = defaultMaxReferenceAttempts
	}
	if s.opts.MaxBookingAttempts <= 0 {
		s.opts.MaxBookingAttempts = 3
	}
	if s.opts.LockRetryInterval <= 0 {
		s.opts.LockRetryInterval = 50 * time.Millisecond
	}
	if s.opts.Currency == "" {
		s.opts.Currency = "usd"
	}
	if s.opts.NewReference == nil {
		s.opts.NewReference = ReferenceGenerator("PNR", 7)
	}
	return s
}

// ---------------- CREATE ----------------

func (s *Service) CreateBooking(ctx context.Context, p models.Principal, req models.CreateBookingRequest) (*models.BookingDetails, error) {
	seats, err := s.validateCreate(p, req)
	if err != nil {
		return nil, err
	}
	scheduleID := strings.TrimSpace(req.ScheduleID)

	schedule, err := s.Store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, s.lookupError(err, "schedule", scheduleID)
	}
	bus, err := s.Store.GetBus(ctx, schedule.BusID)
	if err != nil {
		return nil, s.lookupError(err, "bus", schedule.BusID)
	}
	if bus.TotalSeats > 0 && len(seats) > bus.TotalSeats {
		return nil, validationError("bus %s has only %d seats", bus.Name, bus.TotalSeats)
	}
	if req.TotalFare != nil {
		s.Logger.Debug("BOOKING", fmt.Sprintf("Ignoring client supplied fare %.2f for schedule %s", *req.TotalFare, scheduleID))
	}

	owner := uuid.NewString()
	if err := s.acquireSeats(ctx, scheduleID, seats, owner); err != nil {
		return nil, err
	}
	defer s.releaseSeats(scheduleID, seats, owner)

	var b *models.Booking
	for attempt := 1; ; attempt++ {
		b, err = s.reserve(ctx, p.ID, schedule, seats)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDuplicateReference) || attempt >= s.opts.MaxBookingAttempts {
			return nil, err
		}
		s.Logger.Warn("BOOKING", fmt.Sprintf("Ticket reference collided on insert, retrying booking (attempt %d/%d)", attempt, s.opts.MaxBookingAttempts))
	}

	s.Logger.LogBooking("CREATE", b.ID, fmt.Sprintf("PNR %s seats %v on schedule %s, fare %.2f", b.PNRNumber, b.SelectedSeats, b.ScheduleID, b.TotalFare))

	if s.opts.HoldTTL > 0 {
		if err := s.Holds.StartHold(ctx, b.ID, s.opts.HoldTTL); err != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("Failed to start payment hold for booking %s: %v", b.ID, err))
		}
	}
	s.publish(ctx, models.BookingCreated, *b, models.SeatStatusHeld)

	return s.details(ctx, b, schedule, bus), nil
}

func (s *Service) validateCreate(p models.Principal, req models.CreateBookingRequest) ([]string, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, validationError("authenticated user is required")
	}
	if strings.TrimSpace(req.ScheduleID) == "" {
		return nil, validationError("scheduleId is required")
	}
	if len(req.SelectedSeats) == 0 {
		return nil, validationError("at least one seat must be selected")
	}
	if len(req.SelectedSeats) > s.opts.MaxSeatsPerBooking {
		return nil, validationError("at most %d seats can be booked at once", s.opts.MaxSeatsPerBooking)
	}
	seen := make(map[string]bool, len(req.SelectedSeats))
	seats := make([]string, 0, len(req.SelectedSeats))
	for _, raw := range req.SelectedSeats {
		seat := strings.TrimSpace(raw)
		if seat == "" {
			return nil, validationError("seat labels must not be empty")
		}
		if seen[seat] {
			return nil, validationError("seat %s is selected more than once", seat)
		}
		seen[seat] = true
		seats = append(seats, seat)
	}
	return seats, nil
}

// acquireSeats waits up to LockWait for seats locked by in-flight requests.
func (s *Service) acquireSeats(ctx context.Context, scheduleID string, seats []string, owner string) error {
	deadline := time.Now().Add(s.opts.LockWait)
	for {
		ok, busy, err := s.Locker.LockSeats(ctx, scheduleID, seats, owner)
		if err != nil {
			return s.infra("lock seats", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			s.Logger.Info("BOOKING", fmt.Sprintf("Seats %v on schedule %s are locked by another request", busy, scheduleID))
			return &SeatConflictError{ScheduleID: scheduleID, Seats: busy, InFlight: true}
		}
		select {
		case <-ctx.Done():
			return s.infra("wait for seat lock", ctx.Err())
		case <-time.After(s.opts.LockRetryInterval):
		}
	}
}

func (s *Service) releaseSeats(scheduleID string, seats []string, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Locker.UnlockSeats(ctx, scheduleID, seats, owner); err != nil {
		s.Logger.Warn("BOOKING", fmt.Sprintf("Failed to release seat locks on schedule %s: %v", scheduleID, err))
	}
}

// reserve runs conflict check, allocation and insert as one critical section on the schedule.
func (s *Service) reserve(ctx context.Context, userID string, schedule *models.Schedule, seats []string) (*models.Booking, error) {
	var created *models.Booking
	err := s.Store.WithScheduleLock(ctx, schedule.ID, func(ctx context.Context, tx Tx) error {
		result, err := CheckConflict(ctx, tx, schedule.ID, seats)
		if err != nil {
			return s.infra("check seat conflicts", err)
		}
		if !result.OK {
			return &SeatConflictError{ScheduleID: schedule.ID, Seats: result.ConflictingSeats, Holders: result.Holders}
		}

		allocator := Allocator{
			Generate:    s.opts.NewReference,
			Exists:      tx.ReferenceExists,
			MaxAttempts: s.opts.MaxReferenceAttempts,
		}
		ref, err := allocator.Allocate(ctx)
		if err != nil {
			if errors.Is(err, ErrAllocationExhausted) {
				s.Logger.Error("BOOKING", fmt.Sprintf("Ticket reference allocation exhausted: %v", err))
				return err
			}
			return s.infra("allocate ticket reference", err)
		}

		now := s.now()
		b := &models.Booking{
			ID:            uuid.NewString(),
			UserID:        userID,
			ScheduleID:    schedule.ID,
			BusID:         schedule.BusID,
			SelectedSeats: seats,
			TotalFare:     schedule.Fare * float64(len(seats)),
			Status:        models.BookingStatusPending,
			PNRNumber:     ref,
			PaymentStatus: models.PaymentStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			if errors.Is(err, models.ErrDuplicateKey) {
				return fmt.Errorf("%w: %s", ErrDuplicateReference, ref)
			}
			return s.infra("insert booking", err)
		}
		created = b
		return nil
	})
	if err != nil {
		if IsBusinessError(err) || IsRetryable(err) || errors.Is(err, ErrInfrastructure) {
			return nil, err
		}
		return nil, s.infra("schedule transaction", err)
	}
	return created, nil
}

// ---------------- CONFIRM ----------------

// ConfirmBooking confirms a paid booking on behalf of its owner. Confirming twice is a no-op.
func (s *Service) ConfirmBooking(ctx context.Context, p models.Principal, bookingID, paymentReference string) (*models.Booking, error) {
	bookingID = strings.TrimSpace(bookingID)
	paymentReference = strings.TrimSpace(paymentReference)
	if bookingID == "" || paymentReference == "" {
		return nil, validationError("bookingId and paymentIntentId are required")
	}

	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != p.ID {
		s.Logger.LogSecurity("CONFIRM_DENIED", fmt.Sprintf("user %s tried to confirm booking %s", p.ID, b.ID))
		return nil, fmt.Errorf("%w: booking belongs to another user", ErrForbidden)
	}
	return s.confirm(ctx, b, paymentReference, false)
}

// HandlePaymentSucceeded confirms a booking from a verified processor notification.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, bookingID, intentID, userID string) (*models.Booking, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if userID != "" && userID != b.UserID {
		s.Logger.LogSecurity("WEBHOOK_MISMATCH", fmt.Sprintf("intent %s names user %s but booking %s belongs to %s", intentID, userID, b.ID, b.UserID))
		return nil, fmt.Errorf("%w: payment user does not own booking", ErrForbidden)
	}
	return s.confirm(ctx, b, intentID, true)
}

func (s *Service) confirm(ctx context.Context, b *models.Booking, paymentReference string, verified bool) (*models.Booking, error) {
	switch b.Status {
	case models.BookingStatusConfirmed:
		s.Logger.LogBooking("CONFIRM", b.ID, "already confirmed, nothing to do")
		return b, nil
	case models.BookingStatusCancelled:
		if verified {
			return s.settleLatePayment(ctx, b, paymentReference)
		}
		return nil, transitionError("booking %s is cancelled", b.PNRNumber)
	}

	if b.PaymentIntentID != "" && b.PaymentIntentID != paymentReference {
		s.Logger.LogSecurity("PAYMENT_MISMATCH", fmt.Sprintf("booking %s expects intent %s, got %s", b.ID, b.PaymentIntentID, paymentReference))
		return nil, validationError("payment reference does not match this booking")
	}
	if !verified {
		if err := s.verifyPayment(ctx, b, paymentReference); err != nil {
			return nil, err
		}
	}

	now := s.now()
	updated := *b
	updated.Status = models.BookingStatusConfirmed
	updated.PaymentReference = paymentReference
	updated.PaymentStatus = models.PaymentStatusSucceeded
	updated.PaymentDate = &now
	updated.UpdatedAt = now

	ok, err := s.Store.TransitionBooking(ctx, &updated, models.BookingStatusPending)
	if err != nil {
		return nil, s.infra("confirm booking", err)
	}
	if !ok {
		current, err := s.loadBooking(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == models.BookingStatusConfirmed {
			return current, nil
		}
		return nil, transitionError("booking %s is %s", current.PNRNumber, current.Status)
	}

	s.Logger.LogBooking("CONFIRM", updated.ID, fmt.Sprintf("PNR %s confirmed with payment %s", updated.PNRNumber, paymentReference))
	if err := s.Holds.ClearHold(ctx, updated.ID); err != nil {
		s.Logger.Warn("BOOKING", fmt.Sprintf("Failed to clear payment hold for booking %s: %v", updated.ID, err))
	}
	s.publish(ctx, models.BookingConfirmed, updated, models.SeatStatusBooked)
	return &updated, nil
}

// settleLatePayment handles money captured for a booking released before payment, usually
// by hold expiry racing the customer. The booking is reinstated when its seats are still
// free, otherwise the payment is refunded. Bookings cancelled after confirmation keep
// payment status succeeded and are never reinstated.
func (s *Service) settleLatePayment(ctx context.Context, b *models.Booking, intentID string) (*models.Booking, error) {
	switch b.PaymentStatus {
	case models.PaymentStatusSucceeded:
		return nil, transitionError("booking %s was cancelled after payment", b.PNRNumber)
	case models.PaymentStatusRefunded:
		return nil, transitionError("booking %s is cancelled and payment %s was refunded", b.PNRNumber, b.PaymentReference)
	}
	s.Logger.LogSecurity("LATE_PAYMENT", fmt.Sprintf("payment %s succeeded for cancelled booking %s (PNR %s)", intentID, b.ID, b.PNRNumber))

	now := s.now()
	paid := *b
	paid.PaymentReference = intentID
	paid.PaymentStatus = models.PaymentStatusSucceeded
	paid.PaymentDate = &now
	paid.UpdatedAt = now

	reinstated, err := s.reinstate(ctx, &paid)
	if err == nil {
		return reinstated, nil
	}
	var conflict *SeatConflictError
	if !errors.As(err, &conflict) {
		return nil, err
	}
	return nil, s.refundLatePayment(ctx, &paid, conflict.Seats)
}

// reinstate confirms a cancelled booking if nobody has taken its seats since.
func (s *Service) reinstate(ctx context.Context, paid *models.Booking) (*models.Booking, error) {
	owner := uuid.NewString()
	if err := s.acquireSeats(ctx, paid.ScheduleID, paid.SelectedSeats, owner); err != nil {
		return nil, err
	}
	defer s.releaseSeats(paid.ScheduleID, paid.SelectedSeats, owner)

	confirmed := *paid
	confirmed.Status = models.BookingStatusConfirmed
	confirmed.CancelledAt = nil

	err := s.Store.WithScheduleLock(ctx, paid.ScheduleID, func(ctx context.Context, tx Tx) error {
		result, err := CheckConflict(ctx, tx, paid.ScheduleID, paid.SelectedSeats)
		if err != nil {
			return s.infra("check seat conflicts", err)
		}
		if !result.OK {
			return &SeatConflictError{ScheduleID: paid.ScheduleID, Seats: result.ConflictingSeats, Holders: result.Holders}
		}
		ok, err := tx.TransitionBooking(ctx, &confirmed, models.BookingStatusCancelled)
		if err != nil {
			return s.infra("reinstate booking", err)
		}
		if !ok {
			return transitionError("booking %s changed while settling payment %s", paid.PNRNumber, paid.PaymentReference)
		}
		return nil
	})
	if err != nil {
		if IsBusinessError(err) || errors.Is(err, ErrInfrastructure) {
			return nil, err
		}
		return nil, s.infra("schedule transaction", err)
	}

	s.Logger.LogBooking("REINSTATE", confirmed.ID, fmt.Sprintf("PNR %s confirmed by late payment %s, seats %v still free", confirmed.PNRNumber, confirmed.PaymentReference, confirmed.SelectedSeats))
	s.publish(ctx, models.BookingConfirmed, confirmed, models.SeatStatusBooked)
	return &confirmed, nil
}

// refundLatePayment returns a payment whose seats went to another booking. The payment
// is recorded only after the refund succeeds so a failed refund is retried on redelivery.
func (s *Service) refundLatePayment(ctx context.Context, paid *models.Booking, taken []string) error {
	s.Logger.Error("PAYMENT", fmt.Sprintf("Seats %v of cancelled booking %s were rebooked before payment %s arrived, refunding", taken, paid.ID, paid.PaymentReference))
	if s.Payments == nil {
		return s.infra("refund late payment", payment.ErrNotConfigured)
	}
	if err := s.Payments.Refund(context.WithoutCancel(ctx), paid.PaymentReference); err != nil {
		return s.infra("refund late payment", err)
	}

	refunded := *paid
	refunded.PaymentStatus = models.PaymentStatusRefunded
	if _, err := s.Store.TransitionBooking(ctx, &refunded, models.BookingStatusCancelled); err != nil {
		return s.infra("record refund", err)
	}
	s.Logger.LogBooking("REFUND", refunded.ID, fmt.Sprintf("payment %s refunded, seats %v no longer available", refunded.PaymentReference, taken))
	return transitionError("booking %s was released before payment; payment %s was refunded", refunded.PNRNumber, refunded.PaymentReference)
}

// verifyPayment asks the processor whether the referenced intent paid for this booking.
func (s *Service) verifyPayment(ctx context.Context, b *models.Booking, reference string) error {
	if s.Payments == nil {
		return nil
	}
	intent, err := s.Payments.GetIntent(ctx, reference)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidRequest) {
			return validationError("unknown payment reference")
		}
		return s.infra("verify payment", err)
	}
	if intent.Metadata[payment.MetadataBookingID] != b.ID {
		return validationError("payment reference does not match this booking")
	}
	if intent.Status != payment.IntentSucceeded {
		return fmt.Errorf("%w: payment is %s", ErrPaymentNotCompleted, intent.Status)
	}
	return nil
}

// ---------------- CANCEL ----------------

// CancelBooking cancels a booking for its owner or an admin.
// Pending bookings can always be cancelled; confirmed ones only before the cancellation window.
// Cancelling a cancelled booking succeeds without side effects.
func (s *Service) CancelBooking(ctx context.Context, p models.Principal, bookingID string) (*models.Booking, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, validationError("bookingId is required")
	}
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != p.ID && !p.IsAdmin() {
		s.Logger.LogSecurity("CANCEL_DENIED", fmt.Sprintf("user %s tried to cancel booking %s", p.ID, b.ID))
		return nil, fmt.Errorf("%w: booking belongs to another user", ErrForbidden)
	}
	return s.cancel(ctx, b)
}

// ExpireBooking cancels a booking whose payment hold ran out, if it is still pending.
func (s *Service) ExpireBooking(ctx context.Context, bookingID string) error {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status != models.BookingStatusPending {
		s.Logger.Debug("BOOKING", fmt.Sprintf("Hold expired for booking %s in status %s, ignoring", b.ID, b.Status))
		return nil
	}
	s.Logger.LogBooking("EXPIRE", b.ID, "payment hold expired")
	_, err = s.cancel(ctx, b)
	if errors.Is(err, ErrInvalidTransition) {
		return nil
	}
	return err
}

// ExpireStaleHolds cancels pending bookings whose hold ran out without an expiry event
// reaching this service, for example while it was down. It returns how many it released.
func (s *Service) ExpireStaleHolds(ctx context.Context) (int, error) {
	if s.opts.HoldTTL <= 0 {
		return 0, nil
	}
	stale, err := s.Store.PendingBookingsCreatedBefore(ctx, s.now().Add(-s.opts.HoldTTL))
	if err != nil {
		return 0, s.infra("list stale holds", err)
	}
	released := 0
	for i := range stale {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}
		if err := s.ExpireBooking(ctx, stale[i].ID); err != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("Failed to expire stale booking %s: %v", stale[i].ID, err))
			continue
		}
		released++
	}
	if released > 0 {
		s.Logger.Info("BOOKING", fmt.Sprintf("Released %d stale payment holds", released))
	}
	return released, nil
}

// RunHoldSweeper calls ExpireStaleHolds now and then every interval until ctx is done.
func (s *Service) RunHoldSweeper(ctx context.Context, interval time.Duration) {
	if _, err := s.ExpireStaleHolds(ctx); err != nil && ctx.Err() == nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("Stale hold sweep failed: %v", err))
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireStaleHolds(ctx); err != nil && ctx.Err() == nil {
				s.Logger.Error("BOOKING", fmt.Sprintf("Stale hold sweep failed: %v", err))
			}
		}
	}
}

// HandlePaymentCanceled cancels a pending booking whose current intent was cancelled at the processor.
func (s *Service) HandlePaymentCanceled(ctx context.Context, bookingID, intentID string) error {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status != models.BookingStatusPending || b.PaymentIntentID != intentID {
		return nil
	}
	_, err = s.cancel(ctx, b)
	return err
}

func (s *Service) cancel(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	switch b.Status {
	case models.BookingStatusCancelled:
		return b, nil
	case models.BookingStatusConfirmed:
		schedule, err := s.Store.GetSchedule(ctx, b.ScheduleID)
		if err != nil {
			return nil, s.lookupError(err, "schedule", b.ScheduleID)
		}
		if schedule.DepartureTime.Sub(s.now()) <= s.opts.CancellationWindow {
			return nil, transitionError("confirmed bookings can only be cancelled more than %s before departure", s.opts.CancellationWindow)
		}
	}

	from := b.Status
	now := s.now()
	updated := *b
	updated.Status = models.BookingStatusCancelled
	updated.CancelledAt = &now
	updated.UpdatedAt = now
	if from == models.BookingStatusPending {
		updated.PaymentStatus = models.PaymentStatusCancelled
	}

	ok, err := s.Store.TransitionBooking(ctx, &updated, from)
	if err != nil {
		return nil, s.infra("cancel booking", err)
	}
	if !ok {
		current, err := s.loadBooking(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == models.BookingStatusCancelled {
			return current, nil
		}
		return nil, transitionError("booking %s changed to %s concurrently, retry", current.PNRNumber, current.Status)
	}

	s.Logger.LogBooking("CANCEL", updated.ID, fmt.Sprintf("PNR %s cancelled from %s, seats %v released", updated.PNRNumber, from, updated.SelectedSeats))
	if from == models.BookingStatusPending && b.PaymentIntentID != "" && s.Payments != nil {
		if err := s.Payments.CancelIntent(context.WithoutCancel(ctx), b.PaymentIntentID); err != nil {
			s.Logger.Warn("PAYMENT", fmt.Sprintf("Failed to cancel payment intent %s for booking %s: %v", b.PaymentIntentID, b.ID, err))
		}
	}
	if err := s.Holds.ClearHold(ctx, updated.ID); err != nil {
		s.Logger.Warn("BOOKING", fmt.Sprintf("Failed to clear payment hold for booking %s: %v", updated.ID, err))
	}
	s.publish(ctx, models.BookingCancelled, updated, models.SeatStatusAvailable)
	return &updated, nil
}

// ---------------- PAYMENT ----------------

// CreatePaymentIntent opens, or reuses, a processor intent for the booking's recorded fare.
func (s *Service) CreatePaymentIntent(ctx context.Context, p models.Principal, bookingID string) (*models.PaymentIntentResponse, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, validationError("bookingId is required")
	}
	if s.Payments == nil {
		return nil, s.infra("create payment intent", payment.ErrNotConfigured)
	}

	unlock := s.intentLocks.Lock(bookingID)
	defer unlock()

	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != p.ID {
		s.Logger.LogSecurity("PAYMENT_DENIED", fmt.Sprintf("user %s tried to pay for booking %s", p.ID, b.ID))
		return nil, fmt.Errorf("%w: booking belongs to another user", ErrForbidden)
	}
	switch b.Status {
	case models.BookingStatusConfirmed:
		return nil, transitionError("booking %s is already paid", b.PNRNumber)
	case models.BookingStatusCancelled:
		return nil, transitionError("booking %s is cancelled", b.PNRNumber)
	}

	amount := int64(math.Round(b.TotalFare * 100))
	if amount <= 0 {
		return nil, validationError("booking has no payable amount")
	}

	if b.PaymentIntentID != "" {
		existing, err := s.Payments.GetIntent(ctx, b.PaymentIntentID)
		if err != nil {
			s.Logger.Warn("PAYMENT", fmt.Sprintf("Could not retrieve intent %s, creating a new one: %v", b.PaymentIntentID, err))
		} else if existing.Status.Reusable() && existing.Amount == amount {
			s.Logger.Info("PAYMENT", fmt.Sprintf("Reusing payment intent %s for booking %s", existing.ID, b.ID))
			return intentResponse(existing), nil
		}
	}

	intent, err := s.Payments.CreateIntent(ctx, payment.IntentRequest{
		Amount:    amount,
		Currency:  s.opts.Currency,
		BookingID: b.ID,
		UserID:    b.UserID,
		PNRNumber: b.PNRNumber,
	})
	if err != nil {
		if errors.Is(err, payment.ErrDeclined) || errors.Is(err, payment.ErrInvalidRequest) {
			return nil, validationError("%s", payment.PublicMessage(err))
		}
		return nil, s.infra("create payment intent", err)
	}
	if err := s.Store.SetPaymentIntent(ctx, b.ID, intent.ID); err != nil {
		return nil, s.infra("record payment intent", err)
	}
	s.Logger.LogBooking("PAYMENT", b.ID, fmt.Sprintf("intent %s created for %d %s", intent.ID, amount, s.opts.Currency))
	return intentResponse(intent), nil
}

// RecordPaymentFailure marks the payment of a pending booking as failed; the seats stay held until the hold expires.
func (s *Service) RecordPaymentFailure(ctx context.Context, bookingID, intentID string) error {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.PaymentIntentID != "" && b.PaymentIntentID != intentID {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Ignoring failure of stale intent %s for booking %s", intentID, b.ID))
		return nil
	}
	ok, err := s.Store.SetPaymentStatus(ctx, b.ID, models.PaymentStatusFailed)
	if err != nil {
		return s.infra("record payment failure", err)
	}
	if ok {
		s.Logger.LogBooking("PAYMENT", b.ID, fmt.Sprintf("payment %s failed", intentID))
	}
	return nil
}

func intentResponse(i *payment.Intent) *models.PaymentIntentResponse {
	return &models.PaymentIntentResponse{
		ClientSecret:    i.ClientSecret,
		PaymentIntentID: i.ID,
		Amount:          i.Amount,
		Currency:        i.Currency,
	}
}

// ---------------- READS ----------------

func (s *Service) GetBooking(ctx context.Context, p models.Principal, bookingID string) (*models.BookingDetails, error) {
	b, err := s.loadBooking(ctx, strings.TrimSpace(bookingID))
	if err != nil {
		return nil, err
	}
	if b.UserID != p.ID && !p.IsAdmin() {
		return nil, fmt.Errorf("%w: booking belongs to another user", ErrForbidden)
	}
	return s.details(ctx, b, nil, nil), nil
}

// ListUserBookings returns the caller's bookings, newest first.
func (s *Service) ListUserBookings(ctx context.Context, p models.Principal) ([]models.BookingDetails, error) {
	bookings, err := s.Store.ListBookingsByUser(ctx, p.ID)
	if err != nil {
		return nil, s.infra("list user bookings", err)
	}
	return s.detailsList(ctx, bookings), nil
}

func (s *Service) ListAllBookings(ctx context.Context, p models.Principal) ([]models.BookingDetails, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: admin access required", ErrForbidden)
	}
	bookings, err := s.Store.ListBookings(ctx)
	if err != nil {
		return nil, s.infra("list bookings", err)
	}
	return s.detailsList(ctx, bookings), nil
}

// TicketQR renders the e-ticket QR code of a confirmed booking.
func (s *Service) TicketQR(ctx context.Context, p models.Principal, bookingID string) ([]byte, error) {
	if s.Tickets == nil {
		return nil, s.infra("render ticket", errors.New("ticket encoder not configured"))
	}
	b, err := s.loadBooking(ctx, strings.TrimSpace(bookingID))
	if err != nil {
		return nil, err
	}
	if b.UserID != p.ID && !p.IsAdmin() {
		return nil, fmt.Errorf("%w: booking belongs to another user", ErrForbidden)
	}
	if b.Status != models.BookingStatusConfirmed {
		return nil, transitionError("tickets are issued for confirmed bookings only")
	}
	schedule, err := s.Store.GetSchedule(ctx, b.ScheduleID)
	if err != nil {
		return nil, s.lookupError(err, "schedule", b.ScheduleID)
	}
	png, err := s.Tickets.Encode(models.TicketPayload{
		BookingID:     b.ID,
		PNRNumber:     b.PNRNumber,
		ScheduleID:    b.ScheduleID,
		Seats:         b.SelectedSeats,
		Source:        schedule.Source,
		Destination:   schedule.Destination,
		DepartureTime: schedule.DepartureTime,
		IssuedAt:      s.now(),
	})
	if err != nil {
		return nil, s.infra("render ticket", err)
	}
	return png, nil
}

// ---------------- HELPERS ----------------

func (s *Service) loadBooking(ctx context.Context, id string) (*models.Booking, error) {
	if id == "" {
		return nil, validationError("bookingId is required")
	}
	b, err := s.Store.GetBooking(ctx, id)
	if err != nil {
		return nil, s.lookupError(err, "booking", id)
	}
	return b, nil
}

func (s *Service) lookupError(err error, kind, id string) error {
	if errors.Is(err, models.ErrRecordNotFound) {
		return notFoundError("%s %s not found", kind, id)
	}
	return s.infra("load "+kind, err)
}

// infra logs an unexpected failure and tags it as ErrInfrastructure.
func (s *Service) infra(op string, err error) error {
	if errors.Is(err, ErrInfrastructure) {
		return err
	}
	s.Logger.Error("BOOKING", fmt.Sprintf("%s: %v", op, err))
	return fmt.Errorf("%s: %w: %w", op, ErrInfrastructure, err)
}

func (s *Service) publish(ctx context.Context, t models.BookingEventType, b models.Booking, seatStatus models.SeatStatus) {
	ctx = context.WithoutCancel(ctx)
	if err := s.Events.PublishBookingEvent(ctx, models.NewBookingEvent(t, b)); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for booking %s: %v", t, b.ID, err))
	}
	if err := s.Events.PublishSeatStatus(ctx, models.NewSeatStatusEvent(b, seatStatus)); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish seat status %s for booking %s: %v", seatStatus, b.ID, err))
	}
}

// details enriches a booking with display data. Lookups are best effort.
func (s *Service) details(ctx context.Context, b *models.Booking, schedule *models.Schedule, bus *models.Bus) *models.BookingDetails {
	d := &models.BookingDetails{Booking: *b, Schedule: schedule, Bus: bus}
	if d.Schedule == nil {
		if sc, err := s.Store.GetSchedule(ctx, b.ScheduleID); err == nil {
			d.Schedule = sc
		} else if !errors.Is(err, models.ErrRecordNotFound) {
			s.Logger.Warn("BOOKING", fmt.Sprintf("Failed to load schedule %s for booking %s: %v", b.ScheduleID, b.ID, err))
		}
	}
	if d.Bus == nil {
		if bu, err := s.Store.GetBus(ctx, b.BusID); err == nil {
			d.Bus = bu
		} else if !errors.Is(err, models.ErrRecordNotFound) {
			s.Logger.Warn("BOOKING", fmt.Sprintf("Failed to load bus %s for booking %s: %v", b.BusID, b.ID, err))
		}
	}
	if u, err := s.Store.GetUser(ctx, b.UserID); err == nil {
		d.User = &models.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
	} else if !errors.Is(err, models.ErrRecordNotFound) {
		s.Logger.Warn("BOOKING", fmt.Sprintf("Failed to load user %s for booking %s: %v", b.UserID, b.ID, err))
	}
	return d
}

func (s *Service) detailsList(ctx context.Context, bookings []models.Booking) []models.BookingDetails {
	out := make([]models.BookingDetails, 0, len(bookings))
	for i := range bookings {
		out = append(out, *s.details(ctx, &bookings[i], nil, nil))
	}
	return out
}
