package booking_api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/booking_api"
	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/testutil"
	"ms-booking/internal/tickets/qr"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/uptrace/bun"
)

const (
	jwtSecret     = "handler-test-secret"
	webhookSecret = "whsec_handler_test"
)

type apiFixture struct {
	router   http.Handler
	db       *bun.DB
	schedule *models.Schedule
	user     *models.User
	other    *models.User
	admin    *models.User
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	bus := testutil.SeedBus(t, db, 40)
	sched := testutil.SeedSchedule(t, db, bus.ID, 20, time.Now().Add(72*time.Hour))

	encoder, err := qr.NewQRGenerator("qr-secret")
	require.NoError(t, err)

	svc := booking.NewService(booking.Dependencies{
		Store:   bookingdb.New(db),
		Tickets: encoder,
	}, booking.Options{LockWait: time.Second, CancellationWindow: 24 * time.Hour})

	verifier, err := auth.NewHMACVerifier(jwtSecret)
	require.NoError(t, err)
	log := logger.NewNop()

	h := booking_api.NewHandler(svc, webhookSecret, log)
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		h.RegisterRoutes(r, auth.Middleware(verifier, log))
	})

	return &apiFixture{
		router:   r,
		db:       db,
		schedule: sched,
		user:     testutil.SeedUser(t, db, models.RoleUser),
		other:    testutil.SeedUser(t, db, models.RoleUser),
		admin:    testutil.SeedUser(t, db, models.RoleAdmin),
	}
}

func token(t *testing.T, u *models.User) string {
	t.Helper()
	signed, err := auth.SignHMAC(jwtSecret, jwt.MapClaims{
		"sub":  u.ID,
		"role": u.Role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path string, u *models.User, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, u))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func (f *apiFixture) createBooking(t *testing.T, u *models.User, seats ...string) models.BookingDetails {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/bookings", u, models.CreateBookingRequest{ScheduleID: f.schedule.ID, SelectedSeats: seats})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var details models.BookingDetails
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &details))
	return details
}

func TestCreateBookingRequiresToken(t *testing.T) {
	f := newAPI(t)
	rec := f.do(t, http.MethodPost, "/api/bookings", nil, models.CreateBookingRequest{ScheduleID: f.schedule.ID, SelectedSeats: []string{"1"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBookingAndConflict(t *testing.T) {
	f := newAPI(t)

	details := f.createBooking(t, f.user, "1", "2")
	assert.Equal(t, models.BookingStatusPending, details.Status)
	assert.Equal(t, 40.0, details.TotalFare)
	assert.NotEmpty(t, details.PNRNumber)
	require.NotNil(t, details.Schedule)

	rec := f.do(t, http.MethodPost, "/api/bookings", f.other, models.CreateBookingRequest{ScheduleID: f.schedule.ID, SelectedSeats: []string{"2", "3"}})
	require.Equal(t, http.StatusConflict, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)

	var conflict struct {
		ConflictingSeats []string `json:"conflictingSeats"`
		Detail           string   `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(env.Details, &conflict))
	assert.Equal(t, []string{"2"}, conflict.ConflictingSeats)
	assert.Contains(t, conflict.Detail, details.PNRNumber)
}

func TestCreateBookingValidation(t *testing.T) {
	f := newAPI(t)

	rec := f.do(t, http.MethodPost, "/api/bookings", f.user, models.CreateBookingRequest{ScheduleID: f.schedule.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/bookings", f.user, models.CreateBookingRequest{ScheduleID: "missing", SelectedSeats: []string{"1"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+token(t, f.user))
	raw := httptest.NewRecorder()
	f.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestGetBookingOwnership(t *testing.T) {
	f := newAPI(t)
	details := f.createBooking(t, f.user, "5")
	path := "/api/bookings/" + details.ID

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, f.user, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, f.admin, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, path, f.other, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/bookings/nope", f.user, nil).Code)
}

func TestListBookings(t *testing.T) {
	f := newAPI(t)
	f.createBooking(t, f.user, "1")
	f.createBooking(t, f.other, "2")

	rec := f.do(t, http.MethodGet, "/api/bookings/my-bookings", f.user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []models.BookingDetails
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, f.user.ID, mine[0].UserID)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/bookings/all", f.user, nil).Code)

	rec = f.do(t, http.MethodGet, "/api/bookings/all", f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []models.BookingDetails
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &all))
	assert.Len(t, all, 2)
}

func TestConfirmCancelAndTicket(t *testing.T) {
	f := newAPI(t)
	details := f.createBooking(t, f.user, "7")

	ticketPath := fmt.Sprintf("/api/bookings/%s/ticket", details.ID)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodGet, ticketPath, f.user, nil).Code)

	confirm := models.ConfirmBookingRequest{BookingID: details.ID, PaymentIntentID: "pi_handler_1"}
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/bookings/confirm", f.other, confirm).Code)

	rec := f.do(t, http.MethodPost, "/api/bookings/confirm", f.user, confirm)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var confirmed models.Booking
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &confirmed))
	assert.Equal(t, models.BookingStatusConfirmed, confirmed.Status)

	rec = f.do(t, http.MethodPost, "/api/bookings/confirm", f.user, confirm)
	assert.Equal(t, http.StatusOK, rec.Code)

	ticket := f.do(t, http.MethodGet, ticketPath, f.user, nil)
	require.Equal(t, http.StatusOK, ticket.Code)
	assert.Equal(t, "image/png", ticket.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(ticket.Body.Bytes(), []byte("\x89PNG")))

	cancelPath := fmt.Sprintf("/api/bookings/%s/cancel", details.ID)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, cancelPath, f.other, nil).Code)

	rec = f.do(t, http.MethodPost, cancelPath, f.user, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cancelled models.Booking
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &cancelled))
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/bookings/confirm", f.user, confirm).Code)
}

func TestCreatePaymentIntentWithoutGateway(t *testing.T) {
	f := newAPI(t)
	details := f.createBooking(t, f.user, "9")

	rec := f.do(t, http.MethodPost, "/api/payments/create-payment-intent", f.user, models.CreatePaymentIntentRequest{BookingID: details.ID})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "an unexpected error occurred", decode(t, rec).Error)
}

func signedEvent(eventType, intentID, bookingID, userID string) ([]byte, string) {
	payload := []byte(fmt.Sprintf(`{
  "id": "evt_handler",
  "object": "event",
  "type": %q,
  "data": {"object": {
    "id": %q, "object": "payment_intent", "amount": 2000, "currency": "usd", "status": "succeeded",
    "metadata": {"booking_id": %q, "user_id": %q}
  }}
}`, eventType, intentID, bookingID, userID))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: webhookSecret})
	return payload, signed.Header
}

func (f *apiFixture) webhook(t *testing.T, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookConfirmsBooking(t *testing.T) {
	f := newAPI(t)
	details := f.createBooking(t, f.user, "11")

	payload, sig := signedEvent("payment_intent.succeeded", "pi_hook_1", details.ID, f.user.ID)
	rec := f.webhook(t, payload, sig)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := f.do(t, http.MethodGet, "/api/bookings/"+details.ID, f.user, nil)
	var stored models.BookingDetails
	require.NoError(t, json.Unmarshal(decode(t, got).Data, &stored))
	assert.Equal(t, models.BookingStatusConfirmed, stored.Status)
	assert.Equal(t, "pi_hook_1", stored.PaymentReference)

	// Replays are acknowledged without changes.
	assert.Equal(t, http.StatusOK, f.webhook(t, payload, sig).Code)
}

func TestWebhookAcknowledgesBusinessFailures(t *testing.T) {
	f := newAPI(t)

	payload, sig := signedEvent("payment_intent.succeeded", "pi_hook_2", "unknown-booking", f.user.ID)
	assert.Equal(t, http.StatusOK, f.webhook(t, payload, sig).Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newAPI(t)
	details := f.createBooking(t, f.user, "12")

	payload, _ := signedEvent("payment_intent.succeeded", "pi_hook_3", details.ID, f.user.ID)
	rec := f.webhook(t, payload, "t=1,v1=bad")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	got := f.do(t, http.MethodGet, "/api/bookings/"+details.ID, f.user, nil)
	var stored models.BookingDetails
	require.NoError(t, json.Unmarshal(decode(t, got).Data, &stored))
	assert.Equal(t, models.BookingStatusPending, stored.Status)
}

func TestWebhookSettlesPaymentForReleasedBooking(t *testing.T) {
	f := newAPI(t)
	details := f.createBooking(t, f.user, "14")

	rec := f.do(t, http.MethodPost, "/api/bookings/"+details.ID+"/cancel", f.user, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	payload, sig := signedEvent("payment_intent.succeeded", "pi_hook_late", details.ID, f.user.ID)
	require.Equal(t, http.StatusOK, f.webhook(t, payload, sig).Code)

	got := f.do(t, http.MethodGet, "/api/bookings/"+details.ID, f.user, nil)
	var stored models.BookingDetails
	require.NoError(t, json.Unmarshal(decode(t, got).Data, &stored))
	assert.Equal(t, models.BookingStatusConfirmed, stored.Status)
	assert.Equal(t, models.PaymentStatusSucceeded, stored.PaymentStatus)
	assert.Equal(t, "pi_hook_late", stored.PaymentReference)
}
