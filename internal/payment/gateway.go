package payment

import (
	"context"
	"errors"
	"fmt"

	"ms-booking/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var (
	ErrNotConfigured  = errors.New("payment processor not configured")
	ErrDeclined       = errors.New("payment declined")
	ErrInvalidRequest = errors.New("invalid payment request")
	ErrUnavailable    = errors.New("payment processor unavailable")
)

const (
	MetadataBookingID = "booking_id"
	MetadataUserID    = "user_id"
	MetadataPNR       = "pnr"
)

type IntentStatus string

const (
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
)

// Reusable reports whether a client can still complete payment on the intent.
func (s IntentStatus) Reusable() bool {
	return s != IntentSucceeded && s != IntentCanceled
}

type IntentRequest struct {
	Amount    int64
	Currency  string
	BookingID string
	UserID    string
	PNRNumber string
}

type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       IntentStatus
	Metadata     map[string]string
}

// StripeGateway talks to Stripe payment intents.
type StripeGateway struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeGateway(secretKey string, log *logger.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, ErrNotConfigured
	}
	log.Info("STRIPE", "Stripe client initialized")
	return &StripeGateway{client: client.New(secretKey, nil), log: log}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataBookingID, req.BookingID)
	params.AddMetadata(MetadataUserID, req.UserID)
	params.AddMetadata(MetadataPNR, req.PNRNumber)

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent for booking %s: %v", req.BookingID, err))
		return nil, classify(err)
	}
	g.log.Info("STRIPE", fmt.Sprintf("Created payment intent %s for booking %s (%d %s)", pi.ID, req.BookingID, pi.Amount, pi.Currency))
	return fromStripe(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.client.PaymentIntents.Get(id, params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve payment intent %s: %v", id, err))
		return nil, classify(err)
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	if _, err := g.client.PaymentIntents.Cancel(id, params); err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to cancel payment intent %s: %v", id, err))
		return classify(err)
	}
	g.log.Info("STRIPE", fmt.Sprintf("Cancelled payment intent %s", id))
	return nil
}

// Refund returns the full captured amount of an intent. Repeated calls for one intent
// share an idempotency key so Stripe refunds it once.
func (g *StripeGateway) Refund(ctx context.Context, intentID string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + intentID)
	params.AddMetadata("reason", "booking_released_before_payment")

	r, err := g.client.Refunds.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to refund payment intent %s: %v", intentID, err))
		return classify(err)
	}
	g.log.Info("STRIPE", fmt.Sprintf("Refund %s issued for payment intent %s (%d %s, %s)", r.ID, intentID, r.Amount, r.Currency, r.Status))
	return nil
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       IntentStatus(pi.Status),
		Metadata:     pi.Metadata,
	}
}

// classify maps Stripe error types onto the package sentinels, keeping the original in the chain.
func classify(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard:
			return fmt.Errorf("%w: %s: %w", ErrDeclined, stripeErr.Msg, err)
		case stripe.ErrorTypeInvalidRequest:
			return fmt.Errorf("%w: %s: %w", ErrInvalidRequest, stripeErr.Msg, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// PublicMessage is the client-safe text for a classified payment error.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrDeclined):
		return "Your card was declined. Please use a different payment method."
	case errors.Is(err, ErrInvalidRequest):
		return "Invalid payment request. Please check your payment details."
	default:
		return "Payment service is temporarily unavailable. Please try again later."
	}
}
