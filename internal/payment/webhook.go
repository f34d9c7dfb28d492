package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

type EventType string

const (
	EventIntentSucceeded EventType = "payment_intent.succeeded"
	EventIntentFailed    EventType = "payment_intent.payment_failed"
	EventIntentCanceled  EventType = "payment_intent.canceled"
)

// Event is a verified payment notification.
type Event struct {
	ID        string
	Type      EventType
	Intent    Intent
	BookingID string
	UserID    string
}

// WebhookError represents an error that occurred during webhook processing
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

func AsWebhookError(err error) (*WebhookError, bool) {
	var werr *WebhookError
	if errors.As(err, &werr) {
		return werr, true
	}
	return nil, false
}

// ParseWebhook verifies the signature and decodes a payment intent event.
// Event types that carry no payment intent are returned with an empty Intent.
func ParseWebhook(payload []byte, signature, secret string) (*Event, error) {
	if secret == "" {
		return nil, &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Webhook signature verification failed",
			InternalError: fmt.Sprintf("webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	out := &Event{ID: event.ID, Type: EventType(event.Type)}
	switch out.Type {
	case EventIntentSucceeded, EventIntentFailed, EventIntentCanceled:
	default:
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("failed to unmarshal payment intent: %v", err),
			OriginalErr:   err,
		}
	}
	out.Intent = *fromStripe(&pi)
	out.BookingID = pi.Metadata[MetadataBookingID]
	out.UserID = pi.Metadata[MetadataUserID]
	if out.BookingID == "" {
		return nil, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid payment intent data",
			InternalError: fmt.Sprintf("payment intent %s has no %s in metadata", pi.ID, MetadataBookingID),
		}
	}
	return out, nil
}
