package domain

import (
	"context"
	"net/http"
)

// PaymentAdapter verifies and parses provider webhook deliveries.
type PaymentAdapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*CheckoutEvent, error)
}

type Service interface {
	// IngestWebhook verifies, parses and reconciles a delivery.
	// ErrAlreadyProcessed reports a duplicate that was acknowledged.
	// ErrEventIgnored never escapes; unhandled event types are
	// acknowledged silently.
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

type Repository interface {
	// InsertEvent archives a delivery, reporting whether the row was new.
	InsertEvent(ctx context.Context, event *EventRecord) (bool, error)
}
