package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	// InsertIfAbsent writes the order unless one already exists for the
	// same payment intent. Reports whether a row was inserted. The
	// unique index is the idempotency guarantee, not a prior read.
	InsertIfAbsent(ctx context.Context, order *Order) (bool, error)
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*Order, error)
	FindByID(ctx context.Context, id snowflake.ID) (*Order, error)
	UpdateFulfillmentStatus(ctx context.Context, id snowflake.ID, status string) error
	ListPendingFulfillment(ctx context.Context, limit int) ([]Order, error)

	SaveProvisionedSim(ctx context.Context, sim *ProvisionedSim) (bool, error)
	FindProvisionedSim(ctx context.Context, orderID snowflake.ID) (*ProvisionedSim, error)
}
