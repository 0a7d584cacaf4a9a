package checkout

import (
	"context"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

// SessionCreator abstracts the outbound processor call so tests can
// capture the exact parameters sent.
type SessionCreator interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeSessionCreator struct{}

// NewStripeSessionCreator returns the production SessionCreator backed
// by the Stripe SDK. The API key is installed globally at startup.
func NewStripeSessionCreator() SessionCreator {
	return stripeSessionCreator{}
}

func (stripeSessionCreator) Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return session.New(params)
}
