package payment

import (
	"github.com/fenuasim/portal/internal/config"
	"github.com/fenuasim/portal/internal/payment/adapters"
	adapterstripe "github.com/fenuasim/portal/internal/payment/adapters/stripe"
	"github.com/fenuasim/portal/internal/payment/repository"
	"github.com/fenuasim/portal/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(newRegistry),
	fx.Provide(repository.New),
	fx.Provide(webhook.NewService),
)

func newRegistry(cfg config.Config) (*adapters.Registry, error) {
	if cfg.Stripe.WebhookSecret == "" {
		return adapters.NewRegistry(), nil
	}
	stripeAdapter, err := adapterstripe.NewAdapter(cfg.Stripe.WebhookSecret)
	if err != nil {
		return nil, err
	}
	return adapters.NewRegistry(stripeAdapter), nil
}
