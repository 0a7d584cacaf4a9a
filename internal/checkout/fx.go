package checkout

import (
	"github.com/fenuasim/portal/internal/config"
	stripe "github.com/stripe/stripe-go/v82"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout",
	fx.Provide(NewStripeSessionCreator),
	fx.Provide(NewService),
	fx.Invoke(installAPIKey),
)

func installAPIKey(cfg config.Config) {
	if cfg.Stripe.SecretKey != "" {
		stripe.Key = cfg.Stripe.SecretKey
	}
}
