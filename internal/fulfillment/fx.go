package fulfillment

import (
	"context"

	"github.com/fenuasim/portal/internal/notification"
	"github.com/fenuasim/portal/internal/payment/webhook"
	"github.com/fenuasim/portal/internal/providers/esim"
	"go.uber.org/fx"
)

var Module = fx.Module("fulfillment",
	fx.Provide(
		func(c *esim.Client) Provisioner { return c },
		func(s *notification.Service) Notifier { return s },
		NewQueue,
		func(q *Queue) webhook.FulfillmentQueue { return q },
	),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, q *Queue) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return q.Start(ctx) },
		OnStop:  func(ctx context.Context) error { return q.Stop(ctx) },
	})
}
