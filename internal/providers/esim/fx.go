package esim

import "go.uber.org/fx"

var Module = fx.Module("providers.esim",
	fx.Provide(NewTokenSource),
	fx.Provide(NewClient),
)
