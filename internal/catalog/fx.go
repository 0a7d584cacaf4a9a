package catalog

import (
	"github.com/fenuasim/portal/internal/providers/esim"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog",
	fx.Provide(
		func(c *esim.Client) PackageLister { return c },
		NewService,
	),
)
