package order

import (
	"github.com/fenuasim/portal/internal/order/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("order",
	fx.Provide(repository.New),
)
