package partner

import (
	"github.com/fenuasim/portal/internal/partner/repository"
	"github.com/fenuasim/portal/internal/partner/service"
	"go.uber.org/fx"
)

var Module = fx.Module("partner.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
