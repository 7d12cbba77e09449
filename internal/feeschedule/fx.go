package feeschedule

import (
	"github.com/0xkuwabatake/normies-membership/internal/feeschedule/repository"
	"github.com/0xkuwabatake/normies-membership/internal/feeschedule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("feeschedule.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
