package tier

import (
	"github.com/0xkuwabatake/normies-membership/internal/tier/repository"
	"github.com/0xkuwabatake/normies-membership/internal/tier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tier.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
