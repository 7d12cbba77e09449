package asset

import (
	"github.com/0xkuwabatake/normies-membership/internal/asset/registry"
	"github.com/0xkuwabatake/normies-membership/internal/asset/service"
	"go.uber.org/fx"
)

var Module = fx.Module("asset.service",
	fx.Provide(registry.Provide),
	fx.Provide(service.NewService),
)
