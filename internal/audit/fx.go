package audit

import (
	"github.com/0xkuwabatake/normies-membership/internal/audit/repository"
	"github.com/0xkuwabatake/normies-membership/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
