package events

import (
	"github.com/0xkuwabatake/normies-membership/internal/events/service"
	"go.uber.org/fx"
)

var Module = fx.Module("events.service",
	fx.Provide(service.NewService),
)
