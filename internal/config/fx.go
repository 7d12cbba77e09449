package config

import "go.uber.org/fx"

// Module wires environment and lifecycle configuration.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewLifecycleConfigHolder,
	),
)
