package main

import (
	"github.com/0xkuwabatake/normies-membership/internal/clock"
	"github.com/0xkuwabatake/normies-membership/internal/config"
	"github.com/0xkuwabatake/normies-membership/internal/logger"
	"github.com/0xkuwabatake/normies-membership/internal/migration"
	"github.com/0xkuwabatake/normies-membership/internal/observability"
	"github.com/0xkuwabatake/normies-membership/internal/remotemetrics"
	"github.com/0xkuwabatake/normies-membership/internal/server"
	"github.com/0xkuwabatake/normies-membership/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		remotemetrics.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
