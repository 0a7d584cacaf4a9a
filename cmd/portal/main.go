package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/fenuasim/portal/internal/clock"
	"github.com/fenuasim/portal/internal/config"
	"github.com/fenuasim/portal/internal/migration"
	"github.com/fenuasim/portal/internal/observability"
	"github.com/fenuasim/portal/internal/server"
	"github.com/fenuasim/portal/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
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
