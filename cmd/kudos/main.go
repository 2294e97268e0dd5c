package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kudos/internal/cache"
	"github.com/smallbiznis/kudos/internal/clock"
	"github.com/smallbiznis/kudos/internal/config"
	"github.com/smallbiznis/kudos/internal/gateway/mollie"
	"github.com/smallbiznis/kudos/internal/metricspush"
	"github.com/smallbiznis/kudos/internal/migration"
	"github.com/smallbiznis/kudos/internal/observability"
	"github.com/smallbiznis/kudos/internal/server"
	"github.com/smallbiznis/kudos/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		mollie.Module,

		server.Module,
		migration.Module,
		metricspush.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
