package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payora/internal/audit"
	"github.com/smallbiznis/payora/internal/authorization"
	"github.com/smallbiznis/payora/internal/clock"
	"github.com/smallbiznis/payora/internal/commission"
	"github.com/smallbiznis/payora/internal/commissionrule"
	"github.com/smallbiznis/payora/internal/config"
	"github.com/smallbiznis/payora/internal/migration"
	"github.com/smallbiznis/payora/internal/observability"
	"github.com/smallbiznis/payora/internal/publicid"
	"github.com/smallbiznis/payora/internal/server"
	"github.com/smallbiznis/payora/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		publicid.Module,
		migration.Module,

		// Functional domains
		audit.Module,
		authorization.Module,
		commissionrule.Module,
		commission.Module,

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
