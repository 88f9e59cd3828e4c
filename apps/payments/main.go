package main

import (
	"github.com/boloastro/payments/internal/clock"
	"github.com/boloastro/payments/internal/config"
	"github.com/boloastro/payments/internal/entitlement"
	"github.com/boloastro/payments/internal/ledger"
	"github.com/boloastro/payments/internal/logger"
	"github.com/boloastro/payments/internal/migration"
	"github.com/boloastro/payments/internal/notification"
	"github.com/boloastro/payments/internal/observability/metrics"
	"github.com/boloastro/payments/internal/order"
	"github.com/boloastro/payments/internal/payment"
	"github.com/boloastro/payments/internal/server"
	"github.com/boloastro/payments/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		order.Module,
		ledger.Module,
		payment.Module,
		entitlement.Module,
		notification.Module,

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
