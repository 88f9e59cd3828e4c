package order

import (
	"github.com/boloastro/payments/internal/order/repository"
	"github.com/boloastro/payments/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
