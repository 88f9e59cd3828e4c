package entitlement

import (
	"github.com/boloastro/payments/internal/entitlement/repository"
	"github.com/boloastro/payments/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
