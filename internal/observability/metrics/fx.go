package metrics

import (
	"github.com/boloastro/payments/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("observability.metrics",
	fx.Provide(func(cfg config.Config) *Metrics {
		return WithConfig(Config{
			ServiceName: cfg.AppName,
			Environment: cfg.Environment,
		})
	}),
)
