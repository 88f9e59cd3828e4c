package payment

import (
	"github.com/boloastro/payments/internal/payment/adapters/razorpay"
	"github.com/boloastro/payments/internal/payment/domain"
	"github.com/boloastro/payments/internal/payment/service"
	"github.com/boloastro/payments/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		fx.Annotate(razorpay.New, fx.As(new(domain.Adapter))),
		fx.Annotate(razorpay.New, fx.As(new(domain.LinkCreator))),
		service.NewProcessor,
		webhook.NewService,
	),
)
