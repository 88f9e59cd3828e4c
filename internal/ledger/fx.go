package ledger

import (
	"github.com/boloastro/payments/internal/ledger/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.ledger",
	fx.Provide(repository.Provide),
)
