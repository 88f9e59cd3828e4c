package webhook

import (
	"context"
	"net/http"

	"github.com/boloastro/payments/internal/observability/metrics"
	"github.com/boloastro/payments/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Adapter   domain.Adapter
	Processor domain.Processor
	Metrics   *metrics.Metrics `optional:"true"`
}

// Service is the inbound webhook pipeline: verify the signature over the
// raw bytes, parse, then hand off to the processor. Verification failures
// stop everything before any database write.
type Service struct {
	log       *zap.Logger
	adapter   domain.Adapter
	processor domain.Processor
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("payment.webhook"),
		adapter:   p.Adapter,
		processor: p.Processor,
		metrics:   p.Metrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) (domain.Result, error) {
	if err := s.adapter.Verify(ctx, payload, headers); err != nil {
		s.metrics.ObserveSignatureReject()
		s.log.Warn("webhook signature rejected", zap.Error(err))
		return domain.ResultFailed, domain.ErrInvalidSignature
	}

	event, err := s.adapter.Parse(ctx, payload)
	if err != nil {
		s.log.Warn("webhook payload rejected", zap.Error(err))
		return domain.ResultFailed, err
	}

	return s.processor.ProcessEvent(ctx, event)
}
