package service

import (
	"context"
	"fmt"

	"github.com/boloastro/payments/internal/clock"
	entitlementdomain "github.com/boloastro/payments/internal/entitlement/domain"
	ledgerdomain "github.com/boloastro/payments/internal/ledger/domain"
	"github.com/boloastro/payments/internal/notification"
	notificationdomain "github.com/boloastro/payments/internal/notification/domain"
	"github.com/boloastro/payments/internal/observability/metrics"
	orderdomain "github.com/boloastro/payments/internal/order/domain"
	"github.com/boloastro/payments/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Ledger         ledgerdomain.Repository
	Orders         orderdomain.Repository
	Adapter        domain.Adapter
	EntitlementSvc entitlementdomain.Service
	Dispatcher     notificationdomain.Dispatcher
	Metrics        *metrics.Metrics `optional:"true"`
}

// Processor applies verified gateway events to orders. The webhook event
// ledger's unique event_id index is the only duplicate guard; everything
// after the insert runs under the order row lock.
type Processor struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	ledger      ledgerdomain.Repository
	orders      orderdomain.Repository
	adapter     domain.Adapter
	entitlement entitlementdomain.Service
	dispatcher  notificationdomain.Dispatcher
	metrics     *metrics.Metrics
}

func NewProcessor(p Params) domain.Processor {
	return &Processor{
		db:          p.DB,
		log:         p.Log.Named("payment.processor"),
		genID:       p.GenID,
		clock:       p.Clock,
		ledger:      p.Ledger,
		orders:      p.Orders,
		adapter:     p.Adapter,
		entitlement: p.EntitlementSvc,
		dispatcher:  p.Dispatcher,
		metrics:     p.Metrics,
	}
}

func (s *Processor) ProcessEvent(ctx context.Context, event *domain.Event) (domain.Result, error) {
	if event == nil || event.EventID == "" {
		return domain.ResultFailed, domain.ErrInvalidEvent
	}

	// Cheap pre-filter. The authoritative guard is the insert below.
	exists, err := s.ledger.Exists(ctx, s.db, event.EventID)
	if err != nil {
		return domain.ResultFailed, err
	}
	if exists {
		return s.handleExisting(ctx, event)
	}

	record := &ledgerdomain.WebhookEvent{
		ID:             s.genID.Generate(),
		EventID:        event.EventID,
		EventType:      event.Type,
		GatewayOrderID: event.GatewayOrderID,
		Payload:        event.RawPayload,
		Status:         ledgerdomain.StatusPending,
		CreatedAt:      s.clock.Now(),
	}
	inserted, err := s.ledger.TryInsert(ctx, s.db, record)
	if err != nil {
		return domain.ResultFailed, err
	}
	if !inserted {
		// Lost the race to a concurrent delivery of the same event.
		return s.handleExisting(ctx, event)
	}

	return s.handle(ctx, event)
}

// handleExisting decides what to do with a redelivered event id. Completed
// and in-flight events are duplicates; a prior failure is reclaimed and
// processed again.
func (s *Processor) handleExisting(ctx context.Context, event *domain.Event) (domain.Result, error) {
	record, err := s.ledger.Get(ctx, s.db, event.EventID)
	if err != nil {
		return domain.ResultFailed, err
	}
	if record == nil {
		return domain.ResultFailed, domain.ErrEventNotFound
	}
	switch record.Status {
	case ledgerdomain.StatusFailed:
		return s.handle(ctx, event)
	default:
		s.metrics.ObserveDuplicate()
		s.log.Info("duplicate webhook suppressed",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.Type),
		)
		return domain.ResultDuplicate, nil
	}
}

// handle dispatches a ledgered event to its type handler and records the
// terminal event status. Result semantics: SUCCESS means a mutation was
// applied, DUPLICATE means the order was already in the target state,
// INVALID_STATE means the transition is not allowed from the current state.
func (s *Processor) handle(ctx context.Context, event *domain.Event) (domain.Result, error) {
	var (
		result domain.Result
		err    error
	)
	switch event.Type {
	case domain.EventTypePaymentCaptured:
		result, err = s.handlePaymentCaptured(ctx, event)
	case domain.EventTypePaymentFailed:
		result, err = s.handlePaymentFailed(ctx, event)
	case domain.EventTypeRefundCreated:
		result, err = s.handleRefundCreated(ctx, event)
	default:
		result, err = domain.ResultFailed, fmt.Errorf("%w: %s", domain.ErrUnknownEventType, event.Type)
	}

	status := ledgerdomain.StatusCompleted
	errMsg := ""
	switch {
	case err != nil:
		status = ledgerdomain.StatusFailed
		errMsg = err.Error()
	case result == domain.ResultDuplicate, result == domain.ResultInvalidState:
		status = ledgerdomain.StatusDuplicate
	}
	if uerr := s.ledger.UpdateStatus(ctx, s.db, event.EventID, status, errMsg); uerr != nil {
		s.log.Error("update event status",
			zap.String("event_id", event.EventID),
			zap.Error(uerr),
		)
		if err == nil {
			err = uerr
		}
	}

	s.metrics.ObserveWebhookResult(event.Type, string(result))
	return result, err
}

func (s *Processor) handlePaymentCaptured(ctx context.Context, event *domain.Event) (domain.Result, error) {
	if event.GatewayOrderID == "" {
		return domain.ResultFailed, fmt.Errorf("%w: captured event without order id", domain.ErrInvalidEvent)
	}

	var (
		order  *orderdomain.Order
		result domain.Result
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		lockStart := s.clock.Now()
		var err error
		order, err = s.orders.GetByGatewayOrderIDLocked(ctx, tx, event.GatewayOrderID)
		s.metrics.ObserveOrderLockWait(s.clock.Now().Sub(lockStart))
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}

		switch {
		case order.Status == orderdomain.StatusSuccess && order.PaymentID == event.PaymentID:
			result = domain.ResultDuplicate
			return nil
		case !order.AwaitingPayment():
			result = domain.ResultInvalidState
			s.log.Warn("capture ignored for order state",
				zap.String("order_id", order.OrderID),
				zap.String("status", string(order.Status)),
				zap.String("event_id", event.EventID),
			)
			return nil
		}

		if event.AmountPaise != order.AmountPaise {
			return fmt.Errorf("%w: order %s expects %d paise, event carries %d",
				domain.ErrAmountMismatch, order.OrderID, order.AmountPaise, event.AmountPaise)
		}

		order.Status = orderdomain.StatusProcessing
		if err := s.orders.Save(ctx, tx, order); err != nil {
			return err
		}

		now := s.clock.Now()
		paidAt := event.OccurredAt
		if paidAt.IsZero() {
			paidAt = now
		}
		order.Status = orderdomain.StatusSuccess
		order.PaymentID = event.PaymentID
		order.PaymentMethod = event.Method
		order.ErrorCode = ""
		order.ErrorMessage = ""
		order.PaidAt = &paidAt
		if err := s.orders.Save(ctx, tx, order); err != nil {
			return err
		}

		result = domain.ResultSuccess
		return nil
	})
	if err != nil {
		return domain.ResultFailed, err
	}

	if result == domain.ResultSuccess {
		// Grant after commit, on the entitlement service's own connection.
		// A grant failure never unwinds the payment; the reconcile job
		// closes the gap, and the source_order_id guard makes replays safe.
		if gerr := s.entitlement.Grant(ctx, order.Phone, order.ProductType, order.ID, map[string]string{
			"payment_id": event.PaymentID,
			"event_id":   event.EventID,
		}); gerr != nil {
			s.log.Error("entitlement grant failed, will reconcile",
				zap.String("order_id", order.OrderID),
				zap.Error(gerr),
			)
		}
		s.log.Info("payment captured",
			zap.String("order_id", order.OrderID),
			zap.String("payment_id", event.PaymentID),
			zap.Int64("amount_paise", order.AmountPaise),
		)
		s.notify(ctx, notification.SuccessMessage(order))
	}
	return result, nil
}

func (s *Processor) handlePaymentFailed(ctx context.Context, event *domain.Event) (domain.Result, error) {
	if event.GatewayOrderID == "" {
		return domain.ResultFailed, fmt.Errorf("%w: failed event without order id", domain.ErrInvalidEvent)
	}

	var (
		order  *orderdomain.Order
		result domain.Result
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.orders.GetByGatewayOrderIDLocked(ctx, tx, event.GatewayOrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}

		switch order.Status {
		case orderdomain.StatusFailed:
			result = domain.ResultDuplicate
			return nil
		case orderdomain.StatusSuccess, orderdomain.StatusRefunded, orderdomain.StatusProcessing:
			// A late failure notice never clobbers a completed payment.
			result = domain.ResultInvalidState
			return nil
		}

		order.Status = orderdomain.StatusFailed
		order.ErrorCode = event.ErrorCode
		order.ErrorMessage = event.ErrorDescription
		if err := s.orders.Save(ctx, tx, order); err != nil {
			return err
		}
		result = domain.ResultSuccess
		return nil
	})
	if err != nil {
		return domain.ResultFailed, err
	}

	if result == domain.ResultSuccess {
		s.log.Info("payment failed",
			zap.String("order_id", order.OrderID),
			zap.String("error_code", event.ErrorCode),
		)
		s.notify(ctx, notification.FailureMessage(order))
	}
	return result, nil
}

func (s *Processor) handleRefundCreated(ctx context.Context, event *domain.Event) (domain.Result, error) {
	if event.PaymentID == "" {
		return domain.ResultFailed, fmt.Errorf("%w: refund event without payment id", domain.ErrInvalidEvent)
	}

	var (
		order  *orderdomain.Order
		result domain.Result
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.orders.GetByPaymentIDLocked(ctx, tx, event.PaymentID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}

		switch order.Status {
		case orderdomain.StatusRefunded:
			result = domain.ResultDuplicate
			return nil
		case orderdomain.StatusSuccess:
		default:
			result = domain.ResultInvalidState
			return nil
		}

		order.Status = orderdomain.StatusRefunded
		if err := s.orders.Save(ctx, tx, order); err != nil {
			return err
		}
		// Unlike the grant on capture, revocation rides the refund
		// transaction. If access cannot be dropped the order must not
		// commit as REFUNDED, otherwise the replay would dedupe and the
		// user would keep the product forever.
		if err := s.entitlement.RevokeIn(ctx, tx, order.Phone, order.ProductType, order.ID, "refund "+event.RefundID); err != nil {
			return err
		}
		result = domain.ResultSuccess
		return nil
	})
	if err != nil {
		return domain.ResultFailed, err
	}

	if result == domain.ResultSuccess {
		s.log.Info("payment refunded",
			zap.String("order_id", order.OrderID),
			zap.String("refund_id", event.RefundID),
		)
	}
	return result, nil
}

// RetryFailedEvent re-runs a FAILED ledger entry through its handler.
func (s *Processor) RetryFailedEvent(ctx context.Context, eventID string) (domain.Result, error) {
	record, err := s.ledger.Get(ctx, s.db, eventID)
	if err != nil {
		return domain.ResultFailed, err
	}
	if record == nil {
		return domain.ResultFailed, domain.ErrEventNotFound
	}
	if record.Status != ledgerdomain.StatusFailed {
		return domain.ResultFailed, fmt.Errorf("%w: event %s is %s", domain.ErrEventNotRetryable, eventID, record.Status)
	}

	event, err := s.adapter.Parse(ctx, record.Payload)
	if err != nil {
		return domain.ResultFailed, err
	}
	return s.handle(ctx, event)
}

func (s *Processor) notify(ctx context.Context, msg notificationdomain.Message) {
	ctx = context.WithoutCancel(ctx)
	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		s.metrics.ObserveNotification(string(msg.Kind), "error")
		return
	}
	s.metrics.ObserveNotification(string(msg.Kind), "sent")
}
