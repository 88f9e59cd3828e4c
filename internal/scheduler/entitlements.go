package scheduler

import (
	"context"

	"go.uber.org/zap"
)

// ReconcileEntitlementsJob grants access for SUCCESS orders that have no
// entitlement row, covering a crash between payment commit and grant.
func (s *Scheduler) ReconcileEntitlementsJob(ctx context.Context) error {
	orders, err := s.orders.ListSuccessWithoutEntitlement(ctx, s.db, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for i := range orders {
		order := &orders[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.entitlement.Grant(ctx, order.Phone, order.ProductType, order.ID, map[string]string{
			"payment_id": order.PaymentID,
			"reconciled": "true",
		}); err != nil {
			s.log.Warn("entitlement reconcile failed",
				zap.String("order_id", order.OrderID),
				zap.Error(err),
			)
			continue
		}
		s.log.Info("entitlement reconciled", zap.String("order_id", order.OrderID))
	}
	return nil
}
