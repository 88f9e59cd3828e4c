package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/boloastro/payments/internal/notification"
	orderdomain "github.com/boloastro/payments/internal/order/domain"
	paymentdomain "github.com/boloastro/payments/internal/payment/domain"
	"go.uber.org/zap"
)

// RecoverAbandonedOrdersJob nudges users who created an order but never
// paid. A plain reminder goes out at most once per dedupe window; orders
// abandoned past the discount threshold get a one-time discounted link on a
// fresh order, since amounts are immutable per order.
func (s *Scheduler) RecoverAbandonedOrdersJob(ctx context.Context) error {
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.ReminderAfter)

	orders, err := s.orders.ListPendingOlderThan(ctx, s.db, cutoff, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}

	pricing := s.pricing.Get()
	for i := range orders {
		order := &orders[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.recoverOrder(ctx, order, now, pricing.AbandonedDiscountPct); err != nil {
			s.log.Warn("abandoned order recovery failed",
				zap.String("order_id", order.OrderID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Scheduler) recoverOrder(ctx context.Context, order *orderdomain.Order, now time.Time, discountPct int) error {
	var lastNudge sql.NullTime
	err := s.db.WithContext(ctx).Raw(
		`SELECT created_at FROM payment_reminder_log
		 WHERE order_id = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		order.ID,
	).Scan(&lastNudge).Error
	if err != nil {
		return err
	}
	if lastNudge.Valid && now.Sub(lastNudge.Time) < s.cfg.ReminderDedupe {
		return nil
	}

	age := now.Sub(order.CreatedAt)
	if age >= s.cfg.DiscountAfter && discountPct > 0 {
		var discountSent int64
		err := s.db.WithContext(ctx).Raw(
			`SELECT COUNT(1) FROM payment_reminder_log
			 WHERE order_id = ? AND kind = ?`,
			order.ID, reminderKindDiscount,
		).Scan(&discountSent).Error
		if err != nil {
			return err
		}
		if discountSent == 0 {
			return s.sendDiscountOffer(ctx, order, now, discountPct)
		}
	}

	linkExpired := order.ExpiresAt != nil && order.ExpiresAt.Before(now)
	if linkExpired {
		return nil
	}

	s.dispatch(ctx, notification.ReminderMessage(order))
	return s.appendReminderLog(ctx, order, reminderKindNudge, now)
}

// sendDiscountOffer creates a fresh order at the discounted price and points
// the user at its payment link. The original order is left to expire.
func (s *Scheduler) sendDiscountOffer(ctx context.Context, order *orderdomain.Order, now time.Time, discountPct int) error {
	pricing := s.pricing.Get()
	discounted := order.AmountPaise * int64(100-discountPct) / 100

	id := s.genID.Generate()
	orderID := fmt.Sprintf("ord_%s", id.String())
	expiresAt := now.Add(time.Duration(pricing.LinkExpiryMinutes) * time.Minute)

	link, err := s.links.CreatePaymentLink(ctx, paymentdomain.LinkRequest{
		Phone:       order.Phone,
		AmountPaise: discounted,
		Currency:    order.Currency,
		Description: fmt.Sprintf("Unlock %s (%d%% off)", order.ProductType, discountPct),
		ReferenceID: orderID,
		ExpireAt:    expiresAt,
		Notes: map[string]string{
			"user_phone":      order.Phone,
			"product_type":    string(order.ProductType),
			"discount_pct":    fmt.Sprintf("%d", discountPct),
			"abandoned_order": order.OrderID,
		},
	})
	if err != nil {
		return err
	}

	discountOrder := &orderdomain.Order{
		ID:             id,
		OrderID:        orderID,
		Phone:          order.Phone,
		ProductType:    order.ProductType,
		AmountPaise:    discounted,
		Currency:       order.Currency,
		Status:         orderdomain.StatusInitiated,
		GatewayOrderID: link.GatewayOrderID,
		PaymentLinkID:  link.ID,
		PaymentLink:    link.ShortURL,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      &expiresAt,
	}
	if err := s.orders.Create(ctx, s.db, discountOrder); err != nil {
		return err
	}

	s.dispatch(ctx, notification.DiscountMessage(order, discountPct, link.ShortURL))
	s.log.Info("discount offer sent",
		zap.String("abandoned_order_id", order.OrderID),
		zap.String("discount_order_id", orderID),
		zap.Int64("amount_paise", discounted),
	)
	return s.appendReminderLog(ctx, order, reminderKindDiscount, now)
}

func (s *Scheduler) appendReminderLog(ctx context.Context, order *orderdomain.Order, kind string, now time.Time) error {
	return s.db.WithContext(ctx).Create(&ReminderLogEntry{
		ID:        s.genID.Generate(),
		OrderID:   order.ID,
		Phone:     order.Phone,
		Kind:      kind,
		CreatedAt: now,
	}).Error
}
