package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ledgerdomain "github.com/boloastro/payments/internal/ledger/domain"
	"github.com/boloastro/payments/internal/notification"
	orderdomain "github.com/boloastro/payments/internal/order/domain"
	paymentdomain "github.com/boloastro/payments/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const retryDedupe = 2 * time.Hour

// Error codes where a later attempt can plausibly succeed. Declines and
// validation errors are not retried.
var retryableErrorCodes = map[string]bool{
	"GATEWAY_ERROR": true,
	"SERVER_ERROR":  true,
}

// RetryFailedPaymentsJob re-issues payment links for recently failed orders
// with transient gateway errors, up to the attempt cap.
func (s *Scheduler) RetryFailedPaymentsJob(ctx context.Context) error {
	now := s.clock.Now()
	since := now.Add(-s.cfg.RetryWindow)

	orders, err := s.orders.ListFailedSince(ctx, s.db, since, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for i := range orders {
		order := &orders[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		if !retryableErrorCodes[order.ErrorCode] {
			continue
		}
		if err := s.retryOrder(ctx, order, now); err != nil {
			s.log.Warn("failed payment retry failed",
				zap.String("order_id", order.OrderID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Scheduler) retryOrder(ctx context.Context, order *orderdomain.Order, now time.Time) error {
	var attempts int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payment_retry_log WHERE order_id = ?`,
		order.ID,
	).Scan(&attempts).Error
	if err != nil {
		return err
	}
	if attempts >= int64(s.cfg.MaxRetryAttempts) {
		return nil
	}

	var lastRetry sql.NullTime
	err = s.db.WithContext(ctx).Raw(
		`SELECT created_at FROM payment_retry_log
		 WHERE order_id = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		order.ID,
	).Scan(&lastRetry).Error
	if err != nil {
		return err
	}
	if lastRetry.Valid && now.Sub(lastRetry.Time) < retryDedupe {
		return nil
	}

	failedErrorCode := order.ErrorCode
	pricing := s.pricing.Get()
	expiresAt := now.Add(time.Duration(pricing.LinkExpiryMinutes) * time.Minute)
	link, err := s.links.CreatePaymentLink(ctx, paymentdomain.LinkRequest{
		Phone:       order.Phone,
		AmountPaise: order.AmountPaise,
		Currency:    order.Currency,
		Description: fmt.Sprintf("Unlock %s", order.ProductType),
		ReferenceID: order.OrderID,
		ExpireAt:    expiresAt,
		Notes: map[string]string{
			"user_phone":   order.Phone,
			"product_type": string(order.ProductType),
			"retry":        "true",
		},
	})
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		locked, err := s.orders.LockByID(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if locked == nil || locked.Status != orderdomain.StatusFailed {
			return nil
		}
		locked.Status = orderdomain.StatusPending
		locked.GatewayOrderID = link.GatewayOrderID
		locked.PaymentLinkID = link.ID
		locked.PaymentLink = link.ShortURL
		locked.ErrorCode = ""
		locked.ErrorMessage = ""
		locked.ExpiresAt = &expiresAt
		if err := s.orders.Save(ctx, tx, locked); err != nil {
			return err
		}
		*order = *locked
		return nil
	})
	if err != nil {
		return err
	}
	if order.Status != orderdomain.StatusPending {
		return nil
	}

	if err := s.db.WithContext(ctx).Create(&RetryLogEntry{
		ID:            s.genID.Generate(),
		OrderID:       order.ID,
		Phone:         order.Phone,
		ErrorCode:     failedErrorCode,
		PaymentLinkID: link.ID,
		CreatedAt:     now,
	}).Error; err != nil {
		return err
	}

	s.dispatch(ctx, notification.ReminderMessage(order))
	s.log.Info("failed payment retried",
		zap.String("order_id", order.OrderID),
		zap.Int64("attempt", attempts+1),
	)
	return nil
}

// An event stays PENDING forever if the process dies between the ledger
// insert and the terminal status write, and every redelivery of it reports
// DUPLICATE. Anything PENDING this long is an abandoned run, not in flight.
const stalePendingAfter = 15 * time.Minute

// RetryFailedEventsJob replays FAILED webhook ledger entries from the retry
// window through the processor, after demoting abandoned PENDING entries to
// FAILED so they are replayable at all.
func (s *Scheduler) RetryFailedEventsJob(ctx context.Context) error {
	now := s.clock.Now()

	stale, err := s.ledger.ListPendingOlderThan(ctx, s.db, now.Add(-stalePendingAfter), s.cfg.BatchSize)
	if err != nil {
		return err
	}
	for i := range stale {
		event := &stale[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.ledger.UpdateStatus(ctx, s.db, event.EventID, ledgerdomain.StatusFailed, "abandoned before completion"); err != nil {
			s.log.Warn("stale event demotion failed",
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
		}
	}

	events, err := s.ledger.ListFailed(ctx, s.db, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for i := range events {
		event := &events[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		if now.Sub(event.CreatedAt) > s.cfg.RetryWindow {
			continue
		}
		if _, err := s.processor.RetryFailedEvent(ctx, event.EventID); err != nil {
			if errors.Is(err, paymentdomain.ErrEventNotRetryable) {
				continue
			}
			s.log.Warn("failed event retry failed",
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
		}
	}
	return nil
}
