package repository

import (
	"context"
	"time"

	"github.com/boloastro/payments/internal/order/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repo) GetByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payment_orders WHERE order_id = ? LIMIT 1`,
		orderID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) GetByGatewayOrderIDLocked(ctx context.Context, tx *gorm.DB, gatewayOrderID string) (*domain.Order, error) {
	var item domain.Order
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM payment_orders
		 WHERE razorpay_order_id = ?
		 FOR UPDATE`,
		gatewayOrderID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) GetByPaymentIDLocked(ctx context.Context, tx *gorm.DB, paymentID string) (*domain.Order, error) {
	var item domain.Order
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM payment_orders
		 WHERE payment_id = ?
		 FOR UPDATE`,
		paymentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM payment_orders
		 WHERE id = ?
		 FOR UPDATE`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// Save writes mutable fields only. Amount, currency, phone and product type
// are immutable after Create.
func (r *repo) Save(ctx context.Context, tx *gorm.DB, order *domain.Order) error {
	order.UpdatedAt = time.Now().UTC()
	return tx.WithContext(ctx).Exec(
		`UPDATE payment_orders
		 SET status = ?, razorpay_order_id = ?, payment_id = ?, payment_method = ?,
		     payment_link_id = ?, payment_link = ?,
		     error_code = ?, error_message = ?,
		     updated_at = ?, paid_at = ?, expires_at = ?
		 WHERE id = ?`,
		order.Status,
		order.GatewayOrderID,
		order.PaymentID,
		order.PaymentMethod,
		order.PaymentLinkID,
		order.PaymentLink,
		order.ErrorCode,
		order.ErrorMessage,
		order.UpdatedAt,
		order.PaidAt,
		order.ExpiresAt,
		order.ID,
	).Error
}

func (r *repo) ListByPhone(ctx context.Context, db *gorm.DB, phone string, limit int) ([]domain.Order, error) {
	var items []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payment_orders
		 WHERE phone = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		phone,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	var items []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payment_orders
		 WHERE status = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		status,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPendingOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Order, error) {
	var items []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payment_orders
		 WHERE status IN (?, ?) AND created_at < ?
		 ORDER BY created_at
		 LIMIT ?`,
		domain.StatusInitiated,
		domain.StatusPending,
		cutoff,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListFailedSince(ctx context.Context, db *gorm.DB, since time.Time, limit int) ([]domain.Order, error) {
	var items []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payment_orders
		 WHERE status = ? AND updated_at >= ?
		 ORDER BY updated_at
		 LIMIT ?`,
		domain.StatusFailed,
		since,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListSuccessWithoutEntitlement(ctx context.Context, db *gorm.DB, limit int) ([]domain.Order, error) {
	var items []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT o.* FROM payment_orders o
		 LEFT JOIN entitlements e ON e.source_order_id = o.id
		 WHERE o.status = ? AND e.id IS NULL
		 ORDER BY o.paid_at
		 LIMIT ?`,
		domain.StatusSuccess,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
