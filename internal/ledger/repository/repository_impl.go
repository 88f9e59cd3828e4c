package repository

import (
	"context"
	"time"

	"github.com/boloastro/payments/internal/ledger/domain"
	"github.com/boloastro/payments/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Exists(ctx context.Context, conn *gorm.DB, eventID string) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM webhook_events WHERE event_id = ?`,
		eventID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// TryInsert attempts a unique insert. The losing side of a concurrent race
// gets rowsAffected = 0 (or a duplicate-key error on MySQL); either way this
// reports false without surfacing an error.
func (r *repo) TryInsert(ctx context.Context, conn *gorm.DB, event *domain.WebhookEvent) (bool, error) {
	res := conn.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, event_id, event_type, razorpay_order_id,
			payload, status, error_message, processed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		event.ID,
		event.EventID,
		event.EventType,
		event.GatewayOrderID,
		event.Payload,
		event.Status,
		event.ErrorMessage,
		event.ProcessedAt,
		event.CreatedAt,
	)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Get(ctx context.Context, conn *gorm.DB, eventID string) (*domain.WebhookEvent, error) {
	var item domain.WebhookEvent
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM webhook_events WHERE event_id = ? LIMIT 1`,
		eventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateStatus(ctx context.Context, conn *gorm.DB, eventID string, status domain.EventStatus, errorMessage string) error {
	var processedAt *time.Time
	if status == domain.StatusCompleted || status == domain.StatusFailed {
		now := time.Now().UTC()
		processedAt = &now
	}
	return conn.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET status = ?, error_message = ?, processed_at = ?
		 WHERE event_id = ?`,
		status,
		errorMessage,
		processedAt,
		eventID,
	).Error
}

func (r *repo) ListFailed(ctx context.Context, conn *gorm.DB, limit int) ([]domain.WebhookEvent, error) {
	var items []domain.WebhookEvent
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM webhook_events
		 WHERE status = ?
		 ORDER BY created_at
		 LIMIT ?`,
		domain.StatusFailed,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPendingOlderThan(ctx context.Context, conn *gorm.DB, cutoff time.Time, limit int) ([]domain.WebhookEvent, error) {
	var items []domain.WebhookEvent
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM webhook_events
		 WHERE status = ? AND created_at < ?
		 ORDER BY created_at
		 LIMIT ?`,
		domain.StatusPending,
		cutoff,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByGatewayOrderID(ctx context.Context, conn *gorm.DB, gatewayOrderID string) ([]domain.WebhookEvent, error) {
	var items []domain.WebhookEvent
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM webhook_events
		 WHERE razorpay_order_id = ?
		 ORDER BY created_at`,
		gatewayOrderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
