package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EventStatus string

const (
	StatusPending    EventStatus = "PENDING"
	StatusProcessing EventStatus = "PROCESSING"
	StatusCompleted  EventStatus = "COMPLETED"
	StatusFailed     EventStatus = "FAILED"
	StatusDuplicate  EventStatus = "DUPLICATE"
)

// WebhookEvent is the durable record of one inbound gateway notification.
// The unique index on event_id is the idempotency guard; application code
// never enforces uniqueness itself.
type WebhookEvent struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	EventID        string         `json:"event_id" gorm:"type:text;not null;uniqueIndex"`
	EventType      string         `json:"event_type" gorm:"type:text;not null"`
	GatewayOrderID string         `json:"gateway_order_id" gorm:"column:razorpay_order_id;type:text;index"`
	Payload        datatypes.JSON `json:"payload" gorm:"not null"`
	Status         EventStatus    `json:"status" gorm:"type:text;not null;index"`
	ErrorMessage   string         `json:"error_message" gorm:"type:text"`
	ProcessedAt    *time.Time     `json:"processed_at"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

// Repository is the webhook event ledger. TryInsert is the correctness
// primitive: it races on the storage layer's unique constraint and reports
// whether this caller won. Exists is a cheap pre-filter only.
type Repository interface {
	Exists(ctx context.Context, db *gorm.DB, eventID string) (bool, error)
	TryInsert(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	Get(ctx context.Context, db *gorm.DB, eventID string) (*WebhookEvent, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, eventID string, status EventStatus, errorMessage string) error

	ListFailed(ctx context.Context, db *gorm.DB, limit int) ([]WebhookEvent, error)
	ListPendingOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]WebhookEvent, error)
	ListByGatewayOrderID(ctx context.Context, db *gorm.DB, gatewayOrderID string) ([]WebhookEvent, error)
}
