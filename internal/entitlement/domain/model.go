package domain

import (
	"context"
	"time"

	orderdomain "github.com/boloastro/payments/internal/order/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entitlement is durable proof that product access was granted for one
// order. The unique index on source_order_id makes Grant at-most-once per
// order without relying on any caller-held lock.
type Entitlement struct {
	ID            snowflake.ID            `json:"id" gorm:"primaryKey"`
	Phone         string                  `json:"phone" gorm:"type:text;not null;index"`
	ProductType   orderdomain.ProductType `json:"product_type" gorm:"type:text;not null"`
	SourceOrderID snowflake.ID            `json:"source_order_id" gorm:"not null;uniqueIndex"`
	GrantedAt     time.Time               `json:"granted_at" gorm:"not null"`
	RevokedAt     *time.Time              `json:"revoked_at"`
	RevokeReason  string                  `json:"revoke_reason" gorm:"type:text"`
}

func (Entitlement) TableName() string { return "entitlements" }

// UserAccess is the materialized access state consumed by the chat product:
// boolean unlocks for report products and a credit counter for Q&A.
type UserAccess struct {
	Phone         string    `json:"phone" gorm:"primaryKey;type:text"`
	KundaliAccess bool      `json:"kundali_access" gorm:"not null"`
	MilanAccess   bool      `json:"milan_access" gorm:"not null"`
	QnaCredits    int       `json:"qna_credits" gorm:"not null"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"not null"`
}

func (UserAccess) TableName() string { return "user_access" }

// LogEntry is the append-only audit trail of grant/revoke actions.
type LogEntry struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	Phone       string         `json:"phone" gorm:"type:text;not null;index"`
	ProductType string         `json:"product_type" gorm:"type:text;not null"`
	Action      string         `json:"action" gorm:"type:text;not null"`
	OrderID     snowflake.ID   `json:"order_id"`
	Metadata    datatypes.JSON `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null"`
}

func (LogEntry) TableName() string { return "entitlement_log" }

const (
	ActionGrant  = "GRANT"
	ActionRevoke = "REVOKE"

	// A QNA purchase grants a pack of question credits.
	QnaPackCredits = 4
)

type Repository interface {
	TryInsert(ctx context.Context, db *gorm.DB, ent *Entitlement) (bool, error)
	GetByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Entitlement, error)
	MarkRevoked(ctx context.Context, db *gorm.DB, orderID snowflake.ID, reason string, at time.Time) error

	GetAccess(ctx context.Context, db *gorm.DB, phone string) (*UserAccess, error)
	ApplyAccess(ctx context.Context, db *gorm.DB, phone string, productType orderdomain.ProductType, delta int) error

	AppendLog(ctx context.Context, db *gorm.DB, entry *LogEntry) error
}

// Service grants and revokes product access, idempotently per order.
type Service interface {
	Grant(ctx context.Context, phone string, productType orderdomain.ProductType, orderID snowflake.ID, metadata map[string]string) error
	Revoke(ctx context.Context, phone string, productType orderdomain.ProductType, orderID snowflake.ID, reason string) error
	RevokeIn(ctx context.Context, db *gorm.DB, phone string, productType orderdomain.ProductType, orderID snowflake.ID, reason string) error
	HasAccess(ctx context.Context, phone string, productType orderdomain.ProductType) (bool, error)
}
