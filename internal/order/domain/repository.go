package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrOrderNotFound = errors.New("order_not_found")

// Repository is the order store. The Locked variants acquire an exclusive
// row lock (SELECT ... FOR UPDATE) that is held until the surrounding
// transaction commits or rolls back; they must only be called with an open
// transaction handle.
type Repository interface {
	Create(ctx context.Context, db *gorm.DB, order *Order) error
	GetByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*Order, error)

	GetByGatewayOrderIDLocked(ctx context.Context, tx *gorm.DB, gatewayOrderID string) (*Order, error)
	GetByPaymentIDLocked(ctx context.Context, tx *gorm.DB, paymentID string) (*Order, error)
	LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Order, error)

	// Save persists mutable fields only; amount and currency are never
	// written after Create.
	Save(ctx context.Context, tx *gorm.DB, order *Order) error

	ListByPhone(ctx context.Context, db *gorm.DB, phone string, limit int) ([]Order, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status OrderStatus, limit int) ([]Order, error)
	ListPendingOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Order, error)
	ListFailedSince(ctx context.Context, db *gorm.DB, since time.Time, limit int) ([]Order, error)
	ListSuccessWithoutEntitlement(ctx context.Context, db *gorm.DB, limit int) ([]Order, error)
}
