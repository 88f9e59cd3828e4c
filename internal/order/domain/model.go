package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type OrderStatus string

const (
	StatusInitiated  OrderStatus = "INITIATED"
	StatusPending    OrderStatus = "PENDING"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusSuccess    OrderStatus = "SUCCESS"
	StatusFailed     OrderStatus = "FAILED"
	StatusRefunded   OrderStatus = "REFUNDED"
)

type ProductType string

const (
	ProductKundali ProductType = "KUNDALI"
	ProductMilan   ProductType = "MILAN"
	ProductQNA     ProductType = "QNA"
)

func ValidProductType(raw string) (ProductType, bool) {
	switch ProductType(raw) {
	case ProductKundali, ProductMilan, ProductQNA:
		return ProductType(raw), true
	default:
		return "", false
	}
}

// Order represents one purchase attempt. Amount and currency are immutable
// after creation; payment_id is set at most once, when the order first
// reaches SUCCESS. Rows are never deleted.
type Order struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID        string       `json:"order_id" gorm:"type:text;not null;uniqueIndex"`
	Phone          string       `json:"phone" gorm:"type:text;not null;index"`
	ProductType    ProductType  `json:"product_type" gorm:"type:text;not null"`
	AmountPaise    int64        `json:"amount_paise" gorm:"not null"`
	Currency       string       `json:"currency" gorm:"type:text;not null"`
	Status         OrderStatus  `json:"status" gorm:"type:text;not null;index"`
	GatewayOrderID string       `json:"gateway_order_id" gorm:"column:razorpay_order_id;type:text;index"`
	PaymentID      string       `json:"payment_id" gorm:"type:text;index"`
	PaymentLinkID  string       `json:"payment_link_id" gorm:"type:text"`
	PaymentLink    string       `json:"payment_link" gorm:"type:text"`
	PaymentMethod  string       `json:"payment_method" gorm:"type:text"`
	ErrorCode      string       `json:"error_code" gorm:"type:text"`
	ErrorMessage   string       `json:"error_message" gorm:"type:text"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;index"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
	PaidAt         *time.Time   `json:"paid_at"`
	ExpiresAt      *time.Time   `json:"expires_at"`
}

func (Order) TableName() string { return "payment_orders" }

// AwaitingPayment reports whether a capture may still be applied.
func (o *Order) AwaitingPayment() bool {
	return o.Status == StatusInitiated || o.Status == StatusPending
}
