package domain

import "context"

type MessageKind string

const (
	KindPaymentSuccess  MessageKind = "payment_success"
	KindPaymentFailed   MessageKind = "payment_failed"
	KindPaymentReminder MessageKind = "payment_reminder"
	KindDiscountOffer   MessageKind = "discount_offer"
)

// Message is handed off to the WhatsApp delivery worker over a stream.
// Delivery is best effort; payment processing never blocks on it.
type Message struct {
	Kind        MessageKind       `json:"kind"`
	Phone       string            `json:"phone"`
	Body        string            `json:"body"`
	OrderID     string            `json:"order_id,omitempty"`
	ProductType string            `json:"product_type,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}
