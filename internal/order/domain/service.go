package domain

import "context"

type CreateOrderRequest struct {
	Phone       string
	ProductType ProductType
}

// Service owns order creation and read paths. Order mutation on payment
// outcomes happens exclusively in the webhook processor under the row lock.
type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	ListUserOrders(ctx context.Context, phone string, limit int) ([]Order, error)
}
