package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boloastro/payments/internal/clock"
	"github.com/boloastro/payments/internal/config"
	"github.com/boloastro/payments/internal/order/domain"
	paymentdomain "github.com/boloastro/payments/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Links   paymentdomain.LinkCreator
	Pricing *config.PricingConfigHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	links   paymentdomain.LinkCreator
	pricing *config.PricingConfigHolder
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("order.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		links:   p.Links,
		pricing: p.Pricing,
	}
}

var ErrUnknownProduct = fmt.Errorf("unknown_product_type")

func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	pricing := s.pricing.Get()
	amount, ok := pricing.AmountFor(string(req.ProductType))
	if !ok {
		return nil, ErrUnknownProduct
	}

	id := s.genID.Generate()
	orderID := fmt.Sprintf("ord_%s", id.String())
	now := s.clock.Now()
	expiresAt := now.Add(time.Duration(pricing.LinkExpiryMinutes) * time.Minute)

	link, err := s.links.CreatePaymentLink(ctx, paymentdomain.LinkRequest{
		Phone:       req.Phone,
		AmountPaise: amount,
		Currency:    pricing.Currency,
		Description: fmt.Sprintf("Unlock %s", req.ProductType),
		ReferenceID: orderID,
		ExpireAt:    expiresAt,
		Notes: map[string]string{
			"user_phone":   req.Phone,
			"product_type": string(req.ProductType),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create payment link: %w", err)
	}

	order := &domain.Order{
		ID:             id,
		OrderID:        orderID,
		Phone:          req.Phone,
		ProductType:    req.ProductType,
		AmountPaise:    amount,
		Currency:       pricing.Currency,
		Status:         domain.StatusInitiated,
		GatewayOrderID: link.GatewayOrderID,
		PaymentLinkID:  link.ID,
		PaymentLink:    link.ShortURL,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      &expiresAt,
	}

	if err := s.repo.Create(ctx, s.db, order); err != nil {
		return nil, err
	}

	s.log.Info("order created",
		zap.String("order_id", order.OrderID),
		zap.String("product_type", string(order.ProductType)),
		zap.Int64("amount_paise", order.AmountPaise),
	)
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.repo.GetByOrderID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) ListUserOrders(ctx context.Context, phone string, limit int) ([]domain.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.repo.ListByPhone(ctx, s.db, phone, limit)
}
