package server

import (
	"net/http"
	"strconv"
	"strings"

	orderdomain "github.com/boloastro/payments/internal/order/domain"
	"github.com/gin-gonic/gin"
)

type createOrderRequest struct {
	Phone       string `json:"phone"`
	ProductType string `json:"product_type"`
}

type orderResponse struct {
	OrderID     string `json:"order_id"`
	Phone       string `json:"phone"`
	ProductType string `json:"product_type"`
	AmountPaise int64  `json:"amount_paise"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	PaymentLink string `json:"payment_link,omitempty"`
	CreatedAt   string `json:"created_at"`
	PaidAt      string `json:"paid_at,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

func toOrderResponse(o *orderdomain.Order) orderResponse {
	resp := orderResponse{
		OrderID:     o.OrderID,
		Phone:       o.Phone,
		ProductType: string(o.ProductType),
		AmountPaise: o.AmountPaise,
		Currency:    o.Currency,
		Status:      string(o.Status),
		PaymentLink: o.PaymentLink,
		CreatedAt:   o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if o.PaidAt != nil {
		resp.PaidAt = o.PaidAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	if o.ExpiresAt != nil {
		resp.ExpiresAt = o.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return resp
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		AbortWithError(c, newValidationError("phone", "invalid_phone", "phone is required"))
		return
	}
	productType, ok := orderdomain.ValidProductType(strings.ToUpper(strings.TrimSpace(req.ProductType)))
	if !ok {
		AbortWithError(c, newValidationError("product_type", "invalid_product_type", "unknown product type"))
		return
	}

	order, err := s.orderSvc.CreateOrder(c.Request.Context(), orderdomain.CreateOrderRequest{
		Phone:       phone,
		ProductType: productType,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toOrderResponse(order))
}

func (s *Server) GetOrder(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order_id"))
	if orderID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.orderSvc.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (s *Server) ListUserOrders(c *gin.Context) {
	phone := strings.TrimSpace(c.Param("phone"))
	if phone == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be an integer"))
			return
		}
		limit = parsed
	}

	orders, err := s.orderSvc.ListUserOrders(c.Request.Context(), phone, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]orderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, toOrderResponse(&orders[i]))
	}
	c.JSON(http.StatusOK, gin.H{"orders": items})
}

func (s *Server) GetUserAccess(c *gin.Context) {
	phone := strings.TrimSpace(c.Param("phone"))
	if phone == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	kundali, err := s.entitlementSvc.HasAccess(ctx, phone, orderdomain.ProductKundali)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	milan, err := s.entitlementSvc.HasAccess(ctx, phone, orderdomain.ProductMilan)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	qna, err := s.entitlementSvc.HasAccess(ctx, phone, orderdomain.ProductQNA)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"phone":          phone,
		"kundali_access": kundali,
		"milan_access":   milan,
		"qna_access":     qna,
	})
}
