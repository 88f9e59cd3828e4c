package server

import (
	"net/http"
	"strings"

	ledgerdomain "github.com/boloastro/payments/internal/ledger/domain"
	"github.com/gin-gonic/gin"
)

type eventResponse struct {
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	GatewayOrderID string `json:"gateway_order_id,omitempty"`
	Status         string `json:"status"`
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      string `json:"created_at"`
	ProcessedAt    string `json:"processed_at,omitempty"`
}

func toEventResponse(e *ledgerdomain.WebhookEvent) eventResponse {
	resp := eventResponse{
		EventID:        e.EventID,
		EventType:      e.EventType,
		GatewayOrderID: e.GatewayOrderID,
		Status:         string(e.Status),
		ErrorMessage:   e.ErrorMessage,
		CreatedAt:      e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if e.ProcessedAt != nil {
		resp.ProcessedAt = e.ProcessedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return resp
}

func (s *Server) ListFailedEvents(c *gin.Context) {
	events, err := s.ledger.ListFailed(c.Request.Context(), s.db, 100)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]eventResponse, 0, len(events))
	for i := range events {
		items = append(items, toEventResponse(&events[i]))
	}
	c.JSON(http.StatusOK, gin.H{"events": items})
}

// ListOrderEvents returns the full webhook history for one order, keyed by
// the gateway order id.
func (s *Server) ListOrderEvents(c *gin.Context) {
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

	events, err := s.ledger.ListByGatewayOrderID(c.Request.Context(), s.db, order.GatewayOrderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]eventResponse, 0, len(events))
	for i := range events {
		items = append(items, toEventResponse(&events[i]))
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "events": items})
}

func (s *Server) RetryEvent(c *gin.Context) {
	eventID := strings.TrimSpace(c.Param("event_id"))
	if eventID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.processor.RetryFailedEvent(c.Request.Context(), eventID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"event_id": eventID, "result": string(result)})
}
