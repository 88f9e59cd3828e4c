package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	paymentdomain "github.com/boloastro/payments/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// HandleRazorpayWebhook ingests gateway notifications. Duplicates and
// invalid-state no-ops are acknowledged with 200 so the gateway stops
// redelivering; only transient failures surface as 5xx.
func (s *Server) HandleRazorpayWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	// Detach from the request context: once the signature checks out the
	// event must finish processing even if the gateway hangs up.
	ctx := context.WithoutCancel(c.Request.Context())

	result, err := s.webhookSvc.IngestWebhook(ctx, payload, c.Request.Header)
	if err != nil {
		switch {
		case errors.Is(err, paymentdomain.ErrInvalidSignature),
			errors.Is(err, paymentdomain.ErrInvalidPayload),
			errors.Is(err, paymentdomain.ErrInvalidEvent):
			AbortWithError(c, err)
		case errors.Is(err, paymentdomain.ErrUnknownEventType),
			errors.Is(err, paymentdomain.ErrAmountMismatch):
			// Recorded as FAILED in the ledger; redelivery will not help.
			c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
		default:
			AbortWithError(c, err)
		}
		return
	}

	switch result {
	case paymentdomain.ResultDuplicate:
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
	case paymentdomain.ResultInvalidState:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	}
}
