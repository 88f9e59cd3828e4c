package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/boloastro/payments/internal/config"
	paymentdomain "github.com/boloastro/payments/internal/payment/domain"
)

const signatureHeader = "X-Razorpay-Signature"

// Adapter verifies, parses and issues outbound calls for the Razorpay
// gateway. Webhook signatures are HMAC-SHA256 hex digests over the exact raw
// request body.
type Adapter struct {
	webhookSecret string
	keyID         string
	keySecret     string
	baseURL       string
	httpClient    *http.Client
}

func New(cfg config.Config) (*Adapter, error) {
	if cfg.RazorpayWebhookSecret == "" {
		return nil, errors.New("razorpay webhook secret is required")
	}

	return &Adapter{
		webhookSecret: cfg.RazorpayWebhookSecret,
		keyID:         cfg.RazorpayKeyID,
		keySecret:     cfg.RazorpayKeySecret,
		baseURL:       strings.TrimRight(cfg.RazorpayBaseURL, "/"),
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(signatureHeader))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Event, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	out := &paymentdomain.Event{
		EventID:    event.ID,
		Type:       strings.TrimSpace(event.Event),
		OccurredAt: timestamp(event.CreatedAt),
		RawPayload: payload,
	}

	switch out.Type {
	case paymentdomain.EventTypePaymentCaptured, paymentdomain.EventTypePaymentFailed:
		payment := event.Payload.Payment.Entity
		out.PaymentID = payment.ID
		out.GatewayOrderID = payment.OrderID
		out.AmountPaise = payment.Amount
		out.Currency = strings.ToUpper(strings.TrimSpace(payment.Currency))
		out.Method = payment.Method
		out.ErrorCode = payment.ErrorCode
		out.ErrorDescription = payment.ErrorDescription
	case paymentdomain.EventTypeRefundCreated:
		refund := event.Payload.Refund.Entity
		out.RefundID = refund.ID
		out.PaymentID = refund.PaymentID
		out.AmountPaise = refund.Amount
		out.Currency = strings.ToUpper(strings.TrimSpace(refund.Currency))
	}
	// Unknown event types still parse; the processor records and fails them.

	return out, nil
}

// CreatePaymentLink creates a hosted Razorpay payment link. Used by order
// creation and the failed-payment retry job.
func (a *Adapter) CreatePaymentLink(ctx context.Context, req paymentdomain.LinkRequest) (*paymentdomain.PaymentLink, error) {
	if a.keyID == "" || a.keySecret == "" {
		return nil, errors.New("razorpay api credentials are required")
	}

	body := map[string]any{
		"amount":          req.AmountPaise,
		"currency":        req.Currency,
		"accept_partial":  false,
		"description":     req.Description,
		"reference_id":    req.ReferenceID,
		"customer":        map[string]any{"contact": req.Phone},
		"notify":          map[string]any{"sms": true, "email": false},
		"reminder_enable": true,
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}
	if !req.ExpireAt.IsZero() {
		body["expire_by"] = req.ExpireAt.Unix()
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/payment_links", bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(a.keyID, a.keySecret)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("razorpay payment link: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var link paymentLinkResponse
	if err := json.Unmarshal(raw, &link); err != nil {
		return nil, err
	}
	if link.ID == "" {
		return nil, errors.New("razorpay payment link: empty id in response")
	}

	return &paymentdomain.PaymentLink{
		ID:             link.ID,
		ShortURL:       link.ShortURL,
		GatewayOrderID: link.OrderID,
	}, nil
}

type webhookEvent struct {
	ID        string       `json:"id"`
	Event     string       `json:"event"`
	CreatedAt int64        `json:"created_at"`
	Payload   eventPayload `json:"payload"`
}

type eventPayload struct {
	Payment paymentWrapper `json:"payment"`
	Refund  refundWrapper  `json:"refund"`
}

type paymentWrapper struct {
	Entity paymentEntity `json:"entity"`
}

type refundWrapper struct {
	Entity refundEntity `json:"entity"`
}

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Method           string `json:"method"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type refundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type paymentLinkResponse struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	OrderID  string `json:"order_id"`
}

func timestamp(unix int64) time.Time {
	if unix <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(unix, 0).UTC()
}
