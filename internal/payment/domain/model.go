package domain

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	EventTypePaymentCaptured = "payment.captured"
	EventTypePaymentFailed   = "payment.failed"
	EventTypeRefundCreated   = "refund.created"
)

// Event is the canonical gateway notification parsed by adapters.
// Amounts are integer paise; no float representation exists anywhere
// downstream of the adapter.
type Event struct {
	EventID          string
	Type             string
	GatewayOrderID   string
	PaymentID        string
	RefundID         string
	AmountPaise      int64
	Currency         string
	Method           string
	ErrorCode        string
	ErrorDescription string
	OccurredAt       time.Time
	RawPayload       []byte
}

// Result is the outcome of processing one webhook event.
type Result string

const (
	ResultSuccess      Result = "SUCCESS"
	ResultDuplicate    Result = "DUPLICATE"
	ResultInvalidState Result = "INVALID_STATE"
	ResultFailed       Result = "FAILED"
)

// Adapter verifies and parses a gateway's raw webhook payload.
// Verify operates on the exact raw request bytes, never a re-serialized form.
type Adapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*Event, error)
}

// LinkRequest describes a hosted payment link to create at the gateway.
type LinkRequest struct {
	Phone       string
	AmountPaise int64
	Currency    string
	Description string
	ReferenceID string
	ExpireAt    time.Time
	Notes       map[string]string
}

type PaymentLink struct {
	ID             string
	ShortURL       string
	GatewayOrderID string
}

// LinkCreator is the outbound gateway client used by order creation and the
// failed-payment retry job.
type LinkCreator interface {
	CreatePaymentLink(ctx context.Context, req LinkRequest) (*PaymentLink, error)
}

// Processor applies gateway events to orders exactly once.
type Processor interface {
	ProcessEvent(ctx context.Context, event *Event) (Result, error)
	RetryFailedEvent(ctx context.Context, eventID string) (Result, error)
}

// Service is the inbound webhook surface: verify, parse, process.
type Service interface {
	IngestWebhook(ctx context.Context, payload []byte, headers http.Header) (Result, error)
}

var (
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrUnknownEventType      = errors.New("unknown_event_type")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrEventNotFound         = errors.New("event_not_found")
	ErrEventNotRetryable     = errors.New("event_not_retryable")
	ErrOrderNotFound         = errors.New("order_not_found")
	ErrAmountMismatch        = errors.New("amount_mismatch")
)
