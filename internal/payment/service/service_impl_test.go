package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boloastro/payments/internal/clock"
	"github.com/boloastro/payments/internal/config"
	entitlementrepo "github.com/boloastro/payments/internal/entitlement/repository"
	entitlementservice "github.com/boloastro/payments/internal/entitlement/service"
	ledgerrepo "github.com/boloastro/payments/internal/ledger/repository"
	"github.com/boloastro/payments/internal/notification"
	orderdomain "github.com/boloastro/payments/internal/order/domain"
	orderrepo "github.com/boloastro/payments/internal/order/repository"
	"github.com/boloastro/payments/internal/payment/adapters/razorpay"
	paymentdomain "github.com/boloastro/payments/internal/payment/domain"
	paymentservice "github.com/boloastro/payments/internal/payment/service"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	clock     *clock.FakeClock
	processor paymentdomain.Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(30)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, time.April, 10, 9, 0, 0, 0, time.UTC))

	adapter, err := razorpay.New(config.Config{RazorpayWebhookSecret: "whsec_test"})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	entitlementSvc := entitlementservice.NewService(entitlementservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  entitlementrepo.Provide(),
	})

	processor := paymentservice.NewProcessor(paymentservice.Params{
		DB:             db,
		Log:            zap.NewNop(),
		GenID:          node,
		Clock:          fake,
		Ledger:         ledgerrepo.Provide(),
		Orders:         orderrepo.Provide(),
		Adapter:        adapter,
		EntitlementSvc: entitlementSvc,
		Dispatcher:     notification.NoopDispatcher{},
	})

	return &fixture{db: db, node: node, clock: fake, processor: processor}
}

func (f *fixture) seedOrder(t *testing.T, status orderdomain.OrderStatus, productType orderdomain.ProductType, amountPaise int64) *orderdomain.Order {
	t.Helper()

	id := f.node.Generate()
	now := f.clock.Now()
	order := &orderdomain.Order{
		ID:             id,
		OrderID:        "ord_" + id.String(),
		Phone:          "+919876543210",
		ProductType:    productType,
		AmountPaise:    amountPaise,
		Currency:       "INR",
		Status:         status,
		GatewayOrderID: "order_rzp_" + id.String(),
		PaymentLinkID:  "plink_" + id.String(),
		PaymentLink:    "https://rzp.io/l/" + id.String(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := f.db.Exec(
		`INSERT INTO payment_orders (id, order_id, phone, product_type, amount_paise, currency, status,
		   razorpay_order_id, payment_id, payment_link_id, payment_link, payment_method,
		   error_code, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, '', '', '', ?, ?)`,
		order.ID, order.OrderID, order.Phone, order.ProductType, order.AmountPaise, order.Currency,
		order.Status, order.GatewayOrderID, order.PaymentLinkID, order.PaymentLink,
		order.CreatedAt, order.UpdatedAt,
	).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func capturedEvent(eventID string, order *orderdomain.Order, amountPaise int64) *paymentdomain.Event {
	payload := fmt.Sprintf(
		`{"id":"%s","event":"payment.captured","created_at":1765000000,"payload":{"payment":{"entity":{"id":"pay_%s","order_id":"%s","amount":%d,"currency":"INR","method":"upi"}}}}`,
		eventID, eventID, order.GatewayOrderID, amountPaise,
	)
	return &paymentdomain.Event{
		EventID:        eventID,
		Type:           paymentdomain.EventTypePaymentCaptured,
		GatewayOrderID: order.GatewayOrderID,
		PaymentID:      "pay_" + eventID,
		AmountPaise:    amountPaise,
		Currency:       "INR",
		Method:         "upi",
		OccurredAt:     time.Unix(1765000000, 0).UTC(),
		RawPayload:     []byte(payload),
	}
}

func TestCapturedEventMarksOrderSuccessAndGrants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.seedOrder(t, orderdomain.StatusPending, orderdomain.ProductKundali, 9900)

	result, err := f.processor.ProcessEvent(ctx, capturedEvent("evt_1", order, 9900))
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if result != paymentdomain.ResultSuccess {
		t.Fatalf("expected SUCCESS, got %s", result)
	}

	var status, paymentID string
	if err := f.db.Raw("SELECT status FROM payment_orders WHERE id = ?", order.ID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != string(orderdomain.StatusSuccess) {
		t.Fatalf("expected order SUCCESS, got %s", status)
	}
	if err := f.db.Raw("SELECT payment_id FROM payment_orders WHERE id = ?", order.ID).Scan(&paymentID).Error; err != nil {
		t.Fatalf("scan payment_id: %v", err)
	}
	if paymentID != "pay_evt_1" {
		t.Fatalf("expected payment_id pay_evt_1, got %s", paymentID)
	}

	var eventStatus string
	if err := f.db.Raw("SELECT status FROM webhook_events WHERE event_id = 'evt_1'").Scan(&eventStatus).Error; err != nil {
		t.Fatalf("scan event status: %v", err)
	}
	if eventStatus != "COMPLETED" {
		t.Fatalf("expected event COMPLETED, got %s", eventStatus)
	}

	assertCount(t, f.db, "SELECT COUNT(1) FROM entitlements", 1)
	var kundali bool
	if err := f.db.Raw("SELECT kundali_access FROM user_access WHERE phone = ?", order.Phone).Scan(&kundali).Error; err != nil {
		t.Fatalf("scan access: %v", err)
	}
	if !kundali {
		t.Fatalf("expected kundali access after capture")
	}
}

func TestCapturedEventReplaysAreDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.seedOrder(t, orderdomain.StatusPending, orderdomain.ProductQNA, 4900)

	event := capturedEvent("evt_replay", order, 4900)
	if result, err := f.processor.ProcessEvent(ctx, event); err != nil || result != paymentdomain.ResultSuccess {
		t.Fatalf("first delivery: result=%v err=%v", result, err)
	}

	for i := 0; i < 5; i++ {
		result, err := f.processor.ProcessEvent(ctx, event)
		if err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
		if result != paymentdomain.ResultDuplicate {
			t.Fatalf("replay %d: expected DUPLICATE, got %s", i, result)
		}
	}

	assertCount(t, f.db, "SELECT COUNT(1) FROM webhook_events", 1)
	assertCount(t, f.db, "SELECT COUNT(1) FROM entitlements", 1)

	var credits int
	if err := f.db.Raw("SELECT qna_credits FROM user_access WHERE phone = ?", order.Phone).Scan(&credits).Error; err != nil {
		t.Fatalf("scan credits: %v", err)
	}
	if credits != 4 {
		t.Fatalf("expected one credit pack, got %d credits", credits)
	}
}

func TestRedeliveredCaptureWithNewEventIDIsDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.seedOrder(t, orderdomain.StatusPending, orderdomain.ProductMilan, 14900)

	if result, err := f.processor.ProcessEvent(ctx, capturedEvent("evt_a", order, 14900)); err != nil || result != paymentdomain.ResultSuccess {
		t.Fatalf("first delivery: result=%v err=%v", result, err)
	}

	// Same payment redelivered under a fresh event id still applies no
	// second mutation.
	second := capturedEvent("evt_b", order, 14900)
	second.PaymentID = "pay_evt_a"
	result, err := f.processor.ProcessEvent(ctx, second)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if result != paymentdomain.ResultDuplicate {
		t.Fatalf("expected DUPLICATE, got %s", result)
	}

	assertCount(t, f.db, "SELECT COUNT(1) FROM entitlements", 1)
	assertCount(t, f.db, "SELECT COUNT(1) FROM webhook_events", 2)
}

func TestCapturedEventAmountMismatchLeavesOrderPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.seedOrder(t, orderdomain.StatusPending, orderdomain.ProductKundali, 9900)

	result, err := f.processor.ProcessEvent(ctx, capturedEvent("evt_mismatch", order, 8900))
	if err == nil {
		t.Fatalf("expected amount mismatch error")
	}
	if result != paymentdomain.ResultFailed {
		t.Fatalf("expected FAILED, got %s", result)
	}

	var status string
	if err := f.db.Raw("SELECT status FROM payment_orders WHERE id = ?", order.ID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != string(orderdomain.StatusPending) {
		t.Fatalf("expected order to stay PENDING, got %s", status)
	}

	var eventStatus, errMsg string
	if err := f.db.Raw("SELECT status FROM webhook_events WHERE event_id = 'evt_mismatch'").Scan(&eventStatus).Error; err != nil {
		t.Fatalf("scan event status: %v", err)
	}
	if eventStatus != "FAILED" {
		t.Fatalf("expected event FAILED, got %s", eventStatus)
	}
	if err := f.db.Raw("SELECT error_message FROM webhook_events WHERE event_id = 'evt_mismatch'").Scan(&errMsg).Error; err != nil {
		t.Fatalf("scan error_message: %v", err)
	}
	if !strings.Contains(errMsg, "amount_mismatch") {
		t.Fatalf("expected amount_mismatch in error message, got %q", errMsg)
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM entitlements", 0)
}

func TestCaptureOnRefundedOrderIsInvalidState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.seedOrder(t, orderdomain.StatusRefunded, orderdomain.ProductKundali, 9900)

	result, err := f.processor.ProcessEvent(ctx, capturedEvent("evt_late", order, 9900))
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if result != paymentdomain.ResultInvalidState {
		t.Fatalf("expected INVALID_STATE, got %s", result)
	}

	var status string
	if err := f.db.Raw("SELECT status FROM payment_orders WHERE id = ?", order.ID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != string(orderdomain.StatusRefunded) {
		t.Fatalf("refunded order must not change, got %s", status)
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM entitlements", 0)
}

func TestCaptureOnFailedOrderIsInvalidState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.seedOrder(t, orderdomain.StatusFailed, orderdomain.ProductKundali, 9900)

	result, err := f.processor.ProcessEvent(ctx, capturedEvent("evt_stale", order, 9900))
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if result != paymentdomain.ResultInvalidState {
		t.Fatalf("expected INVALID_STATE, got %s", result)
	}

	var status string
	if err := f.db.Raw("SELECT status FROM payment_orders WHERE id = ?", order.ID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != string(orderdomain.StatusFailed) {
		t.Fatalf("failed order must not change, got %s", status)
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM entitlements", 0)
}

func TestFailedEventMarksOrderFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.seedOrder(t, orderdomain.StatusPending, orderdomain.ProductMilan, 14900)

	event := &paymentdomain.Event{
		EventID:          "evt_fail",
		Type:             paymentdomain.EventTypePaymentFailed,
		GatewayOrderID:   order.GatewayOrderID,
		PaymentID:        "pay_fail",
		AmountPaise:      14900,
		ErrorCode:        "BAD_REQUEST_ERROR",
		ErrorDescription: "Payment declined by bank",
		RawPayload:       []byte(`{"id":"evt_fail","event":"payment.failed"}`),
	}
	result, err := f.processor.ProcessEvent(ctx, event)
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if result != paymentdomain.ResultSuccess {
		t.Fatalf("expected SUCCESS, got %s", result)
	}

	var status, errCode string
	if err := f.db.Raw("SELECT status FROM payment_orders WHERE id = ?", order.ID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != string(orderdomain.StatusFailed) {
		t.Fatalf("expected FAILED, got %s", status)
	}
	if err := f.db.Raw("SELECT error_code FROM payment_orders WHERE id = ?", order.ID).Scan(&errCode).Error; err != nil {
		t.Fatalf("scan error_code: %v", err)
	}
	if errCode != "BAD_REQUEST_ERROR" {
		t.Fatalf("expected error code recorded, got %q", errCode)
	}
}

func TestLateFailureNeverClobbersSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.seedOrder(t, orderdomain.StatusPending, orderdomain.ProductKundali, 9900)

	if result, err := f.processor.ProcessEvent(ctx, capturedEvent("evt_cap", order, 9900)); err != nil || result != paymentdomain.ResultSuccess {
		t.Fatalf("capture: result=%v err=%v", result, err)
	}

	late := &paymentdomain.Event{
		EventID:        "evt_late_fail",
		Type:           paymentdomain.EventTypePaymentFailed,
		GatewayOrderID: order.GatewayOrderID,
		ErrorCode:      "GATEWAY_ERROR",
		RawPayload:     []byte(`{"id":"evt_late_fail","event":"payment.failed"}`),
	}
	result, err := f.processor.ProcessEvent(ctx, late)
	if err != nil {
		t.Fatalf("late failure: %v", err)
	}
	if result != paymentdomain.ResultInvalidState {
		t.Fatalf("expected INVALID_STATE, got %s", result)
	}

	var status string
	if err := f.db.Raw("SELECT status FROM payment_orders WHERE id = ?", order.ID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != string(orderdomain.StatusSuccess) {
		t.Fatalf("success order must not change, got %s", status)
	}
}

func TestRefundRevokesEntitlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.seedOrder(t, orderdomain.StatusPending, orderdomain.ProductKundali, 9900)

	if result, err := f.processor.ProcessEvent(ctx, capturedEvent("evt_cap2", order, 9900)); err != nil || result != paymentdomain.ResultSuccess {
		t.Fatalf("capture: result=%v err=%v", result, err)
	}

	refund := &paymentdomain.Event{
		EventID:     "evt_refund",
		Type:        paymentdomain.EventTypeRefundCreated,
		PaymentID:   "pay_evt_cap2",
		RefundID:    "rfnd_1",
		AmountPaise: 9900,
		RawPayload:  []byte(`{"id":"evt_refund","event":"refund.created"}`),
	}
	result, err := f.processor.ProcessEvent(ctx, refund)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if result != paymentdomain.ResultSuccess {
		t.Fatalf("expected SUCCESS, got %s", result)
	}

	var status string
	if err := f.db.Raw("SELECT status FROM payment_orders WHERE id = ?", order.ID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != string(orderdomain.StatusRefunded) {
		t.Fatalf("expected REFUNDED, got %s", status)
	}

	var kundali bool
	if err := f.db.Raw("SELECT kundali_access FROM user_access WHERE phone = ?", order.Phone).Scan(&kundali).Error; err != nil {
		t.Fatalf("scan access: %v", err)
	}
	if kundali {
		t.Fatalf("expected access revoked after refund")
	}

	// Replaying the refund is a duplicate no-op.
	if result, err := f.processor.ProcessEvent(ctx, refund); err != nil || result != paymentdomain.ResultDuplicate {
		t.Fatalf("refund replay: result=%v err=%v", result, err)
	}
}

func TestRefundRollsBackWhenRevokeFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.seedOrder(t, orderdomain.StatusPending, orderdomain.ProductKundali, 9900)

	if result, err := f.processor.ProcessEvent(ctx, capturedEvent("evt_cap3", order, 9900)); err != nil || result != paymentdomain.ResultSuccess {
		t.Fatalf("capture: result=%v err=%v", result, err)
	}

	// Sabotage the revocation path, then refund.
	if err := f.db.Exec("DROP TABLE entitlement_log").Error; err != nil {
		t.Fatalf("drop log table: %v", err)
	}
	refund := &paymentdomain.Event{
		EventID:     "evt_refund_broken",
		Type:        paymentdomain.EventTypeRefundCreated,
		PaymentID:   "pay_evt_cap3",
		RefundID:    "rfnd_2",
		AmountPaise: 9900,
		RawPayload:  []byte(`{"id":"evt_refund_broken","event":"refund.created"}`),
	}
	result, err := f.processor.ProcessEvent(ctx, refund)
	if err == nil {
		t.Fatalf("expected refund to fail while revoke is broken")
	}
	if result != paymentdomain.ResultFailed {
		t.Fatalf("expected FAILED, got %s", result)
	}

	// The order must not have committed as REFUNDED with access still live.
	var status string
	if err := f.db.Raw("SELECT status FROM payment_orders WHERE id = ?", order.ID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != string(orderdomain.StatusSuccess) {
		t.Fatalf("expected order to stay SUCCESS, got %s", status)
	}
	var kundali bool
	if err := f.db.Raw("SELECT kundali_access FROM user_access WHERE phone = ?", order.Phone).Scan(&kundali).Error; err != nil {
		t.Fatalf("scan access: %v", err)
	}
	if !kundali {
		t.Fatalf("expected access untouched while refund is failing")
	}

	// Once the path heals, the failed event retries to completion.
	if err := f.db.Exec(`CREATE TABLE entitlement_log (
		id BIGINT PRIMARY KEY,
		phone TEXT NOT NULL,
		product_type TEXT NOT NULL,
		action TEXT NOT NULL,
		order_id BIGINT,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL
	)`).Error; err != nil {
		t.Fatalf("recreate log table: %v", err)
	}
	result, err = f.processor.RetryFailedEvent(ctx, "evt_refund_broken")
	if err != nil {
		t.Fatalf("retry refund: %v", err)
	}
	if result != paymentdomain.ResultSuccess {
		t.Fatalf("expected SUCCESS after retry, got %s", result)
	}
	if err := f.db.Raw("SELECT kundali_access FROM user_access WHERE phone = ?", order.Phone).Scan(&kundali).Error; err != nil {
		t.Fatalf("scan access: %v", err)
	}
	if kundali {
		t.Fatalf("expected access revoked after retried refund")
	}
}

func TestSimultaneousCapturesSucceedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.seedOrder(t, orderdomain.StatusPending, orderdomain.ProductKundali, 9900)

	const deliveries = 8
	results := make([]paymentdomain.Result, deliveries)
	errs := make([]error, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			event := capturedEvent(fmt.Sprintf("evt_race_%d", i), order, 9900)
			event.PaymentID = "pay_race"
			results[i], errs[i] = f.processor.ProcessEvent(ctx, event)
		}(i)
	}
	wg.Wait()

	var success, duplicate int
	for i := 0; i < deliveries; i++ {
		if errs[i] != nil {
			t.Fatalf("delivery %d: %v", i, errs[i])
		}
		switch results[i] {
		case paymentdomain.ResultSuccess:
			success++
		case paymentdomain.ResultDuplicate:
			duplicate++
		default:
			t.Fatalf("delivery %d: unexpected result %s", i, results[i])
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one SUCCESS, got %d", success)
	}
	if duplicate != deliveries-1 {
		t.Fatalf("expected %d DUPLICATEs, got %d", deliveries-1, duplicate)
	}

	assertCount(t, f.db, "SELECT COUNT(*) FROM entitlements", 1)
	assertCount(t, f.db, fmt.Sprintf(
		"SELECT COUNT(*) FROM payment_orders WHERE id = %d AND status = 'SUCCESS' AND payment_id = 'pay_race'", order.ID), 1)
}

func TestUnknownEventTypeRecordedAsFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	event := &paymentdomain.Event{
		EventID:    "evt_unknown",
		Type:       "payment_link.expired",
		RawPayload: []byte(`{"id":"evt_unknown","event":"payment_link.expired"}`),
	}
	result, err := f.processor.ProcessEvent(ctx, event)
	if err == nil {
		t.Fatalf("expected unknown event type error")
	}
	if result != paymentdomain.ResultFailed {
		t.Fatalf("expected FAILED, got %s", result)
	}

	var status string
	if err := f.db.Raw("SELECT status FROM webhook_events WHERE event_id = 'evt_unknown'").Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != "FAILED" {
		t.Fatalf("expected event FAILED, got %s", status)
	}
}

func TestRetryFailedEventAfterOrderAppears(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Webhook arrives for an order that is not in the store yet.
	orphan := &paymentdomain.Event{
		EventID:        "evt_orphan",
		Type:           paymentdomain.EventTypePaymentCaptured,
		GatewayOrderID: "order_rzp_orphan",
		PaymentID:      "pay_orphan",
		AmountPaise:    9900,
		RawPayload: []byte(`{"id":"evt_orphan","event":"payment.captured","created_at":1765000000,` +
			`"payload":{"payment":{"entity":{"id":"pay_orphan","order_id":"order_rzp_orphan","amount":9900,"currency":"INR","method":"card"}}}}`),
	}
	result, err := f.processor.ProcessEvent(ctx, orphan)
	if err == nil {
		t.Fatalf("expected order_not_found error")
	}
	if result != paymentdomain.ResultFailed {
		t.Fatalf("expected FAILED, got %s", result)
	}

	order := f.seedOrder(t, orderdomain.StatusPending, orderdomain.ProductKundali, 9900)
	if err := f.db.Exec("UPDATE payment_orders SET razorpay_order_id = 'order_rzp_orphan' WHERE id = ?", order.ID).Error; err != nil {
		t.Fatalf("update order: %v", err)
	}

	result, err = f.processor.RetryFailedEvent(ctx, "evt_orphan")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result != paymentdomain.ResultSuccess {
		t.Fatalf("expected SUCCESS after retry, got %s", result)
	}

	var status string
	if err := f.db.Raw("SELECT status FROM payment_orders WHERE id = ?", order.ID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != string(orderdomain.StatusSuccess) {
		t.Fatalf("expected SUCCESS, got %s", status)
	}

	// A completed event is no longer retryable.
	if _, err := f.processor.RetryFailedEvent(ctx, "evt_orphan"); err == nil {
		t.Fatalf("expected not retryable error")
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_pay_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	// SQLite support hack: remove FOR UPDATE clauses
	stripLocking := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	}
	db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", stripLocking)
	db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", stripLocking)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	schema := []string{
		`CREATE TABLE payment_orders (
			id BIGINT PRIMARY KEY,
			order_id TEXT NOT NULL,
			phone TEXT NOT NULL,
			product_type TEXT NOT NULL,
			amount_paise BIGINT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			razorpay_order_id TEXT,
			payment_id TEXT,
			payment_link_id TEXT,
			payment_link TEXT,
			payment_method TEXT,
			error_code TEXT,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			paid_at TIMESTAMP,
			expires_at TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX ux_payment_orders_order_id ON payment_orders(order_id)`,
		`CREATE TABLE webhook_events (
			id BIGINT PRIMARY KEY,
			event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			razorpay_order_id TEXT,
			payload TEXT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT,
			processed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_webhook_events_event_id ON webhook_events(event_id)`,
		`CREATE TABLE entitlements (
			id BIGINT PRIMARY KEY,
			phone TEXT NOT NULL,
			product_type TEXT NOT NULL,
			source_order_id BIGINT NOT NULL,
			granted_at TIMESTAMP NOT NULL,
			revoked_at TIMESTAMP,
			revoke_reason TEXT
		)`,
		`CREATE UNIQUE INDEX ux_entitlements_source_order ON entitlements(source_order_id)`,
		`CREATE TABLE user_access (
			phone TEXT PRIMARY KEY,
			kundali_access BOOLEAN NOT NULL DEFAULT FALSE,
			milan_access BOOLEAN NOT NULL DEFAULT FALSE,
			qna_credits INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE entitlement_log (
			id BIGINT PRIMARY KEY,
			phone TEXT NOT NULL,
			product_type TEXT NOT NULL,
			action TEXT NOT NULL,
			order_id BIGINT,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}
	return db
}

func assertCount(t *testing.T, db *gorm.DB, query string, expected int64) {
	t.Helper()

	var count int64
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d, got %d", expected, count)
	}
}
