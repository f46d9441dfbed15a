package stripe

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

type fakeClient struct {
	intent     *stripe.PaymentIntent
	intentErr  error
	refund     *stripe.Refund
	refundErr  error
	lastIntent *stripe.PaymentIntentParams
	lastRefund *stripe.RefundParams
}

func (f *fakeClient) CreateIntent(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.lastIntent = params
	return f.intent, f.intentErr
}

func (f *fakeClient) CreateRefund(_ context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	f.lastRefund = params
	return f.refund, f.refundErr
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func cardPayment() *models.Payment {
	return &models.Payment{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		Amount:         decimal.RequireFromString("1500.50"),
		Currency:       enums.CurrencyKES,
		Provider:       enums.PaymentProviderStripe,
		Status:         enums.PaymentStatusPending,
		TransactionRef: "STRIPE_1700000000000_000000001",
	}
}

func TestProcessSucceededIntent(t *testing.T) {
	client := &fakeClient{intent: &stripe.PaymentIntent{
		ID:     "pi_123",
		Status: stripe.PaymentIntentStatusSucceeded,
	}}

	adapter, err := NewAdapter(client, testLogger())
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}

	result, err := adapter.Process(context.Background(), cardPayment())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !result.Success || result.TransactionID != "pi_123" {
		t.Fatalf("result = %+v, want success with pi_123", result)
	}
	if got := *client.lastIntent.Amount; got != 150050 {
		t.Fatalf("amount sent = %d, want minor units 150050", got)
	}
	if got := *client.lastIntent.Currency; got != "kes" {
		t.Fatalf("currency sent = %q, want kes", got)
	}
}

func TestProcessNonSucceededIntentIsFailure(t *testing.T) {
	client := &fakeClient{intent: &stripe.PaymentIntent{
		ID:     "pi_123",
		Status: stripe.PaymentIntentStatusRequiresPaymentMethod,
	}}

	adapter, _ := NewAdapter(client, testLogger())
	result, err := adapter.Process(context.Background(), cardPayment())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Success {
		t.Fatal("non-succeeded intent reported as success")
	}
	if result.Message == "" {
		t.Fatal("failure message missing")
	}
}

func TestProcessTransportError(t *testing.T) {
	client := &fakeClient{intentErr: errors.New("api unreachable")}

	adapter, _ := NewAdapter(client, testLogger())
	if _, err := adapter.Process(context.Background(), cardPayment()); err == nil {
		t.Fatal("expected transport error to propagate")
	}
}

func TestRefundTargetsPaymentIntent(t *testing.T) {
	client := &fakeClient{refund: &stripe.Refund{
		ID:     "re_123",
		Status: stripe.RefundStatusSucceeded,
	}}

	adapter, _ := NewAdapter(client, testLogger())
	payment := cardPayment()
	payment.TransactionRef = "pi_123"
	payment.Status = enums.PaymentStatusCompleted

	result, err := adapter.Refund(context.Background(), payment)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if !result.Success || result.TransactionID != "re_123" {
		t.Fatalf("result = %+v, want success with re_123", result)
	}
	if got := *client.lastRefund.PaymentIntent; got != "pi_123" {
		t.Fatalf("refund targeted %q, want pi_123", got)
	}
}

func TestRefundFailedStatusIsFailure(t *testing.T) {
	client := &fakeClient{refund: &stripe.Refund{
		ID:     "re_123",
		Status: stripe.RefundStatusFailed,
	}}

	adapter, _ := NewAdapter(client, testLogger())
	payment := cardPayment()
	payment.Status = enums.PaymentStatusCompleted

	result, err := adapter.Refund(context.Background(), payment)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if result.Success {
		t.Fatal("failed refund reported as success")
	}
}
