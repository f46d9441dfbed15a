package flutterwave

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

type fakeAPI struct {
	chargeResp *ChargeResponse
	chargeErr  error
	refundResp *RefundResponse
	refundErr  error
	lastCharge ChargeRequest
	lastTxnID  string
}

func (f *fakeAPI) Charge(_ context.Context, req ChargeRequest) (*ChargeResponse, error) {
	f.lastCharge = req
	return f.chargeResp, f.chargeErr
}

func (f *fakeAPI) RefundTransaction(_ context.Context, transactionID string, _ RefundRequest) (*RefundResponse, error) {
	f.lastTxnID = transactionID
	return f.refundResp, f.refundErr
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func mobilePayment() *models.Payment {
	phone := "254712345678"
	return &models.Payment{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		Amount:         decimal.NewFromInt(2000),
		Currency:       enums.CurrencyKES,
		Provider:       enums.PaymentProviderFlutterwave,
		Status:         enums.PaymentStatusPending,
		TransactionRef: "FLUTTERWAVE_1700000000000_000000001",
		PhoneNumber:    &phone,
	}
}

func TestProcessSuccessfulCharge(t *testing.T) {
	api := &fakeAPI{chargeResp: &ChargeResponse{Status: "success", Message: "Charge completed"}}
	api.chargeResp.Data.ID = 987654
	api.chargeResp.Data.Status = "successful"

	adapter, err := NewAdapter(api, testLogger())
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}

	result, err := adapter.Process(context.Background(), mobilePayment())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !result.Success || result.TransactionID != "987654" {
		t.Fatalf("result = %+v, want success with 987654", result)
	}
	if api.lastCharge.Currency != "KES" || api.lastCharge.PhoneNumber != "254712345678" {
		t.Fatalf("charge request = %+v", api.lastCharge)
	}
}

func TestProcessPendingChargeIsFailure(t *testing.T) {
	api := &fakeAPI{chargeResp: &ChargeResponse{Status: "success", Message: "Charge initiated"}}
	api.chargeResp.Data.Status = "pending"

	adapter, _ := NewAdapter(api, testLogger())
	result, err := adapter.Process(context.Background(), mobilePayment())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Success {
		t.Fatal("pending charge reported as success")
	}
}

func TestProcessTransportError(t *testing.T) {
	api := &fakeAPI{chargeErr: errors.New("gateway timeout")}

	adapter, _ := NewAdapter(api, testLogger())
	if _, err := adapter.Process(context.Background(), mobilePayment()); err == nil {
		t.Fatal("expected transport error to propagate")
	}
}

func TestRefundUsesTransactionRef(t *testing.T) {
	api := &fakeAPI{refundResp: &RefundResponse{Status: "success", Message: "Refund queued"}}
	api.refundResp.Data.ID = 55

	adapter, _ := NewAdapter(api, testLogger())
	payment := mobilePayment()
	payment.TransactionRef = "987654"
	payment.Status = enums.PaymentStatusCompleted

	result, err := adapter.Refund(context.Background(), payment)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if !result.Success || result.TransactionID != "55" {
		t.Fatalf("result = %+v, want success with 55", result)
	}
	if api.lastTxnID != "987654" {
		t.Fatalf("refund targeted %q, want 987654", api.lastTxnID)
	}
}

func TestRefundErrorStatusIsFailure(t *testing.T) {
	api := &fakeAPI{refundResp: &RefundResponse{Status: "error", Message: "Transaction not found"}}

	adapter, _ := NewAdapter(api, testLogger())
	payment := mobilePayment()
	payment.Status = enums.PaymentStatusCompleted

	result, err := adapter.Refund(context.Background(), payment)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if result.Success {
		t.Fatal("error refund reported as success")
	}
}
