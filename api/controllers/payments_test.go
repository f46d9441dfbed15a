package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nyumbahub/nyumba-backend/api/middleware"
	"github.com/nyumbahub/nyumba-backend/internal/payments"
	"github.com/nyumbahub/nyumba-backend/internal/security"
	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
	"github.com/nyumbahub/nyumba-backend/pkg/pagination"
)

type fakePaymentService struct {
	payments.Service

	created    *payments.CreatePaymentInput
	createOut  *models.Payment
	createErr  error
	getOut     *models.Payment
	getErr     error
	getOwner   *uuid.UUID
	listParams payments.ListParams
	listOut    []models.Payment
	refundOut  *models.Payment
	refundErr  error
	refundArgs []string
}

func (f *fakePaymentService) Create(ctx context.Context, input payments.CreatePaymentInput) (*models.Payment, error) {
	f.created = &input
	return f.createOut, f.createErr
}

func (f *fakePaymentService) GetByID(ctx context.Context, paymentID uuid.UUID, ownerID *uuid.UUID) (*models.Payment, error) {
	f.getOwner = ownerID
	return f.getOut, f.getErr
}

func (f *fakePaymentService) ListByOwner(ctx context.Context, ownerID uuid.UUID, params payments.ListParams) ([]models.Payment, pagination.Meta, error) {
	f.listParams = params
	return f.listOut, pagination.Meta{Page: params.Page, PageSize: params.PageSize, Total: int64(len(f.listOut))}, nil
}

func (f *fakePaymentService) Refund(ctx context.Context, paymentID, ownerID uuid.UUID, reason string) (*models.Payment, error) {
	f.refundArgs = []string{paymentID.String(), ownerID.String(), reason}
	return f.refundOut, f.refundErr
}

type fakeOrchestrator struct {
	out    *models.Payment
	called bool
}

func (f *fakeOrchestrator) ProcessCreated(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	f.called = true
	if f.out != nil {
		return f.out, nil
	}
	return payment, nil
}

type fakeAmountGate struct {
	err    error
	called bool
}

func (f *fakeAmountGate) Check(ctx context.Context, input security.AmountCheckInput) error {
	f.called = true
	return f.err
}

type fakeFraudGate struct {
	err    error
	called bool
}

func (f *fakeFraudGate) Check(ctx context.Context, input security.FraudCheckInput) error {
	f.called = true
	return f.err
}

type fakeInitiator struct {
	out       *models.Payment
	err       error
	paymentID uuid.UUID
	ownerID   uuid.UUID
	phone     string
}

func (f *fakeInitiator) InitiateStkPush(ctx context.Context, paymentID, ownerID uuid.UUID, rawPhone string) (*models.Payment, error) {
	f.paymentID = paymentID
	f.ownerID = ownerID
	f.phone = rawPhone
	return f.out, f.err
}

func samplePayment(userID uuid.UUID, status enums.PaymentStatus) *models.Payment {
	return &models.Payment{
		ID:             uuid.New(),
		UserID:         userID,
		Amount:         decimal.NewFromInt(2500),
		Currency:       enums.CurrencyKES,
		Provider:       enums.PaymentProviderMpesa,
		Status:         status,
		TransactionRef: "MPESA_1_000000001",
	}
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "203.0.113.10:4444"
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error.Code
}

func TestPaymentCreate_RunsGatePipeline(t *testing.T) {
	userID := uuid.New()
	created := samplePayment(userID, enums.PaymentStatusPending)
	svc := &fakePaymentService{createOut: created}
	orch := &fakeOrchestrator{}
	amounts := &fakeAmountGate{}
	fraud := &fakeFraudGate{}

	handler := PaymentCreate(svc, orch, amounts, fraud, nil)
	req := authedRequest(http.MethodPost, "/api/v1/payments",
		`{"amount":"2500.00","currency":"KES","provider":"MPESA","phone_number":"0712345678"}`, userID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !amounts.called || !fraud.called || !orch.called {
		t.Fatalf("pipeline skipped a stage: amounts=%v fraud=%v orchestrator=%v", amounts.called, fraud.called, orch.called)
	}
	if svc.created == nil || svc.created.UserID != userID {
		t.Fatalf("create input = %+v, want caller as owner", svc.created)
	}
	if !svc.created.Amount.Equal(decimal.RequireFromString("2500.00")) {
		t.Fatalf("amount = %s, want 2500.00", svc.created.Amount)
	}
}

func TestPaymentCreate_AmountGateBlocks(t *testing.T) {
	userID := uuid.New()
	svc := &fakePaymentService{}
	orch := &fakeOrchestrator{}
	amounts := &fakeAmountGate{err: pkgerrors.New(pkgerrors.CodeSecurityPolicy, "amount exceeds the maximum allowed")}
	fraud := &fakeFraudGate{}

	handler := PaymentCreate(svc, orch, amounts, fraud, nil)
	req := authedRequest(http.MethodPost, "/api/v1/payments",
		`{"amount":"99999999","provider":"MPESA"}`, userID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if svc.created != nil {
		t.Fatal("payment must not be created when the amount gate rejects")
	}
	if fraud.called {
		t.Fatal("fraud gate should not run after an amount rejection")
	}
}

func TestPaymentCreate_FraudGateBlocks(t *testing.T) {
	userID := uuid.New()
	svc := &fakePaymentService{}
	fraud := &fakeFraudGate{err: pkgerrors.New(pkgerrors.CodeRateLimit, "too many failed payments, try again later")}

	handler := PaymentCreate(svc, &fakeOrchestrator{}, &fakeAmountGate{}, fraud, nil)
	req := authedRequest(http.MethodPost, "/api/v1/payments",
		`{"amount":"2500","provider":"MPESA"}`, userID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if svc.created != nil {
		t.Fatal("payment must not be created when the fraud gate rejects")
	}
}

func TestPaymentCreate_RejectsUnknownProvider(t *testing.T) {
	handler := PaymentCreate(&fakePaymentService{}, &fakeOrchestrator{}, nil, nil, nil)
	req := authedRequest(http.MethodPost, "/api/v1/payments",
		`{"amount":"2500","provider":"PAYPAL"}`, uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if errorCode(t, rec) != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected error code %s", errorCode(t, rec))
	}
}

func TestPaymentCreate_RequiresAuthenticatedCaller(t *testing.T) {
	handler := PaymentCreate(&fakePaymentService{}, &fakeOrchestrator{}, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments",
		strings.NewReader(`{"amount":"2500","provider":"MPESA"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPaymentDetail_ScopesReadToCaller(t *testing.T) {
	userID := uuid.New()
	payment := samplePayment(userID, enums.PaymentStatusCompleted)
	svc := &fakePaymentService{getOut: payment}

	router := chi.NewRouter()
	router.Get("/api/v1/payments/{paymentId}", PaymentDetail(svc, nil))

	req := authedRequest(http.MethodGet, "/api/v1/payments/"+payment.ID.String(), "", userID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.getOwner == nil || *svc.getOwner != userID {
		t.Fatalf("owner scope = %v, want caller id", svc.getOwner)
	}
}

func TestPaymentDetail_InvalidIDIsValidationError(t *testing.T) {
	router := chi.NewRouter()
	router.Get("/api/v1/payments/{paymentId}", PaymentDetail(&fakePaymentService{}, nil))

	req := authedRequest(http.MethodGet, "/api/v1/payments/not-a-uuid", "", uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPaymentList_ParsesFiltersAndPagination(t *testing.T) {
	userID := uuid.New()
	svc := &fakePaymentService{listOut: []models.Payment{*samplePayment(userID, enums.PaymentStatusCompleted)}}
	handler := PaymentList(svc, nil)

	req := authedRequest(http.MethodGet, "/api/v1/payments?page=2&page_size=10&status=COMPLETED&provider=MPESA", "", userID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.listParams.Page != 2 || svc.listParams.PageSize != 10 {
		t.Fatalf("pagination = %+v", svc.listParams)
	}
	if svc.listParams.Status == nil || *svc.listParams.Status != enums.PaymentStatusCompleted {
		t.Fatalf("status filter = %v", svc.listParams.Status)
	}
	if svc.listParams.Provider == nil || *svc.listParams.Provider != enums.PaymentProviderMpesa {
		t.Fatalf("provider filter = %v", svc.listParams.Provider)
	}
}

func TestPaymentList_RejectsOversizedPage(t *testing.T) {
	handler := PaymentList(&fakePaymentService{}, nil)
	req := authedRequest(http.MethodGet, "/api/v1/payments?page_size=500", "", uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPaymentStkPush_ForwardsToInitiator(t *testing.T) {
	userID := uuid.New()
	paymentID := uuid.New()
	initiator := &fakeInitiator{out: samplePayment(userID, enums.PaymentStatusProcessing)}
	handler := PaymentStkPush(initiator, nil, nil)

	req := authedRequest(http.MethodPost, "/api/v1/payments/stk-push",
		`{"payment_id":"`+paymentID.String()+`","phone_number":"0712345678"}`, userID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if initiator.paymentID != paymentID || initiator.ownerID != userID {
		t.Fatalf("initiator got payment=%s owner=%s", initiator.paymentID, initiator.ownerID)
	}
	if initiator.phone != "0712345678" {
		t.Fatalf("phone = %q, normalization belongs to the adapter", initiator.phone)
	}
}

func TestPaymentStkPush_FraudGateBlocks(t *testing.T) {
	initiator := &fakeInitiator{}
	fraud := &fakeFraudGate{err: pkgerrors.New(pkgerrors.CodeRateLimit, "too many failed payments, try again later")}
	handler := PaymentStkPush(initiator, fraud, nil)

	req := authedRequest(http.MethodPost, "/api/v1/payments/stk-push",
		`{"payment_id":"`+uuid.NewString()+`","phone_number":"0712345678"}`, uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if !fraud.called {
		t.Fatal("fraud gate should run before the push")
	}
	if initiator.paymentID != uuid.Nil {
		t.Fatal("push should not reach the initiator when the gate rejects")
	}
}

func TestPaymentRefund_ValidatesReason(t *testing.T) {
	router := chi.NewRouter()
	router.Post("/api/v1/payments/{paymentId}/refund", PaymentRefund(&fakePaymentService{}, nil, nil))

	req := authedRequest(http.MethodPost, "/api/v1/payments/"+uuid.NewString()+"/refund",
		`{"reason":"short"}`, uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short reason, got %d", rec.Code)
	}
}

func TestPaymentRefund_FraudGateBlocks(t *testing.T) {
	svc := &fakePaymentService{refundOut: samplePayment(uuid.New(), enums.PaymentStatusRefunded)}
	fraud := &fakeFraudGate{err: pkgerrors.New(pkgerrors.CodeRateLimit, "too many failed payments, try again later")}

	router := chi.NewRouter()
	router.Post("/api/v1/payments/{paymentId}/refund", PaymentRefund(svc, fraud, nil))

	req := authedRequest(http.MethodPost, "/api/v1/payments/"+uuid.NewString()+"/refund",
		`{"reason":"tenant moved out before lease start"}`, uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if !fraud.called {
		t.Fatal("fraud gate should run before the refund")
	}
	if len(svc.refundArgs) != 0 {
		t.Fatal("refund should not reach the service when the gate rejects")
	}
}

func TestPaymentRefund_ForwardsToService(t *testing.T) {
	userID := uuid.New()
	payment := samplePayment(userID, enums.PaymentStatusRefunded)
	svc := &fakePaymentService{refundOut: payment}

	router := chi.NewRouter()
	router.Post("/api/v1/payments/{paymentId}/refund", PaymentRefund(svc, nil, nil))

	req := authedRequest(http.MethodPost, "/api/v1/payments/"+payment.ID.String()+"/refund",
		`{"reason":"tenant moved out before lease start"}`, userID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.refundArgs) != 3 || svc.refundArgs[1] != userID.String() {
		t.Fatalf("refund args = %v", svc.refundArgs)
	}
}
