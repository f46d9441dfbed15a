package payments

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

type fakeRepo struct {
	store     map[uuid.UUID]*models.Payment
	logs      []*models.PaymentLog
	createErr error
	updateErr error
	countErr  error
	counts    map[enums.PaymentStatus]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{store: map[uuid.UUID]*models.Payment{}, counts: map[enums.PaymentStatus]int64{}}
}

func (r *fakeRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *fakeRepo) Create(ctx context.Context, payment *models.Payment) error {
	if r.createErr != nil {
		return r.createErr
	}
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt
	copied := *payment
	r.store[payment.ID] = &copied
	return nil
}

func (r *fakeRepo) FindByID(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) (*models.Payment, error) {
	payment, ok := r.store[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if ownerID != nil && payment.UserID != *ownerID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *payment
	return &copied, nil
}

func (r *fakeRepo) FindByTransactionRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*models.Payment, error) {
	for _, payment := range r.store {
		if payment.Provider == provider && payment.TransactionRef == ref {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, query ListQuery) ([]models.Payment, int64, error) {
	var rows []models.Payment
	for _, payment := range r.store {
		if payment.UserID != ownerID {
			continue
		}
		if query.Status != nil && payment.Status != *query.Status {
			continue
		}
		if query.Provider != nil && payment.Provider != *query.Provider {
			continue
		}
		rows = append(rows, *payment)
	}
	return rows, int64(len(rows)), nil
}

func (r *fakeRepo) ListStuckProcessing(ctx context.Context, provider enums.PaymentProvider, olderThan time.Time, limit int) ([]models.Payment, error) {
	return nil, nil
}

func (r *fakeRepo) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from []enums.PaymentStatus, to enums.PaymentStatus, fields map[string]any) (bool, error) {
	if r.updateErr != nil {
		return false, r.updateErr
	}
	payment, ok := r.store[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, status := range from {
		if payment.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	payment.Status = to
	for column, value := range fields {
		switch column {
		case "transaction_ref":
			payment.TransactionRef = value.(string)
		case "failure_reason":
			reason := value.(string)
			payment.FailureReason = &reason
		case "mpesa_receipt":
			receipt := value.(string)
			payment.MpesaReceipt = &receipt
		case "phone_number":
			phone := value.(string)
			payment.PhoneNumber = &phone
		}
	}
	payment.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeRepo) CreateLog(ctx context.Context, entry *models.PaymentLog) error {
	r.logs = append(r.logs, entry)
	return nil
}

func (r *fakeRepo) CountByStatusSince(ctx context.Context, userID uuid.UUID, status enums.PaymentStatus, since time.Time) (int64, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	return r.counts[status], nil
}

func (r *fakeRepo) hasAction(action string) bool {
	for _, entry := range r.logs {
		if entry.Action == action {
			return true
		}
	}
	return false
}

type fakeRefunder struct {
	ref      string
	err      error
	refunded []uuid.UUID
}

func (f *fakeRefunder) Refund(ctx context.Context, payment *models.Payment) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.refunded = append(f.refunded, payment.ID)
	return f.ref, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestService(t *testing.T, repo *fakeRepo, refunder Refunder) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Repo: repo, Refunder: refunder, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func seedPayment(repo *fakeRepo, status enums.PaymentStatus, createdAt time.Time) *models.Payment {
	payment := &models.Payment{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		Amount:         decimal.NewFromInt(2500),
		Currency:       enums.CurrencyKES,
		Provider:       enums.PaymentProviderMpesa,
		Status:         status,
		TransactionRef: "MPESA_1_000000001",
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	repo.store[payment.ID] = payment
	return payment
}

func TestCreateStartsPendingWithGeneratedRef(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, nil)

	payment, err := svc.Create(context.Background(), CreatePaymentInput{
		UserID:   uuid.New(),
		Amount:   decimal.NewFromInt(1500),
		Provider: enums.PaymentProviderMpesa,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if payment.Status != enums.PaymentStatusPending {
		t.Fatalf("status = %s, want PENDING", payment.Status)
	}
	if payment.Currency != enums.CurrencyKES {
		t.Fatalf("currency = %s, want KES default", payment.Currency)
	}
	if !strings.HasPrefix(payment.TransactionRef, "MPESA_") {
		t.Fatalf("transaction ref %q missing provider prefix", payment.TransactionRef)
	}
	if !repo.hasAction(ActionPaymentCreated) {
		t.Fatal("expected PAYMENT_CREATED audit entry")
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, nil)

	cases := []struct {
		name  string
		input CreatePaymentInput
	}{
		{"zero amount", CreatePaymentInput{UserID: uuid.New(), Amount: decimal.Zero, Provider: enums.PaymentProviderMpesa}},
		{"negative amount", CreatePaymentInput{UserID: uuid.New(), Amount: decimal.NewFromInt(-5), Provider: enums.PaymentProviderMpesa}},
		{"unknown provider", CreatePaymentInput{UserID: uuid.New(), Amount: decimal.NewFromInt(10), Provider: "PAYPAL"}},
		{"unknown currency", CreatePaymentInput{UserID: uuid.New(), Amount: decimal.NewFromInt(10), Provider: enums.PaymentProviderMpesa, Currency: "EUR"}},
		{"missing user", CreatePaymentInput{Amount: decimal.NewFromInt(10), Provider: enums.PaymentProviderMpesa}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.input)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("err = %v, want VALIDATION", err)
			}
		})
	}
}

func TestCreateDuplicateRefIsConflict(t *testing.T) {
	repo := newFakeRepo()
	repo.createErr = &pgconn.PgError{Code: "23505", ConstraintName: "idx_payments_provider_ref"}
	svc := newTestService(t, repo, nil)

	_, err := svc.Create(context.Background(), CreatePaymentInput{
		UserID:         uuid.New(),
		Amount:         decimal.NewFromInt(100),
		Provider:       enums.PaymentProviderMpesa,
		TransactionRef: "MPESA_1_000000001",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("err = %v, want CONFLICT", err)
	}
}

func TestUpdateStatusRejectsSealedTerminalStates(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, nil)
	payment := seedPayment(repo, enums.PaymentStatusFailed, time.Now())

	_, err := svc.UpdateStatus(context.Background(), payment.ID, StatusUpdateInput{Status: enums.PaymentStatusPending})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("err = %v, want STATE_CONFLICT", err)
	}
}

func TestUpdateStatusAllowsCompletedToRefunded(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, nil)
	payment := seedPayment(repo, enums.PaymentStatusCompleted, time.Now())

	updated, err := svc.UpdateStatus(context.Background(), payment.ID, StatusUpdateInput{Status: enums.PaymentStatusRefunded})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != enums.PaymentStatusRefunded {
		t.Fatalf("status = %s, want REFUNDED", updated.Status)
	}
}

func TestUpdateStatusSameStatusIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, nil)
	payment := seedPayment(repo, enums.PaymentStatusPending, time.Now())

	if _, err := svc.UpdateStatus(context.Background(), payment.ID, StatusUpdateInput{Status: enums.PaymentStatusPending}); err != nil {
		t.Fatalf("re-applying current status: %v", err)
	}
}

func TestUpdateStatusUnknownPayment(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, nil)

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), StatusUpdateInput{Status: enums.PaymentStatusProcessing})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestFinalizeProcessingRequiresTerminalTarget(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, nil)
	payment := seedPayment(repo, enums.PaymentStatusProcessing, time.Now())

	_, err := svc.FinalizeProcessing(context.Background(), payment.ID, enums.PaymentStatusProcessing, nil, nil)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("err = %v, want VALIDATION", err)
	}
}

func TestFinalizeProcessingDuplicateIsNoOp(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, nil)
	payment := seedPayment(repo, enums.PaymentStatusProcessing, time.Now())

	applied, err := svc.FinalizeProcessing(context.Background(), payment.ID, enums.PaymentStatusCompleted, nil, map[string]any{"mpesa_receipt": "QCX12345"})
	if err != nil || !applied {
		t.Fatalf("first finalize: applied=%v err=%v", applied, err)
	}

	applied, err = svc.FinalizeProcessing(context.Background(), payment.ID, enums.PaymentStatusCompleted, nil, nil)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if applied {
		t.Fatal("duplicate finalize applied, want no-op")
	}
	if got := repo.store[payment.ID]; got.MpesaReceipt == nil || *got.MpesaReceipt != "QCX12345" {
		t.Fatalf("receipt = %v, want QCX12345 from first finalize", got.MpesaReceipt)
	}
}

func TestGetByIDScopesToOwner(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, nil)
	payment := seedPayment(repo, enums.PaymentStatusPending, time.Now())

	stranger := uuid.New()
	_, err := svc.GetByID(context.Background(), payment.ID, &stranger)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("err = %v, want NOT_FOUND for foreign owner", err)
	}

	if _, err := svc.GetByID(context.Background(), payment.ID, &payment.UserID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
}

func TestRefundHappyPath(t *testing.T) {
	repo := newFakeRepo()
	refunder := &fakeRefunder{ref: "re_abc123"}
	svc := newTestService(t, repo, refunder)
	payment := seedPayment(repo, enums.PaymentStatusCompleted, time.Now().Add(-48*time.Hour))

	updated, err := svc.Refund(context.Background(), payment.ID, payment.UserID, "tenant moved out before lease start")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if updated.Status != enums.PaymentStatusRefunded {
		t.Fatalf("status = %s, want REFUNDED", updated.Status)
	}
	if len(refunder.refunded) != 1 || refunder.refunded[0] != payment.ID {
		t.Fatalf("refunder called with %v, want %s", refunder.refunded, payment.ID)
	}
	if !repo.hasAction(ActionRefundRequested) || !repo.hasAction(ActionRefundCompleted) {
		t.Fatal("expected refund audit entries")
	}
}

func TestRefundValidatesReasonLength(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeRefunder{ref: "re_1"})
	payment := seedPayment(repo, enums.PaymentStatusCompleted, time.Now())

	for _, reason := range []string{"too short", strings.Repeat("x", 501)} {
		_, err := svc.Refund(context.Background(), payment.ID, payment.UserID, reason)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("reason %q: err = %v, want VALIDATION", reason, err)
		}
	}
}

func TestRefundRequiresCompletedPayment(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeRefunder{ref: "re_1"})
	payment := seedPayment(repo, enums.PaymentStatusPending, time.Now())

	_, err := svc.Refund(context.Background(), payment.ID, payment.UserID, "charged twice for the same deposit")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("err = %v, want STATE_CONFLICT", err)
	}
}

func TestRefundRejectsOutsideWindow(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeRefunder{ref: "re_1"})
	payment := seedPayment(repo, enums.PaymentStatusCompleted, time.Now().Add(-31*24*time.Hour))

	_, err := svc.Refund(context.Background(), payment.ID, payment.UserID, "charged twice for the same deposit")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("err = %v, want VALIDATION", err)
	}
}

func TestRefundProviderFailureLeavesPaymentCompleted(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeRefunder{err: errors.New("gateway timeout")})
	payment := seedPayment(repo, enums.PaymentStatusCompleted, time.Now())

	_, err := svc.Refund(context.Background(), payment.ID, payment.UserID, "charged twice for the same deposit")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeProvider {
		t.Fatalf("err = %v, want PROVIDER", err)
	}
	if repo.store[payment.ID].Status != enums.PaymentStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED untouched", repo.store[payment.ID].Status)
	}
}

func TestGenerateTransactionRefShape(t *testing.T) {
	ref := GenerateTransactionRef(enums.PaymentProviderStripe)
	parts := strings.Split(ref, "_")
	if len(parts) != 3 || parts[0] != "STRIPE" {
		t.Fatalf("ref %q, want STRIPE_{millis}_{random9}", ref)
	}
	if len(parts[2]) != 9 {
		t.Fatalf("random segment %q, want 9 digits", parts[2])
	}
}
