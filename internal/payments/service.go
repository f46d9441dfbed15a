package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
	"github.com/nyumbahub/nyumba-backend/pkg/metrics"
	"github.com/nyumbahub/nyumba-backend/pkg/pagination"
)

// Audit actions recorded on payment logs.
const (
	ActionPaymentCreated        = "PAYMENT_CREATED"
	ActionStatusUpdated         = "STATUS_UPDATED"
	ActionStkPushInitiated      = "STK_PUSH_INITIATED"
	ActionMpesaCallbackReceived = "MPESA_CALLBACK_RECEIVED"
	ActionRefundRequested       = "REFUND_REQUESTED"
	ActionRefundCompleted       = "REFUND_COMPLETED"
	ActionSweepResolved         = "SWEEP_RESOLVED"
)

const refundWindow = 30 * 24 * time.Hour

// Service owns the payment state machine.
type Service interface {
	Create(ctx context.Context, input CreatePaymentInput) (*models.Payment, error)
	UpdateStatus(ctx context.Context, paymentID uuid.UUID, input StatusUpdateInput) (*models.Payment, error)
	FinalizeProcessing(ctx context.Context, paymentID uuid.UUID, to enums.PaymentStatus, details map[string]any, fields map[string]any) (bool, error)
	GetByID(ctx context.Context, paymentID uuid.UUID, ownerID *uuid.UUID) (*models.Payment, error)
	GetByTransactionRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*models.Payment, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, params ListParams) ([]models.Payment, pagination.Meta, error)
	LogAction(ctx context.Context, paymentID uuid.UUID, action string, details map[string]any)
	Refund(ctx context.Context, paymentID, ownerID uuid.UUID, reason string) (*models.Payment, error)
}

// Refunder settles a refund with the payment's provider.
type Refunder interface {
	Refund(ctx context.Context, payment *models.Payment) (string, error)
}

// CreatePaymentInput captures the data a new payment requires.
type CreatePaymentInput struct {
	UserID         uuid.UUID
	PropertyID     *uuid.UUID
	Amount         decimal.Decimal
	Currency       enums.Currency
	Provider       enums.PaymentProvider
	Description    *string
	PhoneNumber    *string
	TransactionRef string
}

// StatusUpdateInput describes a guarded status transition.
type StatusUpdateInput struct {
	Status enums.PaymentStatus
	// Details is the audit payload recorded on the STATUS_UPDATED log entry.
	Details map[string]any
	// Fields are extra column updates applied atomically with the transition,
	// e.g. transaction_ref or failure_reason.
	Fields map[string]any
}

// ListParams configures owner-scoped listings. Page and PageSize are
// normalized before the query runs.
type ListParams struct {
	Page     int
	PageSize int
	Status   *enums.PaymentStatus
	Provider *enums.PaymentProvider
}

// ServiceParams wires the payment service dependencies.
type ServiceParams struct {
	Repo     Repository
	Refunder Refunder
	Logger   *logger.Logger
	Metrics  *metrics.PaymentMetrics
}

type service struct {
	repo     Repository
	refunder Refunder
	logg     *logger.Logger
	metrics  *metrics.PaymentMetrics
}

// NewService wires a payment service with the provided dependencies. The
// refunder may be nil when refunds are disabled.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		refunder: params.Refunder,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreatePaymentInput) (*models.Payment, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !input.Provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment provider %q", input.Provider))
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyKES
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", input.Currency))
	}

	ref := input.TransactionRef
	if ref == "" {
		ref = GenerateTransactionRef(input.Provider)
	}

	payment := &models.Payment{
		UserID:         input.UserID,
		PropertyID:     input.PropertyID,
		Amount:         input.Amount,
		Currency:       currency,
		Provider:       input.Provider,
		Status:         enums.PaymentStatusPending,
		TransactionRef: ref,
		Description:    input.Description,
		PhoneNumber:    input.PhoneNumber,
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "transaction reference already exists")
		}
		// A foreign-key rejection (unknown user/property) surfaces as a
		// generic creation failure.
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	s.metrics.IncCreated(payment.Provider.String())
	s.LogAction(ctx, payment.ID, ActionPaymentCreated, map[string]any{
		"amount":   payment.Amount.String(),
		"currency": payment.Currency.String(),
		"provider": payment.Provider.String(),
	})

	return s.hydrate(ctx, payment.ID)
}

func (s *service) UpdateStatus(ctx context.Context, paymentID uuid.UUID, input StatusUpdateInput) (*models.Payment, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment status %q", input.Status))
	}

	payment, err := s.repo.FindByID(ctx, paymentID, nil)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	if !payment.Status.CanTransitionTo(input.Status) {
		return nil, pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot transition payment from %s to %s", payment.Status, input.Status),
		).WithDetails(map[string]any{"from": payment.Status, "to": input.Status})
	}

	applied, err := s.repo.UpdateStatusFrom(ctx, paymentID, []enums.PaymentStatus{payment.Status}, input.Status, input.Fields)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	if !applied {
		// Another writer moved the payment first; reload and re-check rather
		// than guessing.
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment status changed concurrently")
	}

	s.LogAction(ctx, paymentID, ActionStatusUpdated, map[string]any{
		"from":    payment.Status.String(),
		"to":      input.Status.String(),
		"details": input.Details,
	})
	if input.Status.IsTerminal() {
		s.metrics.IncFinalized(payment.Provider.String(), input.Status.String())
	}

	return s.hydrate(ctx, paymentID)
}

// FinalizeProcessing moves a PROCESSING payment to a terminal status. The
// compare-and-swap on PROCESSING makes duplicate provider callbacks a no-op:
// the second delivery observes applied=false.
func (s *service) FinalizeProcessing(ctx context.Context, paymentID uuid.UUID, to enums.PaymentStatus, details map[string]any, fields map[string]any) (bool, error) {
	if !to.IsTerminal() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("finalize requires a terminal status, got %q", to))
	}

	applied, err := s.repo.UpdateStatusFrom(ctx, paymentID, []enums.PaymentStatus{enums.PaymentStatusProcessing}, to, fields)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize payment")
	}
	if !applied {
		return false, nil
	}

	s.LogAction(ctx, paymentID, ActionStatusUpdated, map[string]any{
		"from":    enums.PaymentStatusProcessing.String(),
		"to":      to.String(),
		"details": details,
	})

	if payment, loadErr := s.repo.FindByID(ctx, paymentID, nil); loadErr == nil {
		s.metrics.IncFinalized(payment.Provider.String(), to.String())
	}
	return true, nil
}

func (s *service) GetByID(ctx context.Context, paymentID uuid.UUID, ownerID *uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return payment, nil
}

func (s *service) GetByTransactionRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*models.Payment, error) {
	payment, err := s.repo.FindByTransactionRef(ctx, provider, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return payment, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID, params ListParams) ([]models.Payment, pagination.Meta, error) {
	if ownerID == uuid.Nil {
		return nil, pagination.Meta{}, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}

	pageParams := pagination.Params{Page: params.Page, PageSize: params.PageSize}.Normalize()
	rows, total, err := s.repo.ListByOwner(ctx, ownerID, ListQuery{
		Status:   params.Status,
		Provider: params.Provider,
		Offset:   pageParams.Offset(),
		Limit:    pageParams.PageSize,
	})
	if err != nil {
		return nil, pagination.Meta{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return rows, pagination.NewMeta(pageParams, total), nil
}

// LogAction appends an audit entry to the payment's log. Audit failures are
// deliberately swallowed after logging: a payment in flight must never abort
// because its audit trail could not be written.
func (s *service) LogAction(ctx context.Context, paymentID uuid.UUID, action string, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "action", action), "payment audit payload not serializable")
		payload = nil
	}

	entry := &models.PaymentLog{
		PaymentID: paymentID,
		Action:    action,
		Details:   payload,
	}
	if err := s.repo.CreateLog(ctx, entry); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"payment_id": paymentID.String(),
			"action":     action,
		})
		s.logg.Error(logCtx, "payment audit log write failed", err)
	}
}

func (s *service) hydrate(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
	}
	return payment, nil
}

// GenerateTransactionRef builds a gateway-correlation key of the form
// {PROVIDER}_{epochMillis}_{random9}.
func GenerateTransactionRef(provider enums.PaymentProvider) string {
	return fmt.Sprintf("%s_%d_%09d", provider, time.Now().UnixMilli(), rand.N(1_000_000_000))
}
