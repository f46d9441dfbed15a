package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nyumbahub/nyumba-backend/api/middleware"
	"github.com/nyumbahub/nyumba-backend/api/responses"
	"github.com/nyumbahub/nyumba-backend/api/validators"
	"github.com/nyumbahub/nyumba-backend/internal/payments"
	"github.com/nyumbahub/nyumba-backend/internal/security"
	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

type paymentOrchestrator interface {
	ProcessCreated(ctx context.Context, payment *models.Payment) (*models.Payment, error)
}

type amountGate interface {
	Check(ctx context.Context, input security.AmountCheckInput) error
}

type fraudGate interface {
	Check(ctx context.Context, input security.FraudCheckInput) error
}

type stkInitiator interface {
	InitiateStkPush(ctx context.Context, paymentID, ownerID uuid.UUID, rawPhone string) (*models.Payment, error)
}

type createPaymentPayload struct {
	Amount      string  `json:"amount" validate:"required"`
	Currency    string  `json:"currency" validate:"omitempty,oneof=KES USD"`
	Provider    string  `json:"provider" validate:"required"`
	PropertyID  *string `json:"property_id" validate:"omitempty,uuid"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

type stkPushPayload struct {
	PaymentID   string `json:"payment_id" validate:"required,uuid"`
	PhoneNumber string `json:"phone_number" validate:"required,max=20"`
}

type refundPayload struct {
	Reason string `json:"reason" validate:"required,min=10,max=500"`
}

type paymentResponse struct {
	ID             string    `json:"id"`
	Amount         string    `json:"amount"`
	Currency       string    `json:"currency"`
	Provider       string    `json:"provider"`
	Status         string    `json:"status"`
	TransactionRef string    `json:"transaction_ref"`
	PropertyID     *string   `json:"property_id,omitempty"`
	PhoneNumber    *string   `json:"phone_number,omitempty"`
	MpesaReceipt   *string   `json:"mpesa_receipt,omitempty"`
	Description    *string   `json:"description,omitempty"`
	FailureReason  *string   `json:"failure_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func newPaymentResponse(p *models.Payment) paymentResponse {
	resp := paymentResponse{
		ID:             p.ID.String(),
		Amount:         p.Amount.String(),
		Currency:       p.Currency.String(),
		Provider:       p.Provider.String(),
		Status:         p.Status.String(),
		TransactionRef: p.TransactionRef,
		PhoneNumber:    p.PhoneNumber,
		MpesaReceipt:   p.MpesaReceipt,
		Description:    p.Description,
		FailureReason:  p.FailureReason,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.PropertyID != nil {
		id := p.PropertyID.String()
		resp.PropertyID = &id
	}
	return resp
}

// PaymentCreate runs the full creation pipeline: amount gate, fraud gate,
// persist, then the synchronous provider round-trip. A provider rejection is
// not an HTTP error; the caller gets back the FAILED payment.
func PaymentCreate(svc payments.Service, orchestrator paymentOrchestrator, amounts amountGate, fraud fraudGate, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || orchestrator == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing subject"))
			return
		}

		var payload createPaymentPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(payload.Amount)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a decimal number"))
			return
		}
		provider, err := enums.ParsePaymentProvider(payload.Provider)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment provider"))
			return
		}
		currency := enums.Currency(payload.Currency)

		var propertyID *uuid.UUID
		if payload.PropertyID != nil {
			parsed, parseErr := uuid.Parse(*payload.PropertyID)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "property_id must be a valid uuid"))
				return
			}
			propertyID = &parsed
		}

		ip := middleware.ClientIP(r)
		if amounts != nil {
			if err := amounts.Check(ctx, security.AmountCheckInput{
				UserID:    userID,
				Amount:    amount,
				Currency:  currency,
				IPAddress: ip,
				UserAgent: r.UserAgent(),
				Endpoint:  r.URL.Path,
				Method:    r.Method,
			}); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}
		if fraud != nil {
			if err := fraud.Check(ctx, security.FraudCheckInput{
				UserID:    userID,
				Amount:    amount,
				IPAddress: ip,
				UserAgent: r.UserAgent(),
				Endpoint:  r.URL.Path,
				Method:    r.Method,
			}); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		payment, err := svc.Create(ctx, payments.CreatePaymentInput{
			UserID:      userID,
			PropertyID:  propertyID,
			Amount:      amount,
			Currency:    currency,
			Provider:    provider,
			Description: payload.Description,
			PhoneNumber: payload.PhoneNumber,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		settled, err := orchestrator.ProcessCreated(ctx, payment)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentResponse(settled))
	}
}

// PaymentDetail returns one of the caller's payments. Someone else's payment
// id reads as not found.
func PaymentDetail(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing subject"))
			return
		}
		paymentID, err := uuid.Parse(chi.URLParam(r, "paymentId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment id must be a valid uuid"))
			return
		}

		payment, err := svc.GetByID(ctx, paymentID, &userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResponse(payment))
	}
}

// PaymentList returns the caller's payments, newest first, with optional
// status/provider filters.
func PaymentList(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing subject"))
			return
		}

		page, err := validators.ParseQueryInt(r, "page", 1, 1, 1_000_000)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		pageSize, err := validators.ParseQueryInt(r, "page_size", 20, 1, 100)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params := payments.ListParams{Page: page, PageSize: pageSize}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, parseErr := enums.ParsePaymentStatus(raw)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid status filter"))
				return
			}
			params.Status = &status
		}
		if raw := r.URL.Query().Get("provider"); raw != "" {
			provider, parseErr := enums.ParsePaymentProvider(raw)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid provider filter"))
				return
			}
			params.Provider = &provider
		}

		rows, meta, err := svc.ListByOwner(ctx, userID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items := make([]paymentResponse, 0, len(rows))
		for i := range rows {
			items = append(items, newPaymentResponse(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{"payments": items, "meta": meta})
	}
}

// PaymentStkPush sends an M-Pesa payment prompt to the payer's phone for a
// PENDING payment the caller owns. The amount was gated at creation time and
// is immutable, so only the behavioral fraud heuristics run here.
func PaymentStkPush(initiator stkInitiator, fraud fraudGate, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if initiator == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "mpesa service unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing subject"))
			return
		}

		var payload stkPushPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		paymentID, err := uuid.Parse(payload.PaymentID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment_id must be a valid uuid"))
			return
		}

		if fraud != nil {
			if err := fraud.Check(ctx, security.FraudCheckInput{
				UserID:    userID,
				IPAddress: middleware.ClientIP(r),
				UserAgent: r.UserAgent(),
				Endpoint:  r.URL.Path,
				Method:    r.Method,
			}); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		payment, err := initiator.InitiateStkPush(ctx, paymentID, userID, payload.PhoneNumber)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResponse(payment))
	}
}

// PaymentRefund reverses one of the caller's completed payments. The refund
// amount is derived from the original payment, so no amount gate runs here;
// the behavioral fraud heuristics still do.
func PaymentRefund(svc payments.Service, fraud fraudGate, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing subject"))
			return
		}
		paymentID, err := uuid.Parse(chi.URLParam(r, "paymentId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment id must be a valid uuid"))
			return
		}

		var payload refundPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if fraud != nil {
			if err := fraud.Check(ctx, security.FraudCheckInput{
				UserID:    userID,
				IPAddress: middleware.ClientIP(r),
				UserAgent: r.UserAgent(),
				Endpoint:  r.URL.Path,
				Method:    r.Method,
			}); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		payment, err := svc.Refund(ctx, paymentID, userID, payload.Reason)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResponse(payment))
	}
}
