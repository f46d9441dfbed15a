package mpesa

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nyumbahub/nyumba-backend/internal/payments"
	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
	"github.com/nyumbahub/nyumba-backend/pkg/metrics"
)

// Callback outcomes recorded on the callbacks metric.
const (
	callbackOutcomeCompleted = "completed"
	callbackOutcomeFailed    = "failed"
	callbackOutcomeDuplicate = "duplicate"
	callbackOutcomeUnmatched = "unmatched"
)

// Adapter drives the asynchronous M-Pesa round-trip: it initiates STK pushes
// against PENDING payments and reconciles Daraja callbacks against PROCESSING
// ones. It carries no synchronous processor because M-Pesa settles out of band.
type Adapter struct {
	client   DarajaClient
	payments payments.Service
	logg     *logger.Logger
	metrics  *metrics.PaymentMetrics
}

// NewAdapter wires the M-Pesa adapter.
func NewAdapter(client DarajaClient, paymentsSvc payments.Service, logg *logger.Logger, m *metrics.PaymentMetrics) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("daraja client required")
	}
	if paymentsSvc == nil {
		return nil, fmt.Errorf("payment service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Adapter{client: client, payments: paymentsSvc, logg: logg, metrics: m}, nil
}

// InitiateStkPush sends a payment prompt to the payer's phone and moves the
// payment PENDING -> PROCESSING, rekeying its transaction reference to the
// CheckoutRequestID so the callback can find it. Any failure past validation
// lands the payment in FAILED with the provider's reason preserved.
func (a *Adapter) InitiateStkPush(ctx context.Context, paymentID, ownerID uuid.UUID, rawPhone string) (*models.Payment, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	payment, err := a.payments.GetByID(ctx, paymentID, &ownerID)
	if err != nil {
		return nil, err
	}
	if payment.Provider != enums.PaymentProviderMpesa {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment is not an M-Pesa payment")
	}
	if payment.Status != enums.PaymentStatusPending {
		return nil, pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("stk push requires a PENDING payment, got %s", payment.Status),
		).WithDetails(map[string]any{"status": payment.Status})
	}

	description := "Nyumba payment"
	if payment.Description != nil && *payment.Description != "" {
		description = *payment.Description
	}

	resp, err := a.client.StkPush(ctx, StkPushRequest{
		Amount:           payment.Amount.IntPart(),
		PhoneNumber:      phone,
		AccountReference: accountReference(payment),
		Description:      description,
	})
	if err != nil {
		return a.failInitiation(ctx, payment, err.Error())
	}
	if resp.ResponseCode != "0" {
		return a.failInitiation(ctx, payment, fmt.Sprintf("daraja response %s: %s", resp.ResponseCode, resp.ResponseDescription))
	}

	updated, err := a.payments.UpdateStatus(ctx, payment.ID, payments.StatusUpdateInput{
		Status:  enums.PaymentStatusProcessing,
		Details: map[string]any{"checkout_request_id": resp.CheckoutRequestID},
		Fields: map[string]any{
			"transaction_ref": resp.CheckoutRequestID,
			"phone_number":    phone,
		},
	})
	if err != nil {
		return nil, err
	}

	a.payments.LogAction(ctx, payment.ID, payments.ActionStkPushInitiated, map[string]any{
		"merchant_request_id": resp.MerchantRequestID,
		"checkout_request_id": resp.CheckoutRequestID,
		"phone_number":        phone,
		"customer_message":    resp.CustomerMessage,
	})

	logCtx := a.logg.WithPaymentID(ctx, payment.ID.String())
	a.logg.Info(logCtx, "stk push initiated")
	return updated, nil
}

// accountReference labels the push on the payer's statement: the property
// title when the payment has one, otherwise a payment tag built from the id.
// Daraja caps the field at 12 characters.
func accountReference(payment *models.Payment) string {
	if payment.Property != nil && payment.Property.Title != "" {
		title := payment.Property.Title
		if len(title) > 12 {
			title = title[:12]
		}
		return title
	}
	id := payment.ID.String()
	return "Payment_" + id[len(id)-8:]
}

// failInitiation records the provider's rejection on the payment and surfaces
// a provider error to the caller.
func (a *Adapter) failInitiation(ctx context.Context, payment *models.Payment, reason string) (*models.Payment, error) {
	logCtx := a.logg.WithPaymentID(ctx, payment.ID.String())
	a.logg.Warn(logCtx, "stk push initiation failed")

	if _, err := a.payments.UpdateStatus(ctx, payment.ID, payments.StatusUpdateInput{
		Status:  enums.PaymentStatusFailed,
		Details: map[string]any{"error": reason},
		Fields:  map[string]any{"failure_reason": reason},
	}); err != nil {
		a.logg.Error(logCtx, "recording stk push failure", err)
	}
	return nil, pkgerrors.New(pkgerrors.CodeProvider, reason)
}

// CallbackResult tells the webhook controller what the callback amounted to.
// Anomalous callbacks (no matching payment) are reported here rather than as
// errors so the controller can acknowledge Daraja and stop retries.
type CallbackResult struct {
	PaymentID uuid.UUID
	Applied   bool
	Status    enums.PaymentStatus
	Anomaly   string
}

// HandleCallback reconciles a Daraja callback with its payment. The finalize
// step compare-and-swaps from PROCESSING, so a duplicate delivery observes
// Applied=false and changes nothing. A structurally invalid envelope is the
// only case returned as a validation error.
func (a *Adapter) HandleCallback(ctx context.Context, env CallbackEnvelope) (*CallbackResult, error) {
	if err := env.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid callback payload")
	}

	cb := env.Body.StkCallback
	payment, err := a.payments.GetByTransactionRef(ctx, enums.PaymentProviderMpesa, cb.CheckoutRequestID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			a.metrics.IncCallback(callbackOutcomeUnmatched)
			a.logg.Warn(a.logg.WithField(ctx, "checkout_request_id", cb.CheckoutRequestID), "callback matched no payment")
			return &CallbackResult{Anomaly: "no payment for checkout request"}, nil
		}
		return nil, err
	}

	// Every delivery is recorded, duplicates included, so the audit trail
	// shows exactly what the provider sent.
	a.payments.LogAction(ctx, payment.ID, payments.ActionMpesaCallbackReceived, map[string]any{
		"merchant_request_id": cb.MerchantRequestID,
		"checkout_request_id": cb.CheckoutRequestID,
		"result_code":         cb.ResultCode,
		"result_desc":         cb.ResultDesc,
	})

	var (
		target  enums.PaymentStatus
		details map[string]any
		fields  map[string]any
		outcome string
	)
	if cb.ResultCode == 0 {
		receipt := extractReceipt(cb.CallbackMetadata)
		target = enums.PaymentStatusCompleted
		outcome = callbackOutcomeCompleted
		details = map[string]any{
			"mpesa_receipt":    receipt.Receipt,
			"transaction_date": receipt.TransactionDate,
			"amount":           receipt.Amount.String(),
		}
		fields = map[string]any{}
		if receipt.Receipt != "" {
			fields["mpesa_receipt"] = receipt.Receipt
		}
		if receipt.PhoneNumber != "" {
			fields["phone_number"] = receipt.PhoneNumber
		}
	} else {
		reason := fmt.Sprintf("result %d: %s", cb.ResultCode, cb.ResultDesc)
		target = enums.PaymentStatusFailed
		outcome = callbackOutcomeFailed
		details = map[string]any{"result_code": cb.ResultCode, "result_desc": cb.ResultDesc}
		fields = map[string]any{"failure_reason": reason}
	}

	applied, err := a.payments.FinalizeProcessing(ctx, payment.ID, target, details, fields)
	if err != nil {
		return nil, err
	}
	if !applied {
		outcome = callbackOutcomeDuplicate
	}
	a.metrics.IncCallback(outcome)

	logCtx := a.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"applied":    applied,
		"status":     target.String(),
	})
	a.logg.Info(logCtx, "mpesa callback reconciled")

	return &CallbackResult{PaymentID: payment.ID, Applied: applied, Status: target}, nil
}

// ResolveStuck settles a PROCESSING payment whose callback never arrived by
// querying Daraja for the push outcome. It reports whether a transition was
// applied.
func (a *Adapter) ResolveStuck(ctx context.Context, payment *models.Payment) (bool, enums.PaymentStatus, error) {
	if payment.Status != enums.PaymentStatusProcessing {
		return false, payment.Status, nil
	}

	resp, err := a.client.StkQuery(ctx, payment.TransactionRef)
	if err != nil {
		return false, payment.Status, fmt.Errorf("query stk push: %w", err)
	}

	target := enums.PaymentStatusFailed
	fields := map[string]any{"failure_reason": fmt.Sprintf("result %s: %s", resp.ResultCode, resp.ResultDesc)}
	if resp.ResultCode == "0" {
		target = enums.PaymentStatusCompleted
		fields = nil
	}

	applied, err := a.payments.FinalizeProcessing(ctx, payment.ID, target, map[string]any{
		"source":      "sweep",
		"result_code": resp.ResultCode,
		"result_desc": resp.ResultDesc,
	}, fields)
	if err != nil {
		return false, payment.Status, err
	}
	if applied {
		a.payments.LogAction(ctx, payment.ID, payments.ActionSweepResolved, map[string]any{
			"result_code": resp.ResultCode,
			"status":      target.String(),
		})
	}
	return applied, target, nil
}
