package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/nyumbahub/nyumba-backend/internal/providers"
	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

var minorUnits = decimal.NewFromInt(100)

// Adapter settles card payments synchronously through Stripe PaymentIntents.
// It implements both the processor and refunder capabilities.
type Adapter struct {
	client PaymentClient
	logg   *logger.Logger
}

// NewAdapter wires the Stripe card adapter.
func NewAdapter(client PaymentClient, logg *logger.Logger) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Adapter{client: client, logg: logg}, nil
}

// Process creates and confirms a PaymentIntent for the payment's amount.
// Stripe requires minor units, so KES 1500.00 goes over the wire as 150000.
func (a *Adapter) Process(ctx context.Context, payment *models.Payment) (*providers.Result, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(payment.Amount.Mul(minorUnits).IntPart()),
		Currency: stripe.String(strings.ToLower(payment.Currency.String())),
		Confirm:  stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
		Metadata: map[string]string{
			"payment_id":      payment.ID.String(),
			"transaction_ref": payment.TransactionRef,
		},
	}

	intent, err := a.client.CreateIntent(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return &providers.Result{
			Success:       false,
			TransactionID: intent.ID,
			Message:       fmt.Sprintf("payment intent %s in status %s", intent.ID, intent.Status),
		}, nil
	}

	a.logg.Info(a.logg.WithPaymentID(ctx, payment.ID.String()), "stripe payment intent succeeded")
	return &providers.Result{Success: true, TransactionID: intent.ID, Message: "succeeded"}, nil
}

// Refund reverses the full charge behind the payment's PaymentIntent.
func (a *Adapter) Refund(ctx context.Context, payment *models.Payment) (*providers.Result, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(payment.TransactionRef),
		Metadata: map[string]string{
			"payment_id": payment.ID.String(),
		},
	}

	ref, err := a.client.CreateRefund(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}

	if ref.Status == stripe.RefundStatusFailed || ref.Status == stripe.RefundStatusCanceled {
		return &providers.Result{
			Success:       false,
			TransactionID: ref.ID,
			Message:       fmt.Sprintf("refund %s in status %s", ref.ID, ref.Status),
		}, nil
	}

	a.logg.Info(a.logg.WithPaymentID(ctx, payment.ID.String()), "stripe refund accepted")
	return &providers.Result{Success: true, TransactionID: ref.ID, Message: string(ref.Status)}, nil
}
