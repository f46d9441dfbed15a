package flutterwave

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nyumbahub/nyumba-backend/internal/providers"
	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

const statusSuccess = "success"

// Adapter settles payments through Flutterwave's mobile-money rail. The charge
// is treated as settled when Flutterwave reports the transaction successful;
// pending charges are surfaced as failures so the payment never sits in limbo
// waiting for a webhook this integration does not consume.
type Adapter struct {
	api  API
	logg *logger.Logger
}

// NewAdapter wires the Flutterwave adapter.
func NewAdapter(api API, logg *logger.Logger) (*Adapter, error) {
	if api == nil {
		return nil, fmt.Errorf("flutterwave api required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Adapter{api: api, logg: logg}, nil
}

// Process charges the payer through Flutterwave.
func (a *Adapter) Process(ctx context.Context, payment *models.Payment) (*providers.Result, error) {
	req := ChargeRequest{
		TxRef:    payment.TransactionRef,
		Amount:   payment.Amount.String(),
		Currency: payment.Currency.String(),
	}
	if payment.PhoneNumber != nil {
		req.PhoneNumber = *payment.PhoneNumber
	}
	if payment.Description != nil {
		req.Narration = *payment.Description
	}

	resp, err := a.api.Charge(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("flutterwave charge: %w", err)
	}

	transactionID := strconv.FormatInt(resp.Data.ID, 10)
	if resp.Status != statusSuccess || resp.Data.Status != "successful" {
		return &providers.Result{
			Success:       false,
			TransactionID: transactionID,
			Message:       fmt.Sprintf("charge %s: %s", resp.Data.Status, resp.Message),
		}, nil
	}

	a.logg.Info(a.logg.WithPaymentID(ctx, payment.ID.String()), "flutterwave charge settled")
	return &providers.Result{Success: true, TransactionID: transactionID, Message: resp.Message}, nil
}

// Refund reverses the full settled amount of the payment's transaction.
func (a *Adapter) Refund(ctx context.Context, payment *models.Payment) (*providers.Result, error) {
	resp, err := a.api.RefundTransaction(ctx, payment.TransactionRef, RefundRequest{})
	if err != nil {
		return nil, fmt.Errorf("flutterwave refund: %w", err)
	}

	refundID := strconv.FormatInt(resp.Data.ID, 10)
	if resp.Status != statusSuccess {
		return &providers.Result{
			Success:       false,
			TransactionID: refundID,
			Message:       resp.Message,
		}, nil
	}

	a.logg.Info(a.logg.WithPaymentID(ctx, payment.ID.String()), "flutterwave refund accepted")
	return &providers.Result{Success: true, TransactionID: refundID, Message: resp.Message}, nil
}
