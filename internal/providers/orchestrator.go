package providers

import (
	"context"

	"github.com/nyumbahub/nyumba-backend/internal/payments"
	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

// Orchestrator drives a freshly created payment through its synchronous
// provider, honoring the rule that a persisted payment must always land in
// PROCESSING or a terminal status - never limbo.
type Orchestrator struct {
	registry *Registry
	payments payments.Service
	logg     *logger.Logger
}

// NewOrchestrator wires the provider orchestrator.
func NewOrchestrator(registry *Registry, paymentsSvc payments.Service, logg *logger.Logger) *Orchestrator {
	return &Orchestrator{registry: registry, payments: paymentsSvc, logg: logg}
}

// ProcessCreated settles a PENDING payment with its synchronous provider.
// Providers without a synchronous phase (M-Pesa) are left PENDING for their
// own initiation flow. Provider failures are recorded on the payment as FAILED
// and never propagated as errors: the caller receives the failed payment.
func (o *Orchestrator) ProcessCreated(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	processor, ok := o.registry.Processor(payment.Provider)
	if !ok {
		return payment, nil
	}

	result, err := processor.Process(ctx, payment)
	if err != nil {
		return o.fail(ctx, payment, err.Error())
	}
	if !result.Success {
		return o.fail(ctx, payment, result.Message)
	}

	fields := map[string]any{}
	if result.TransactionID != "" {
		fields["transaction_ref"] = result.TransactionID
	}
	updated, err := o.payments.UpdateStatus(ctx, payment.ID, payments.StatusUpdateInput{
		Status:  enums.PaymentStatusCompleted,
		Details: map[string]any{"provider_transaction_id": result.TransactionID},
		Fields:  fields,
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (o *Orchestrator) fail(ctx context.Context, payment *models.Payment, reason string) (*models.Payment, error) {
	logCtx := o.logg.WithProvider(o.logg.WithPaymentID(ctx, payment.ID.String()), payment.Provider.String())
	o.logg.Warn(logCtx, "provider rejected payment")

	// The adapter's error text is preserved verbatim on the payment log and
	// failure reason; the HTTP layer decides what the caller may see.
	updated, err := o.payments.UpdateStatus(ctx, payment.ID, payments.StatusUpdateInput{
		Status:  enums.PaymentStatusFailed,
		Details: map[string]any{"error": reason},
		Fields:  map[string]any{"failure_reason": reason},
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
