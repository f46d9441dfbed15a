package providers

import (
	"context"
	"fmt"

	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
)

// Result is the outcome of a synchronous provider call.
type Result struct {
	Success       bool
	TransactionID string
	Message       string
}

// Processor settles a payment synchronously with its gateway.
type Processor interface {
	Process(ctx context.Context, payment *models.Payment) (*Result, error)
}

// Refunder reverses a previously settled payment with its gateway.
type Refunder interface {
	Refund(ctx context.Context, payment *models.Payment) (*Result, error)
}

// Capabilities bundles what a gateway adapter can do. Asynchronous providers
// (M-Pesa) leave Processor nil and are driven through their own initiation and
// callback entry points.
type Capabilities struct {
	Processor Processor
	Refunder  Refunder
}

// Registry maps providers to adapter capabilities. It is built once at startup
// so adding a gateway is a table entry, not a branch scattered across callers.
type Registry struct {
	adapters map[enums.PaymentProvider]Capabilities
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[enums.PaymentProvider]Capabilities{}}
}

// Register binds capabilities to a provider.
func (r *Registry) Register(provider enums.PaymentProvider, caps Capabilities) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid payment provider %q", provider)
	}
	if _, exists := r.adapters[provider]; exists {
		return fmt.Errorf("provider %s already registered", provider)
	}
	r.adapters[provider] = caps
	return nil
}

// Processor returns the synchronous processor for the provider, if any.
func (r *Registry) Processor(provider enums.PaymentProvider) (Processor, bool) {
	caps, ok := r.adapters[provider]
	if !ok || caps.Processor == nil {
		return nil, false
	}
	return caps.Processor, true
}

// Refund dispatches a refund to the payment's provider adapter. It satisfies
// the payment service's Refunder dependency.
func (r *Registry) Refund(ctx context.Context, payment *models.Payment) (string, error) {
	if payment == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment is required")
	}
	caps, ok := r.adapters[payment.Provider]
	if !ok || caps.Refunder == nil {
		return "", pkgerrors.New(pkgerrors.CodeProvider, fmt.Sprintf("provider %s does not support refunds", payment.Provider))
	}

	result, err := caps.Refunder.Refund(ctx, payment)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", pkgerrors.New(pkgerrors.CodeProvider, result.Message)
	}
	return result.TransactionID, nil
}
