package manual

import (
	"context"
	"fmt"

	"github.com/nyumbahub/nyumba-backend/internal/providers"
	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

// Adapter covers out-of-band rails (bank transfer, cash) that an agent settles
// by hand. Recording the payment is the settlement, so processing succeeds
// immediately with the payment's own reference. Refunds stay manual and are
// deliberately not offered through the API.
type Adapter struct {
	rail string
	logg *logger.Logger
}

// NewAdapter wires a manual-settlement adapter for the named rail.
func NewAdapter(rail string, logg *logger.Logger) (*Adapter, error) {
	if rail == "" {
		return nil, fmt.Errorf("rail name required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Adapter{rail: rail, logg: logg}, nil
}

// Process acknowledges the manually settled payment.
func (a *Adapter) Process(ctx context.Context, payment *models.Payment) (*providers.Result, error) {
	logCtx := a.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"rail":       a.rail,
	})
	a.logg.Info(logCtx, "manual payment recorded")

	return &providers.Result{
		Success:       true,
		TransactionID: payment.TransactionRef,
		Message:       fmt.Sprintf("recorded via %s", a.rail),
	}, nil
}
