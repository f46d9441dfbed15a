package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
	"github.com/nyumbahub/nyumba-backend/pkg/metrics"
)

const (
	defaultStuckAfter = 10 * time.Minute
	defaultBatchSize  = 50
)

// stuckLister is the payment-store view the sweep needs.
type stuckLister interface {
	ListStuckProcessing(ctx context.Context, provider enums.PaymentProvider, olderThan time.Time, limit int) ([]models.Payment, error)
}

// resolver settles a single stuck payment against its provider.
type resolver interface {
	ResolveStuck(ctx context.Context, payment *models.Payment) (bool, enums.PaymentStatus, error)
}

// StuckPaymentJobParams configures the stuck-payment sweep.
type StuckPaymentJobParams struct {
	Logger     *logger.Logger
	Payments   stuckLister
	Resolver   resolver
	Metrics    *metrics.SweepMetrics
	StuckAfter time.Duration
	BatchSize  int
}

// NewStuckPaymentJob constructs the job that finalizes M-Pesa payments whose
// callback never arrived.
func NewStuckPaymentJob(params StuckPaymentJobParams) (*StuckPaymentJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment lister required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("resolver required")
	}
	stuckAfter := params.StuckAfter
	if stuckAfter <= 0 {
		stuckAfter = defaultStuckAfter
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &StuckPaymentJob{
		logg:       params.Logger,
		payments:   params.Payments,
		resolver:   params.Resolver,
		metrics:    params.Metrics,
		stuckAfter: stuckAfter,
		batchSize:  batchSize,
		now:        time.Now,
	}, nil
}

// StuckPaymentJob queries the provider for each PROCESSING payment older than
// the stuck threshold and applies the terminal status the provider reports.
type StuckPaymentJob struct {
	logg       *logger.Logger
	payments   stuckLister
	resolver   resolver
	metrics    *metrics.SweepMetrics
	stuckAfter time.Duration
	batchSize  int
	now        func() time.Time
}

// Name identifies the job in logs and metrics.
func (j *StuckPaymentJob) Name() string { return "stuck-payment-sweep" }

// Run processes one batch. Per-payment failures are logged and skipped so a
// single flaky provider query cannot stall the rest of the batch.
func (j *StuckPaymentJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.stuckAfter)
	rows, err := j.payments.ListStuckProcessing(ctx, enums.PaymentProviderMpesa, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("list stuck payments: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	j.logg.Info(j.logg.WithField(ctx, "count", len(rows)), "resolving stuck payments")
	for i := range rows {
		payment := rows[i]
		payCtx := j.logg.WithPaymentID(ctx, payment.ID.String())

		applied, status, err := j.resolver.ResolveStuck(ctx, &payment)
		if err != nil {
			j.logg.Error(payCtx, "stuck payment resolution failed", err)
			continue
		}
		if !applied {
			continue
		}
		j.metrics.IncResolved(status.String())
		j.logg.Info(j.logg.WithField(payCtx, "status", status.String()), "stuck payment resolved")
	}
	return nil
}
