package security

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

// Fraud heuristic thresholds.
const (
	failedPaymentLimit  = 3
	failedPaymentWindow = time.Hour

	rapidPaymentLimit  = 5
	rapidPaymentWindow = 24 * time.Hour
)

var (
	roundNumberUnit  = decimal.NewFromInt(1000)
	roundNumberFloor = decimal.NewFromInt(10_000)
)

// PaymentActivityCounter is the payment-history view the fraud checker needs.
type PaymentActivityCounter interface {
	CountByStatusSince(ctx context.Context, userID uuid.UUID, status enums.PaymentStatus, since time.Time) (int64, error)
}

// FraudCheckInput describes the attempt under evaluation.
type FraudCheckInput struct {
	UserID    uuid.UUID
	Amount    decimal.Decimal
	IPAddress string
	UserAgent string
	Endpoint  string
	Method    string
}

// FraudChecker applies behavioral heuristics before a payment is created.
// Only repeated failures block; the other heuristics record advisory events
// and let the payment proceed.
type FraudChecker struct {
	counts PaymentActivityCounter
	events Service
	logg   *logger.Logger
}

// NewFraudChecker wires the fraud heuristics.
func NewFraudChecker(counts PaymentActivityCounter, events Service, logg *logger.Logger) *FraudChecker {
	return &FraudChecker{counts: counts, events: events, logg: logg}
}

// Check evaluates the heuristics. Store errors fail open: an unavailable
// counter must not take payments down with it.
func (f *FraudChecker) Check(ctx context.Context, input FraudCheckInput) error {
	failed, err := f.counts.CountByStatusSince(ctx, input.UserID, enums.PaymentStatusFailed, time.Now().Add(-failedPaymentWindow))
	if err != nil {
		f.logg.Error(f.logg.WithUserID(ctx, input.UserID.String()), "failed-payment count unavailable", err)
	} else if failed >= failedPaymentLimit {
		f.events.LogAsync(f.event(enums.SecurityEventRepeatedFailedPayments, input, map[string]any{
			"failed_count": failed,
			"window":       failedPaymentWindow.String(),
		}))
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many failed payments, try again later")
	}

	if input.Amount.Mod(roundNumberUnit).IsZero() && input.Amount.GreaterThanOrEqual(roundNumberFloor) {
		f.events.LogAsync(f.event(enums.SecurityEventRoundNumberAmount, input, map[string]any{
			"amount": input.Amount.String(),
		}))
	}

	completed, err := f.counts.CountByStatusSince(ctx, input.UserID, enums.PaymentStatusCompleted, time.Now().Add(-rapidPaymentWindow))
	if err != nil {
		f.logg.Error(f.logg.WithUserID(ctx, input.UserID.String()), "completed-payment count unavailable", err)
	} else if completed >= rapidPaymentLimit {
		f.events.LogAsync(f.event(enums.SecurityEventRapidSuccessivePayments, input, map[string]any{
			"completed_count": completed,
			"window":          rapidPaymentWindow.String(),
		}))
	}

	return nil
}

func (f *FraudChecker) event(eventType enums.SecurityEventType, input FraudCheckInput, details map[string]any) Event {
	userID := input.UserID
	return Event{
		Type:      eventType,
		UserID:    &userID,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Endpoint:  input.Endpoint,
		Method:    input.Method,
		Details:   details,
	}
}
