package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
)

const (
	refundReasonMinLen = 10
	refundReasonMaxLen = 500
)

// Refund reverses a completed payment. Only COMPLETED payments created within
// the refund window qualify; the refund amount is always the original amount,
// never caller-supplied.
func (s *service) Refund(ctx context.Context, paymentID, ownerID uuid.UUID, reason string) (*models.Payment, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < refundReasonMinLen || len(reason) > refundReasonMaxLen {
		return nil, pkgerrors.New(
			pkgerrors.CodeValidation,
			fmt.Sprintf("refund reason must be between %d and %d characters", refundReasonMinLen, refundReasonMaxLen),
		)
	}
	if s.refunder == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "refunds are not configured")
	}

	payment, err := s.GetByID(ctx, paymentID, &ownerID)
	if err != nil {
		return nil, err
	}

	if payment.Status != enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("only completed payments can be refunded, payment is %s", payment.Status),
		)
	}
	if time.Since(payment.CreatedAt) > refundWindow {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment is outside the refund window")
	}

	s.LogAction(ctx, payment.ID, ActionRefundRequested, map[string]any{"reason": reason})

	refundRef, err := s.refunder.Refund(ctx, payment)
	if err != nil {
		// The payment stays COMPLETED; nothing moved at the provider.
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "provider refund failed")
	}

	applied, err := s.repo.UpdateStatusFrom(
		ctx,
		payment.ID,
		[]enums.PaymentStatus{enums.PaymentStatusCompleted},
		enums.PaymentStatusRefunded,
		nil,
	)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment status changed concurrently")
	}

	s.LogAction(ctx, payment.ID, ActionRefundCompleted, map[string]any{
		"reason":     reason,
		"refund_ref": refundRef,
	})
	s.metrics.IncFinalized(payment.Provider.String(), enums.PaymentStatusRefunded.String())

	return s.hydrate(ctx, payment.ID)
}
