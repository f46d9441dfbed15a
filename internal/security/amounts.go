package security

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
)

// hardAmountCap rejects any amount above it regardless of currency.
var hardAmountCap = decimal.NewFromInt(10_000_000)

// smallAmountFloor marks card-testing style micro amounts for review.
var smallAmountFloor = decimal.NewFromInt(1)

// amountBand is the accepted per-currency range.
type amountBand struct {
	min decimal.Decimal
	max decimal.Decimal
}

var amountBands = map[enums.Currency]amountBand{
	enums.CurrencyKES: {min: decimal.NewFromInt(10), max: decimal.NewFromInt(5_000_000)},
	enums.CurrencyUSD: {min: decimal.NewFromInt(1), max: decimal.NewFromInt(50_000)},
}

// AmountCheckInput describes the amount under validation.
type AmountCheckInput struct {
	UserID    uuid.UUID
	Amount    decimal.Decimal
	Currency  enums.Currency
	IPAddress string
	UserAgent string
	Endpoint  string
	Method    string
}

// AmountValidator gates payment amounts. Amounts above the hard cap or outside
// the currency band are rejected; micro amounts pass with an advisory event.
type AmountValidator struct {
	events Service
}

// NewAmountValidator wires the amount gate.
func NewAmountValidator(events Service) *AmountValidator {
	return &AmountValidator{events: events}
}

// Check validates the amount against the hard cap and the currency band.
func (v *AmountValidator) Check(ctx context.Context, input AmountCheckInput) error {
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}

	if input.Amount.GreaterThan(hardAmountCap) {
		v.events.LogAsync(v.event(enums.SecurityEventSuspiciousAmount, input))
		return pkgerrors.New(pkgerrors.CodeSecurityPolicy, "amount exceeds the maximum allowed")
	}

	if input.Amount.LessThan(smallAmountFloor) {
		v.events.LogAsync(v.event(enums.SecurityEventSuspiciousSmallAmount, input))
	}

	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyKES
	}
	band, ok := amountBands[currency]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", input.Currency))
	}
	if input.Amount.LessThan(band.min) || input.Amount.GreaterThan(band.max) {
		v.events.LogAsync(v.event(enums.SecurityEventInvalidPaymentData, input))
		return pkgerrors.New(
			pkgerrors.CodeValidation,
			fmt.Sprintf("amount must be between %s and %s %s", band.min, band.max, currency),
		).WithDetails(map[string]any{"min": band.min.String(), "max": band.max.String(), "currency": currency})
	}

	return nil
}

func (v *AmountValidator) event(eventType enums.SecurityEventType, input AmountCheckInput) Event {
	userID := input.UserID
	return Event{
		Type:      eventType,
		UserID:    &userID,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Endpoint:  input.Endpoint,
		Method:    input.Method,
		Details: map[string]any{
			"amount":   input.Amount.String(),
			"currency": input.Currency.String(),
		},
	}
}
