package mpesa

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CallbackEnvelope is the payload Daraja posts to the callback URL after the
// payer responds to (or ignores) the STK prompt.
type CallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

// StkCallback carries the outcome of a single push. ResultCode 0 means the
// payer completed the payment; anything else is a failure or cancellation.
type StkCallback struct {
	MerchantRequestID string           `json:"MerchantRequestID"`
	CheckoutRequestID string           `json:"CheckoutRequestID"`
	ResultCode        int              `json:"ResultCode"`
	ResultDesc        string           `json:"ResultDesc"`
	CallbackMetadata  CallbackMetadata `json:"CallbackMetadata"`
}

// CallbackMetadata is only present on successful callbacks.
type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

// CallbackItem values arrive untyped: amounts as numbers, receipts and phone
// numbers as strings, transaction dates as numbers in yyyyMMddHHmmss form.
type CallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

// Validate checks the structural minimum a callback must carry to be routable.
func (e CallbackEnvelope) Validate() error {
	if strings.TrimSpace(e.Body.StkCallback.CheckoutRequestID) == "" {
		return fmt.Errorf("callback is missing CheckoutRequestID")
	}
	return nil
}

// receiptDetails is what a successful callback contributes to the payment row.
type receiptDetails struct {
	Amount          decimal.Decimal
	Receipt         string
	PhoneNumber     string
	TransactionDate string
}

// extractReceipt pulls the known metadata items out of a success callback.
// Unknown items are ignored; a missing receipt is tolerated because sandbox
// callbacks omit it.
func extractReceipt(meta CallbackMetadata) receiptDetails {
	var details receiptDetails
	for _, item := range meta.Item {
		switch item.Name {
		case "Amount":
			if v, ok := item.Value.(float64); ok {
				details.Amount = decimal.NewFromFloat(v)
			}
		case "MpesaReceiptNumber":
			if v, ok := item.Value.(string); ok {
				details.Receipt = v
			}
		case "PhoneNumber":
			details.PhoneNumber = stringify(item.Value)
		case "TransactionDate":
			details.TransactionDate = stringify(item.Value)
		}
	}
	return details
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return decimal.NewFromFloat(t).String()
	default:
		return ""
	}
}
