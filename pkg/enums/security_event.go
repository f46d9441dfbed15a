package enums

import "fmt"

// SecurityEventType enumerates the audit events the security layer records.
type SecurityEventType string

const (
	SecurityEventRateLimitExceeded       SecurityEventType = "RATE_LIMIT_EXCEEDED"
	SecurityEventSuspiciousAmount        SecurityEventType = "SUSPICIOUS_AMOUNT"
	SecurityEventSuspiciousSmallAmount   SecurityEventType = "SUSPICIOUS_SMALL_AMOUNT"
	SecurityEventRoundNumberAmount       SecurityEventType = "ROUND_NUMBER_AMOUNT"
	SecurityEventRapidSuccessivePayments SecurityEventType = "RAPID_SUCCESSIVE_PAYMENTS"
	SecurityEventRepeatedFailedPayments  SecurityEventType = "REPEATED_FAILED_PAYMENTS"
	SecurityEventBlockedIPAccess         SecurityEventType = "BLOCKED_IP_ACCESS"
	SecurityEventSuspiciousIP            SecurityEventType = "SUSPICIOUS_IP"
	SecurityEventInvalidPaymentData      SecurityEventType = "INVALID_PAYMENT_DATA"
	SecurityEventCallbackAnomaly         SecurityEventType = "CALLBACK_ANOMALY"
)

var validSecurityEventTypes = []SecurityEventType{
	SecurityEventRateLimitExceeded,
	SecurityEventSuspiciousAmount,
	SecurityEventSuspiciousSmallAmount,
	SecurityEventRoundNumberAmount,
	SecurityEventRapidSuccessivePayments,
	SecurityEventRepeatedFailedPayments,
	SecurityEventBlockedIPAccess,
	SecurityEventSuspiciousIP,
	SecurityEventInvalidPaymentData,
	SecurityEventCallbackAnomaly,
}

// String implements fmt.Stringer.
func (s SecurityEventType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SecurityEventType.
func (s SecurityEventType) IsValid() bool {
	for _, candidate := range validSecurityEventTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSecurityEventType converts raw input into a SecurityEventType.
func ParseSecurityEventType(value string) (SecurityEventType, error) {
	for _, candidate := range validSecurityEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid security event type %q", value)
}
