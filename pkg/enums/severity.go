package enums

// Severity classifies security events for downstream alerting.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityByEventType is the fixed classification table. Alerting thresholds
// depend on it staying stable across releases.
var severityByEventType = map[SecurityEventType]Severity{
	SecurityEventRateLimitExceeded:       SeverityMedium,
	SecurityEventSuspiciousAmount:        SeverityHigh,
	SecurityEventSuspiciousSmallAmount:   SeverityLow,
	SecurityEventRoundNumberAmount:       SeverityLow,
	SecurityEventRapidSuccessivePayments: SeverityMedium,
	SecurityEventRepeatedFailedPayments:  SeverityHigh,
	SecurityEventBlockedIPAccess:         SeverityCritical,
	SecurityEventSuspiciousIP:            SeverityMedium,
	SecurityEventInvalidPaymentData:      SeverityLow,
	SecurityEventCallbackAnomaly:         SeverityHigh,
}

// String implements fmt.Stringer.
func (s Severity) String() string {
	return string(s)
}

// IsValid reports whether the value is a known Severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SeverityFor returns the fixed severity for the event type. Unmapped types
// default to LOW.
func SeverityFor(eventType SecurityEventType) Severity {
	if severity, ok := severityByEventType[eventType]; ok {
		return severity
	}
	return SeverityLow
}
