package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records payment lifecycle outcomes.
type PaymentMetrics struct {
	created   *prometheus.CounterVec
	finalized *prometheus.CounterVec
	callbacks *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_created_total",
		Help: "Payments created, labeled by provider.",
	}, []string{"provider"})
	finalized := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_finalized_total",
		Help: "Payments reaching a terminal status, labeled by provider and status.",
	}, []string{"provider", "status"})
	callbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Provider callbacks received, labeled by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(created, finalized, callbacks)
	return &PaymentMetrics{
		created:   created,
		finalized: finalized,
		callbacks: callbacks,
	}
}

// IncCreated counts a created payment for the provider.
func (p *PaymentMetrics) IncCreated(provider string) {
	if p == nil || p.created == nil {
		return
	}
	p.created.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncFinalized counts a payment reaching a terminal status.
func (p *PaymentMetrics) IncFinalized(provider, status string) {
	if p == nil || p.finalized == nil {
		return
	}
	p.finalized.WithLabelValues(normalizeLabel(provider), normalizeLabel(status)).Inc()
}

// IncCallback counts a provider callback delivery.
func (p *PaymentMetrics) IncCallback(outcome string) {
	if p == nil || p.callbacks == nil {
		return
	}
	p.callbacks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
