package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records webhook traffic and settlement outcomes.
type PaymentMetrics struct {
	events      *prometheus.CounterVec
	settlements *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_total",
		Help: "Gateway webhook events by type and result.",
	}, []string{"type", "result"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_total",
		Help: "Terminal settlement transitions by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(events, settlements)
	return &PaymentMetrics{
		events:      events,
		settlements: settlements,
	}
}

// ObserveEvent counts one webhook event with its processing result.
func (p *PaymentMetrics) ObserveEvent(eventType, result string) {
	if p == nil || p.events == nil {
		return
	}
	p.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}

// ObserveSettlement counts one applied terminal transition.
func (p *PaymentMetrics) ObserveSettlement(outcome string) {
	if p == nil || p.settlements == nil {
		return
	}
	p.settlements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
