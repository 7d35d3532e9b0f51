package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EventMetrics counts node events flowing through the dispatcher.
type EventMetrics struct {
	events *prometheus.CounterVec
}

var (
	eventOnce     sync.Once
	eventRegistry *EventMetrics
)

// Events returns the dispatcher metrics registry.
func Events() *EventMetrics {
	eventOnce.Do(func() {
		eventRegistry = &EventMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "satspay",
				Subsystem: "events",
				Name:      "dispatched_total",
				Help:      "Count of node events dispatched, segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.events)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *EventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.events.WithLabelValues(normalized).Inc()
}

// WalletMetrics instruments the node connection facade.
type WalletMetrics struct {
	connects prometheus.Counter
	invoices prometheus.Counter
	sends    *prometheus.CounterVec
}

var (
	walletOnce     sync.Once
	walletRegistry *WalletMetrics
)

// Wallet returns the facade metrics registry.
func Wallet() *WalletMetrics {
	walletOnce.Do(func() {
		walletRegistry = &WalletMetrics{
			connects: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "satspay",
				Subsystem: "wallet",
				Name:      "connect_attempts_total",
				Help:      "Count of node connection attempts.",
			}),
			invoices: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "satspay",
				Subsystem: "wallet",
				Name:      "invoices_created_total",
				Help:      "Count of invoices created for receiving.",
			}),
			sends: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "satspay",
				Subsystem: "wallet",
				Name:      "payments_sent_total",
				Help:      "Count of outbound payment attempts by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(walletRegistry.connects, walletRegistry.invoices, walletRegistry.sends)
	})
	return walletRegistry
}

// RecordConnectAttempt counts one node connection attempt.
func (m *WalletMetrics) RecordConnectAttempt() {
	if m == nil {
		return
	}
	m.connects.Inc()
}

// RecordInvoiceCreated counts one created invoice.
func (m *WalletMetrics) RecordInvoiceCreated() {
	if m == nil {
		return
	}
	m.invoices.Inc()
}

// RecordPaymentSent counts one outbound payment attempt by outcome.
func (m *WalletMetrics) RecordPaymentSent(outcome string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(outcome).Inc()
}

// ClaimMetrics instruments the reward settlement reconciler.
type ClaimMetrics struct {
	claims *prometheus.CounterVec
}

var (
	claimOnce     sync.Once
	claimRegistry *ClaimMetrics
)

// Claims returns the reconciler metrics registry.
func Claims() *ClaimMetrics {
	claimOnce.Do(func() {
		claimRegistry = &ClaimMetrics{
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "satspay",
				Subsystem: "rewards",
				Name:      "claims_total",
				Help:      "Count of claim transitions by status.",
			}, []string{"status"}),
		}
		prometheus.MustRegister(claimRegistry.claims)
	})
	return claimRegistry
}

// RecordClaim counts one claim transition into the supplied status.
func (m *ClaimMetrics) RecordClaim(status string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(status).Inc()
}
