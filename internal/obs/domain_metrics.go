package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartMutationsTotal counts cart operations by kind and outcome.
	CartMutationsTotal *prometheus.CounterVec
	// CheckoutGateTotal counts minimum-order gate decisions by tier.
	CheckoutGateTotal *prometheus.CounterVec
	// OrdersPlacedTotal counts committed orders by tier.
	OrdersPlacedTotal *prometheus.CounterVec
	// ReconcileRunsTotal counts reconciliation runs by outcome.
	ReconcileRunsTotal *prometheus.CounterVec
	// ReconcileItemsTotal counts reconciled line items by outcome.
	ReconcileItemsTotal *prometheus.CounterVec
	// ReconcileDuration records how long a reconciliation transaction takes.
	ReconcileDuration prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartMutationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart operations by kind and result.",
		}, []string{"op", "result"}))
		CheckoutGateTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_minimum_gate_total",
			Help:      "Count of minimum-order gate decisions.",
		}, []string{"tier", "result"}))
		OrdersPlacedTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Count of committed orders by tier.",
		}, []string{"tier"}))
		ReconcileRunsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_reconcile_runs_total",
			Help:      "Count of price reconciliation runs by result.",
		}, []string{"result"}))
		ReconcileItemsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_reconcile_items_total",
			Help:      "Count of reconciled order items by outcome.",
		}, []string{"outcome"}))
		ReconcileDuration = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_reconcile_duration_ms",
			Help:      "Duration of price reconciliation transactions in milliseconds.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}))
	})
}

// IncCartMutation records a cart operation when metrics are registered.
func IncCartMutation(op, result string) {
	if CartMutationsTotal != nil {
		CartMutationsTotal.WithLabelValues(op, result).Inc()
	}
}

// IncCheckoutGate records a minimum gate decision when metrics are registered.
func IncCheckoutGate(tier, result string) {
	if CheckoutGateTotal != nil {
		CheckoutGateTotal.WithLabelValues(tier, result).Inc()
	}
}

// IncOrderPlaced records a committed order when metrics are registered.
func IncOrderPlaced(tier string) {
	if OrdersPlacedTotal != nil {
		OrdersPlacedTotal.WithLabelValues(tier).Inc()
	}
}

// ObserveReconcile records the outcome of one reconciliation run.
func ObserveReconcile(result string, updated, unchanged, skipped int, took time.Duration) {
	if ReconcileRunsTotal == nil {
		return
	}
	ReconcileRunsTotal.WithLabelValues(result).Inc()
	ReconcileItemsTotal.WithLabelValues("updated").Add(float64(updated))
	ReconcileItemsTotal.WithLabelValues("unchanged").Add(float64(unchanged))
	ReconcileItemsTotal.WithLabelValues("skipped").Add(float64(skipped))
	ReconcileDuration.Observe(DurationMillis(took))
}
