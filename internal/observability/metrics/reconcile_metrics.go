package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics exposes reconciliation health on the prometheus registry
// scraped at /metrics and shipped by the metrics pusher.
type ReconcileMetrics struct {
	outcomes      *prometheus.CounterVec
	receipts      *prometheus.CounterVec
	gatewayErrors *prometheus.CounterVec
	queueDepth    prometheus.Gauge
}

var (
	reconcileMetricsOnce sync.Once
	reconcileMetrics     *ReconcileMetrics
)

// Reconcile returns the singleton reconciliation metrics registry.
func Reconcile() *ReconcileMetrics {
	return ReconcileWithConfig(Config{})
}

// ReconcileWithConfig returns the singleton registry using config labels.
func ReconcileWithConfig(cfg Config) *ReconcileMetrics {
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = newReconcileMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcileMetrics
}

// ResetReconcileMetricsForTest swaps the singleton for one bound to registerer.
func ResetReconcileMetricsForTest(registerer prometheus.Registerer) *ReconcileMetrics {
	reconcileMetricsOnce = sync.Once{}
	reconcileMetrics = nil
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = newReconcileMetrics(registerer, Config{})
	})
	return reconcileMetrics
}

func newReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "kudos"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kudos_reconcile_outcomes_total",
		Help:        "Webhook reconciliations by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	receipts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kudos_receipt_deliveries_total",
		Help:        "Receipt deliveries by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	gatewayErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kudos_gateway_errors_total",
		Help:        "Payment gateway call failures by operation.",
		ConstLabels: constLabels,
	}, []string{"operation"})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "kudos_notification_queue_depth",
		Help:        "Scheduled notifications not yet delivered.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(outcomes, receipts, gatewayErrors, queueDepth)

	return &ReconcileMetrics{
		outcomes:      outcomes,
		receipts:      receipts,
		gatewayErrors: gatewayErrors,
		queueDepth:    queueDepth,
	}
}

func (m *ReconcileMetrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *ReconcileMetrics) ObserveReceipt(result string) {
	if m == nil {
		return
	}
	m.receipts.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *ReconcileMetrics) ObserveGatewayError(operation string) {
	if m == nil {
		return
	}
	m.gatewayErrors.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *ReconcileMetrics) SetQueueDepth(depth int64) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func normalizeLabel(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}
