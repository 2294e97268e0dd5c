package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("outcome", "updated"),
		attribute.String("donor_email", "a@example.org"),
		attribute.String("status", "paid"),
	)
	assert.Len(t, attrs, 2)
	for _, attr := range attrs {
		assert.NotEqual(t, attribute.Key("donor_email"), attr.Key)
	}
}

func TestRecordWebhookFeedsPrometheusCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	rm := ResetReconcileMetricsForTest(registry)
	t.Cleanup(func() { ResetReconcileMetricsForTest(prometheus.NewRegistry()) })

	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	m.RecordWebhook(context.Background(), "duplicate", "paid")
	m.RecordWebhook(context.Background(), "duplicate", "paid")
	m.RecordWebhook(context.Background(), "updated", "paid")

	assert.Equal(t, float64(2), testutil.ToFloat64(rm.outcomes.WithLabelValues("duplicate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rm.outcomes.WithLabelValues("updated")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordWebhook(context.Background(), "updated", "paid")
	m.RecordReceipt(context.Background(), "sent")

	var rm *ReconcileMetrics
	rm.ObserveGatewayError("get_payment")
	rm.SetQueueDepth(3)
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "unknown", normalizeLabel("  "))
	assert.Equal(t, "not_found", normalizeLabel(" NOT_FOUND "))
}
