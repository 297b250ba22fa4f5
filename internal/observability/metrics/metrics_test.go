package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_id", "123"),
		attribute.String("customer_id", "456"),
		attribute.String("aggregate", "certificate"),
	)
	assert.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("org_id"))
	assert.Contains(t, keys, attribute.Key("aggregate"))
}

func TestRecordersAreNilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordCertificateSubmitted(ctx, "1", 100)
		m.RecordVariationApplied(ctx, "1")
		m.RecordTransition(ctx, "boq", "approved")
		m.RecordRejected(ctx, "certificate.submit", "user_error")
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "boqledger"}, noop.NewMeterProvider())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.RecordCertificateSubmitted(context.Background(), "1", 250)
	})
}
