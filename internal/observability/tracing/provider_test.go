package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesKeepsHTTPFields(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/boqs/:id"),
		attribute.String("customer_name", "ACME"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorTruncates(t *testing.T) {
	err := SafeError(errors.New("first line\nsecond line"))
	assert.EqualError(t, err, "first line")
	assert.Nil(t, SafeError(nil))
}
