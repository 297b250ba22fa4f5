package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/boqledger/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGinMiddlewareRecordsCompanyAndRecord(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(GinMiddleware())
	engine.Use(func(c *gin.Context) {
		ctx := obscontext.WithOrgID(c.Request.Context(), "42")
		ctx = obscontext.WithActor(ctx, "user", "u-1")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	engine.GET("/api/boqs/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/boqs/77", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET /api/boqs/:id", spans[0].Name())

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "42", attrs["boq.org_id"].AsString())
	assert.Equal(t, "user", attrs["boq.actor_type"].AsString())
	assert.Equal(t, "77", attrs["boq.record_id"].AsString())
	assert.EqualValues(t, http.StatusOK, attrs["http.status_code"].AsInt64())
}
