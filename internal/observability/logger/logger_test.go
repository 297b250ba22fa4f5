package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/boqledger/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsOnlyPresentFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithOrgID(ctx, "42")
	ctx = obscontext.WithActor(ctx, "system", "")

	WithContext(ctx, base).Info("certificate submitted")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "42", fields["org_id"])
	assert.Equal(t, "system", fields["actor_type"])
	assert.NotContains(t, fields, "actor_id")
	assert.NotContains(t, fields, "trace_id")
}

func TestWithContextWithoutValues(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithContext(context.Background(), base))
}

func TestEncoding(t *testing.T) {
	assert.Equal(t, "json", encoding("", false))
	assert.Equal(t, "console", encoding("", true))
	assert.Equal(t, "json", encoding("JSON", true))
	assert.Equal(t, "console", encoding(" console ", false))
}
