package auditcontext

import (
	"context"
	"strings"
)

type actorKey struct{}
type requestIDKey struct{}
type ipAddressKey struct{}
type userAgentKey struct{}

type actor struct {
	Type string
	ID   string
}

const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)

// WithActor records who is performing the request. Variation approvals are
// stamped with this identity.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{
		Type: strings.TrimSpace(actorType),
		ID:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if a, ok := ctx.Value(actorKey{}).(actor); ok {
		return a.Type, a.ID
	}
	return "", ""
}

func WithRequestMeta(ctx context.Context, requestID, ipAddress, userAgent string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey{}, requestID)
	ctx = context.WithValue(ctx, ipAddressKey{}, ipAddress)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

func IPAddressFromContext(ctx context.Context) string {
	return stringValue(ctx, ipAddressKey{})
}

func UserAgentFromContext(ctx context.Context) string {
	return stringValue(ctx, userAgentKey{})
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
