package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type orgIDKey struct{}
type actorKey struct{}

type actorValue struct {
	actorType string
	actorID   string
}

// WithRequestID stores the correlation id used in logs and spans.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey{}, strings.TrimSpace(orgID))
}

func OrgIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(orgIDKey{}).(string)
	return value
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorValue{
		actorType: strings.TrimSpace(actorType),
		actorID:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, _ := ctx.Value(actorKey{}).(actorValue)
	return value.actorType, value.actorID
}
