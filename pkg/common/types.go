// Package common provides shared types and request-scoped values used across SDispatch.
package common

import (
	"context"
	"net/http"
)

// Middleware is a function that wraps an http.Handler.
// Middlewares run outside the dispatcher, before any route is resolved,
// so they see every request including 404s and WebSocket upgrades.
type Middleware func(http.Handler) http.Handler

type traceIDKey struct{}

type clientIPKey struct{}

// WithTraceID returns a copy of ctx carrying the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext returns the trace ID stored in ctx, or "" if none.
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithClientIP returns a copy of ctx carrying the resolved client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the client IP stored in ctx, or "" if none.
func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}
