package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type requestCtxKey struct{}
type roleCtxKey struct{}
type loggerCtxKey struct{}

const (
	maxIDLen   = 128
	maxRoleLen = 64
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	if role := RoleFromContext(ctx); role != "" {
		fields = append(fields, zap.String("user.role", role))
	}
	return fields
}

// WithRequestID adds a request ID to ctx. IDs that are empty, too long, or
// contain characters outside [A-Za-z0-9_-] are ignored so client-supplied
// headers cannot inject into log lines.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" || len(requestID) > maxIDLen || !idPattern.MatchString(requestID) {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from ctx.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRole records the caller's role, truncated to 64 runes.
func WithRole(ctx context.Context, role string) context.Context {
	if role == "" {
		return ctx
	}
	if r := []rune(role); len(r) > maxRoleLen {
		role = string(r[:maxRoleLen])
	}
	return context.WithValue(ctx, roleCtxKey{}, role)
}

// RoleFromContext extracts the caller's role from ctx.
func RoleFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(roleCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger from ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return NewNop()
}
