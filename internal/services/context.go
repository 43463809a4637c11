package services

import "context"

type contextKey string

const (
	cycleIDKey   contextKey = "cycle_id"
	commandKey   contextKey = "command"
	requestIDKey contextKey = "request_id"
)

// WithCycleID annotates context with the capture cycle identifier.
func WithCycleID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, cycleIDKey, id)
}

// CycleIDFromContext extracts the capture cycle identifier if present.
func CycleIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(cycleIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithCommand annotates context with the command being served (capture_before, ...).
func WithCommand(ctx context.Context, command string) context.Context {
	if command == "" {
		return ctx
	}
	return context.WithValue(ctx, commandKey, command)
}

// CommandFromContext returns the command name if present.
func CommandFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(commandKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
