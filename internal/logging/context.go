package logging

import (
	"context"
	"log/slog"

	"nutriflow/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType names the machine-readable event a log line records.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldCycleID is the capture cycle identifier.
	FieldCycleID = "cycle_id"
	// FieldCommand is the command surface operation being served.
	FieldCommand = "command"
	// FieldCorrelationID is the per-request correlation identifier.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.CycleIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCycleID, id))
	}
	if cmd, ok := services.CommandFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCommand, cmd))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
