package logging

import (
	"context"
	"log/slog"

	"bidsmirror/internal/services"
)

// Standard structured field keys.
const (
	FieldComponent = "component"
	FieldUnitID    = "unit_id"
	FieldStage     = "stage"
	FieldRunID     = "run_id"
	FieldBranch    = "branch"
	// FieldEventType classifies a line for filtering, e.g. "mirror_ready_timeout".
	FieldEventType = "event_type"
	// FieldErrorHint carries a short operator-facing next step.
	FieldErrorHint = "error_hint"
)

// ContextFields returns the unit, stage and run identifiers carried by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	add := func(key string, value string, ok bool) {
		if ok {
			fields = append(fields, slog.String(key, value))
		}
	}
	id, ok := services.UnitIDFromContext(ctx)
	add(FieldUnitID, id, ok)
	stage, ok := services.StageFromContext(ctx)
	add(FieldStage, stage, ok)
	run, ok := services.RunIDFromContext(ctx)
	add(FieldRunID, run, ok)
	return fields
}

// WithContext returns logger annotated with ContextFields(ctx).
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(Args(fields...)...)
	}
	return logger
}
