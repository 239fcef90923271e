package hooks

import (
	"context"
	"log/slog"
)

// LoggingHooks writes one structured log line per call outcome.
type LoggingHooks struct {
	Nop
	Logger *slog.Logger
}

// NewLoggingHooks creates logging hooks on logger, or slog.Default().
func NewLoggingHooks(logger *slog.Logger) *LoggingHooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingHooks{Logger: logger.With("component", "passthrough")}
}

func (h *LoggingHooks) Success(ctx context.Context, ev *SuccessEvent) error {
	attrs := []any{
		"call_id", ev.CallID,
		"endpoint_id", ev.EndpointID,
		"route", ev.Route,
		"method", ev.Method,
		"status", ev.StatusCode,
		"streaming", ev.Streaming,
		"flavor", ev.Flavor,
		"duration_ms", ev.Duration().Milliseconds(),
	}
	if ev.Model != "" {
		attrs = append(attrs, "model", ev.Model)
	}
	if ev.Usage.TotalTokens > 0 {
		attrs = append(attrs, "total_tokens", ev.Usage.TotalTokens)
	}
	h.Logger.InfoContext(ctx, "pass-through call completed", attrs...)
	return nil
}

func (h *LoggingHooks) Failure(ctx context.Context, ev *FailureEvent) error {
	h.Logger.WarnContext(ctx, "pass-through call failed",
		"call_id", ev.CallID,
		"endpoint_id", ev.EndpointID,
		"route", ev.Route,
		"method", ev.Method,
		"status", ev.StatusCode,
		"error_type", ev.ErrorType,
		"error", ev.Err,
		"duration_ms", ev.Duration().Milliseconds(),
	)
	return nil
}
