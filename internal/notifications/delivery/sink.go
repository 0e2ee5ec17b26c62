package delivery

import (
	"context"
	"log/slog"

	"zozbit-notify/internal/types"
)

// ErrorSink receives background failures that no caller will ever see.
type ErrorSink interface {
	Report(ctx context.Context, err error, stage string)
}

// LogSink reports failures as error-level log records on the request-scoped
// logger when the context carries one. When the logger fans out to Sentry,
// each record becomes a Sentry event.
type LogSink struct {
	Logger *slog.Logger
}

// Report implements ErrorSink.
func (s LogSink) Report(ctx context.Context, err error, stage string) {
	logger := types.LoggerFromContext(ctx, s.Logger)
	attrs := []slog.Attr{slog.String("error", err.Error())}
	if stage != "" {
		attrs = append(attrs, slog.String("stage", stage))
	}
	logger.LogAttrs(ctx, slog.LevelError, "background delivery failed", attrs...)
}
