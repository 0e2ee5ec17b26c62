// Package telemetry builds the service's structured logger and metrics
// publisher.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	Level       slog.Level
	SentryDSN   string
	Environment string
	Release     string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// NewLogger returns a JSON logger writing to Output. When SentryDSN is set,
// records are also sent to Sentry: errors become events, warnings and errors
// become Sentry logs. The second return value reports whether Sentry is
// active. A DSN that fails to initialize degrades to stdout only.
func NewLogger(opts LoggerOptions) (*slog.Logger, bool) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	stdoutHandler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: opts.Level,
	})

	if opts.SentryDSN == "" {
		return slog.New(stdoutHandler), false
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         opts.SentryDSN,
		Environment: opts.Environment,
		Release:     opts.Release,
		EnableLogs:  true,
	}); err != nil {
		logger := slog.New(stdoutHandler)
		logger.Error("failed to initialize Sentry", slog.String("error", err.Error()))
		return logger, false
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(context.Background())

	return slog.New(newMultiHandler(stdoutHandler, sentryHandler)), true
}

// FlushSentry waits up to timeout for buffered Sentry events to be sent.
func FlushSentry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}
