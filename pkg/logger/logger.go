// Package logger configures the process-wide slog logger and carries request
// IDs through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey struct{}

// Setup installs the default logger writing to stdout.
func Setup(level string, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger with a JSON or text handler.
func New(w io.Writer, level string, format string) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// FromContext returns the default logger, tagged with the request ID when
// ctx carries one.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if requestID, ok := ctx.Value(contextKey{}).(string); ok {
		logger = logger.With("request_id", requestID)
	}
	return logger
}

func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
