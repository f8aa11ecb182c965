// Package ctxlog carries the per-run slog.Logger through context.Context
// so nested components log with the run's attributes without threading a
// logger parameter through every call.
package ctxlog

import (
	"context"
	"log/slog"
)

// key is unexported so other packages cannot collide with the context key.
type key struct{}

var loggerKey = key{}

// WithLogger embeds the logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the embedded logger. Contexts without one, such as
// those built by tests or library callers, get the process default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
