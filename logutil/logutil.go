// Package logutil configures the process-wide slog.Logger and offers a
// couple of small helpers components reach for when logging a failed
// invariant needs to survive the request that triggered it.
package logutil

import (
	"context"
	"log/slog"
	"os"
)

// Level mirrors envconfig's string levels onto slog.Level.
func Level(s string) slog.Level {
	switch s {
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

// Init installs a process-wide text handler at the given level. Called
// once from the serve command before any component is initialised.
func Init(level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: Level(level),
	})))
}

// Invariant logs an internal invariant violation with full context and
// returns the error unchanged, so call sites can `return
// logutil.Invariant(ctx, err, "k", v)` without losing the error value.
func Invariant(ctx context.Context, err error, args ...any) error {
	logger := slog.Default()
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		logger = l
	}
	logger.Error("internal invariant violated", append([]any{"error", err}, args...)...)
	return err
}

type loggerKey struct{}

// WithLogger attaches a logger to ctx for components that want
// request-scoped fields (tenant id, sequence id) on every log line.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached by WithLogger, or the default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
