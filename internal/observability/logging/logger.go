// Package logging provides structured logging utilities using the standard library's log/slog package.
// It offers helper functions for creating loggers with consistent configuration and context propagation.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"feedwatch/internal/domain/entity"

	"github.com/google/uuid"
)

// Level parses LOG_LEVEL. Supported: debug, info, warn, error. Default: info.
func Level() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a JSON logger writing to stdout at Level().
func NewLogger() *slog.Logger {
	return NewLoggerTo(os.Stdout)
}

// NewLoggerTo creates a JSON logger writing to w at Level().
func NewLoggerTo(w io.Writer) *slog.Logger {
	level := Level()
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		// debug 時のみ呼び出し元を出力
		AddSource: level == slog.LevelDebug,
	}))
}

// NewTextLogger creates a human-readable logger on stderr, used by feedctl.
func NewTextLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: Level(),
	}))
}

// WithFeed returns logger annotated with the feed's id and url.
func WithFeed(logger *slog.Logger, feed *entity.Feed) *slog.Logger {
	if feed == nil {
		return logger
	}
	return logger.With(
		slog.Int64("feed_id", feed.ID),
		slog.String("feed_url", feed.URL))
}

// NewRunID returns a fresh pipeline run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// WithRunID stores runID in ctx and returns it with a logger carrying it.
func WithRunID(ctx context.Context, logger *slog.Logger, runID string) (context.Context, *slog.Logger) {
	logger = logger.With(slog.String("run_id", runID))
	ctx = context.WithValue(ctx, runIDContextKey, runID)
	return WithLogger(ctx, logger), logger
}

// RunIDFromContext returns the run id stored by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDContextKey).(string)
	return id
}

// FromContext retrieves the logger from the context, or returns the default logger if not found.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

type contextKey string

const (
	loggerContextKey contextKey = "logger"
	runIDContextKey  contextKey = "run_id"
)
