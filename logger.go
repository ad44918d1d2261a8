package pairgo

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with pairgo-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithIndex adds the index name to the logger.
func (l *Logger) WithIndex(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("index", name),
	}
}

// WithStrategy adds the search strategy name to the logger.
func (l *Logger) WithStrategy(strategy string) *Logger {
	return &Logger{
		Logger: l.Logger.With("strategy", strategy),
	}
}

// LogSearch logs one pair-search run.
func (l *Logger) LogSearch(ctx context.Context, strategy, index string, cells int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "pair search failed",
			"strategy", strategy,
			"index", index,
			"cells", cells,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "pair search completed",
			"strategy", strategy,
			"index", index,
			"cells", cells,
			"duration", duration,
		)
	}
}

// LogSignatures logs a signature generation run.
func (l *Logger) LogSignatures(ctx context.Context, name string, cells, bits int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "signature generation failed",
			"signatures", name,
			"cells", cells,
			"bits", bits,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "signature generation completed",
			"signatures", name,
			"cells", cells,
			"bits", bits,
			"duration", duration,
		)
	}
}

// LogExport logs an index export.
func (l *Logger) LogExport(ctx context.Context, index string, rows int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "export failed",
			"index", index,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "export completed",
			"index", index,
			"rows", rows,
		)
	}
}

// LogCatalog logs a run-catalog publication or fetch.
func (l *Logger) LogCatalog(ctx context.Context, op, runID string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "catalog operation failed",
			"op", op,
			"run_id", runID,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "catalog operation completed",
			"op", op,
			"run_id", runID,
		)
	}
}
