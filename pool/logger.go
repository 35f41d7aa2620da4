package pool

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with pool-specific context.
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
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(1000), // Unreachable level
		})),
	}
}

// WithPath adds the pool path to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// WithTx adds a transaction id field to the logger.
func (l *Logger) WithTx(id uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("tx", id),
	}
}

// LogCommit logs a commit.
func (l *Logger) LogCommit(ctx context.Context, id uint64, snapshots int, bytes int64, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"tx", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "commit completed",
			"tx", id,
			"snapshots", snapshots,
			"undo_bytes", bytes,
			"duration", d,
		)
	}
}

// LogAbort logs an abort.
func (l *Logger) LogAbort(ctx context.Context, id uint64, restored int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "abort failed",
			"tx", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "abort completed",
			"tx", id,
			"restored", restored,
		)
	}
}

// LogRecovery logs an undo log recovery on open.
func (l *Logger) LogRecovery(ctx context.Context, rolledBack, restored int, torn error, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "undo recovery failed",
			"error", err,
		)
	case rolledBack > 0:
		l.WarnContext(ctx, "rolled back interrupted transaction",
			"transactions", rolledBack,
			"restored", restored,
			"torn", torn != nil,
		)
	default:
		l.InfoContext(ctx, "undo recovery completed",
			"torn", torn != nil,
		)
	}
}
