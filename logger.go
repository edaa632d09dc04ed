package segsieve

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with sieve-specific context.
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

// WithWindow adds window bounds to the logger.
func (l *Logger) WithWindow(start, end uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("window_start", start, "window_end", end),
	}
}

// LogWindow logs the completion of one window.
func (l *Logger) LogWindow(ctx context.Context, start, end uint64, known, discovered int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "window failed",
			"window_start", start,
			"window_end", end,
			"known_primes", known,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "window processed",
			"window_start", start,
			"window_end", end,
			"known_primes", known,
			"new_primes", discovered,
		)
	}
}

// LogRun logs the completion of a full sieve run.
func (l *Logger) LogRun(ctx context.Context, upperLimit uint64, windows, primes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "sieve failed",
			"upper_limit", upperLimit,
			"windows", windows,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "sieve completed",
			"upper_limit", upperLimit,
			"windows", windows,
			"primes", primes,
		)
	}
}
