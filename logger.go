package spill

import (
	"context"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
)

// Logger wraps slog.Logger with spill-specific helpers.
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
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithRun tags the logger with a run id.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{Logger: l.Logger.With("run", runID)}
}

// WithEnvelope tags the logger with an envelope id.
func (l *Logger) WithEnvelope(id int64) *Logger {
	return &Logger{Logger: l.Logger.With("envelope", id)}
}

// LogTransition logs a lock status change at debug level.
func (l *Logger) LogTransition(ctx context.Context, op string, from, to Status, readers int) {
	l.DebugContext(ctx, "status change",
		"op", op,
		"from", from.String(),
		"to", to.String(),
		"readers", readers,
	)
}

// LogEvict logs a hand-off to the write-back buffer.
func (l *Logger) LogEvict(ctx context.Context, path string, bytes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "eviction failed",
			"path", path,
			"size", humanize.IBytes(uint64(bytes)),
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "evicted",
		"path", path,
		"size", humanize.IBytes(uint64(bytes)),
	)
}

// LogRestore logs a restore from source.
func (l *Logger) LogRestore(ctx context.Context, source, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"source", source,
			"path", path,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "restored",
		"source", source,
		"path", path,
	)
}

// LogExport logs an export decision and its outcome.
func (l *Logger) LogExport(ctx context.Context, path string, kind ExportKind, err error) {
	if err != nil {
		l.ErrorContext(ctx, "export failed",
			"path", path,
			"kind", kind.String(),
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "export completed",
		"path", path,
		"kind", kind.String(),
	)
}

// LogCleanup logs the outcome of a cache directory teardown.
func (l *Logger) LogCleanup(ctx context.Context, dir string, deleted, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "cache directory cleanup completed with failures",
			"dir", dir,
			"deleted", deleted,
			"failed", failed,
		)
		return
	}
	l.InfoContext(ctx, "cache directory cleaned up",
		"dir", dir,
		"deleted", deleted,
	)
}
