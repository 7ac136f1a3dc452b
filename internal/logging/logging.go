// Package logging provides structured logging using Go's slog package.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// TransactionIDKey is the context key for graph/index transaction ids.
	TransactionIDKey ContextKey = "tx_id"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
)

func init() {
	// Initialize with a default logger (JSON format, Info level)
	InitLogger(LevelInfo, FormatJSON)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format.
	FormatText
)

// ParseLevel maps a configuration string to a Level. Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ParseFormat maps a configuration string to a Format. Unknown values map to FormatJSON.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "text") {
		return FormatText
	}
	return FormatJSON
}

// InitLogger initializes the global logger with the specified level and format.
// Logs go to stderr; stdout is reserved for command output.
func InitLogger(level Level, format Format) {
	InitLoggerTo(os.Stderr, level, format)
}

// InitLoggerTo initializes the global logger writing to w.
func InitLoggerTo(w io.Writer, level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the global logger instance.
func GetLogger() *slog.Logger {
	return defaultLogger
}

// WithTransactionID adds a transaction id to the context.
func WithTransactionID(ctx context.Context, txID string) context.Context {
	return context.WithValue(ctx, TransactionIDKey, txID)
}

// GetTransactionID retrieves the transaction id from the context.
func GetTransactionID(ctx context.Context) string {
	if txID, ok := ctx.Value(TransactionIDKey).(string); ok {
		return txID
	}
	return ""
}

// LoggerFromContext returns a logger with context values attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := defaultLogger
	if txID := GetTransactionID(ctx); txID != "" {
		logger = logger.With("tx_id", txID)
	}
	return logger
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// DebugContext logs a debug message with context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Debug(msg, args...)
}

// InfoContext logs an info message with context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Info(msg, args...)
}

// WarnContext logs a warning message with context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Warn(msg, args...)
}

// ErrorContext logs an error message with context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Error(msg, args...)
}

// TransactionEvent logs a phase of a store transaction (begin, commit,
// rollback, finish) at debug level.
func TransactionEvent(ctx context.Context, store, phase string, elapsed time.Duration, args ...any) {
	allArgs := []any{
		"store", store,
		"phase", phase,
		"elapsed_ms", elapsed.Milliseconds(),
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Debug("transaction", allArgs...)
}

// DescriptorParsed logs a successfully parsed descriptor.
func DescriptorParsed(ctx context.Context, uri string, documentID int64, units int, args ...any) {
	allArgs := []any{
		"uri", uri,
		"document_id", documentID,
		"units", units,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Debug("descriptor_parsed", allArgs...)
}

// IndexUpdated logs a committed index update.
func IndexUpdated(kind string, ids []int64, entries int, args ...any) {
	allArgs := []any{
		"kind", kind,
		"document_ids", ids,
		"entries", entries,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("index_updated", allArgs...)
}

// EventError logs a failed event delivery. The event is dropped.
func EventError(kind string, eventID string, ids []int64, err error, args ...any) {
	allArgs := []any{
		"kind", kind,
		"event_id", eventID,
		"document_ids", ids,
		"error", err.Error(),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Error("event_error", allArgs...)
}

// IngestResult logs the outcome for one descriptor.
func IngestResult(uri, result string, args ...any) {
	allArgs := []any{
		"uri", uri,
		"result", result,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("descriptor_ingest", allArgs...)
}
