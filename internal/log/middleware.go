package log

import (
	"context"
	"log/slog"
	"net/http"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogHTTPEnd logs the completion of an HTTP request
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithHTTPResponse(statusCode, durationMs).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogLedgerWrite logs a savings or activity write and the score it produced
func (sl *StructuredLogger) LogLedgerWrite(ctx context.Context, op, userID, monthKey string, complianceScore int) {
	fields := NewFields().
		WithUserMonth(userID, monthKey).
		WithOperation(op).
		WithComponent(ComponentScoring)
	fields[FieldComplianceScore] = complianceScore

	sl.logger.Logger.InfoContext(ctx, "Ledger entry recorded", fields.ToSlice()...)
}

// LogMonthProcessed logs the outcome of a month-end run
func (sl *StructuredLogger) LogMonthProcessed(ctx context.Context, runID, monthKey string, processed, failures int) {
	level := slog.LevelInfo
	if failures > 0 {
		level = slog.LevelWarn
	}
	fields := NewFields().
		WithOperation(OpProcess).
		WithComponent(ComponentBatch)
	fields[FieldRunID] = runID
	fields[FieldMonth] = monthKey
	fields[FieldProcessed] = processed
	fields[FieldFailures] = failures

	sl.logger.Logger.Log(ctx, level, "Month processed", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithComponent(component)
	if operation != "" {
		allFields = allFields.WithOperation(operation)
	}

	sl.logger.Logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
