package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
const (
	FieldJobName    = "job_name"
	FieldMessageID  = "message_id"
	FieldScheduleID = "schedule_id"
	FieldRequestID  = "request_id"
	FieldComponent  = "component"

	FieldMethod = "method"
	FieldPath   = "path"
	FieldRemote = "remote"
	FieldStatus = "status"

	FieldKey     = "key"
	FieldPattern = "pattern"
	FieldCount   = "count"
	FieldSize    = "size"

	FieldDurationMS = "duration_ms"
	FieldError      = "error"
)

type contextKey string

const (
	requestIDKey contextKey = "logger_request_id"
	jobNameKey   contextKey = "logger_job_name"
)

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stored by WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithJobName adds the job being dispatched to the context for logging
func WithJobName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, jobNameKey, name)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}
	if jobName, ok := ctx.Value(jobNameKey).(string); ok && jobName != "" {
		fields = append(fields, FieldJobName, jobName)
	}

	return fields
}

// LoggerFromContext decorates base with the fields carried by ctx.
// A nil base falls back to the global Logger.
func LoggerFromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
//	type Client struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func New() *Client {
//	    return &Client{logger: logger.ComponentLogger("cache")}
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
