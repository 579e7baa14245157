package logx

import (
	"context"
	"errors"
	"fmt"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// Entry allows for building up log entries with multiple fields
type Entry struct {
	logger *Logger
	fields Fields
	err    error
}

func newEntry(logger *Logger) *Entry {
	return &Entry{
		logger: logger,
		fields: make(Fields),
	}
}

// WithField adds a field to the entry (chainable)
func (e *Entry) WithField(key string, value any) *Entry {
	e.fields[key] = value
	return e
}

// WithFields adds multiple fields to the entry (chainable)
func (e *Entry) WithFields(fields Fields) *Entry {
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithError adds the error and, for errx errors, its code and type (chainable)
func (e *Entry) WithError(err error) *Entry {
	e.err = err
	if err == nil {
		return e
	}
	var xerr *errx.Error
	if errors.As(err, &xerr) {
		e.fields["error_code"] = xerr.Code
		e.fields["error_type"] = string(xerr.Type)
		if xerr.Type.IsServerFault() && len(xerr.Details) > 0 {
			e.fields["error_details"] = xerr.Details
		}
	}
	return e
}

// WithContext copies request_id, tenant_id and user_id from ctx (chainable)
func (e *Entry) WithContext(ctx context.Context) *Entry {
	if ctx == nil {
		return e
	}
	if v, ok := ctx.Value(kernel.RequestIDKey).(string); ok && v != "" {
		e.fields["request_id"] = v
	}
	if v, ok := ctx.Value(kernel.TenantContextKey).(kernel.TenantID); ok && !v.IsEmpty() {
		e.fields["tenant_id"] = v.String()
	}
	if v, ok := ctx.Value(kernel.UserContextKey).(kernel.UserID); ok && !v.IsEmpty() {
		e.fields["user_id"] = v.String()
	}
	return e
}

func (e *Entry) emit(level Level, msg string) {
	e.logger.write(level, msg, e.fields, e.err)
}

func (e *Entry) Trace(msg string) { e.emit(LevelTrace, msg) }
func (e *Entry) Debug(msg string) { e.emit(LevelDebug, msg) }
func (e *Entry) Info(msg string)  { e.emit(LevelInfo, msg) }
func (e *Entry) Warn(msg string)  { e.emit(LevelWarn, msg) }
func (e *Entry) Error(msg string) { e.emit(LevelError, msg) }

// Fatal logs at fatal level and exits
func (e *Entry) Fatal(msg string) {
	e.emit(LevelFatal, msg)
	e.logger.exit(1)
}

func (e *Entry) Tracef(format string, args ...any) { e.emit(LevelTrace, fmt.Sprintf(format, args...)) }
func (e *Entry) Debugf(format string, args ...any) { e.emit(LevelDebug, fmt.Sprintf(format, args...)) }
func (e *Entry) Infof(format string, args ...any)  { e.emit(LevelInfo, fmt.Sprintf(format, args...)) }
func (e *Entry) Warnf(format string, args ...any)  { e.emit(LevelWarn, fmt.Sprintf(format, args...)) }
func (e *Entry) Errorf(format string, args ...any) { e.emit(LevelError, fmt.Sprintf(format, args...)) }

// Fatalf logs formatted fatal message and exits
func (e *Entry) Fatalf(format string, args ...any) {
	e.emit(LevelFatal, fmt.Sprintf(format, args...))
	e.logger.exit(1)
}
