package logx

import (
	"context"
	"fmt"
)

var std = NewLogger(LoadFromEnv())

// SetDefaultLogger replaces the package-level logger. Not safe to call while
// other goroutines are logging.
func SetDefaultLogger(logger *Logger) { std = logger }

func Default() *Logger { return std }

func Debug(msg string) { std.log(LevelDebug, msg) }
func Info(msg string)  { std.log(LevelInfo, msg) }
func Warn(msg string)  { std.log(LevelWarn, msg) }
func Error(msg string) { std.log(LevelError, msg) }

func Debugf(format string, args ...any) { std.log(LevelDebug, fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { std.log(LevelInfo, fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { std.log(LevelWarn, fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { std.log(LevelError, fmt.Sprintf(format, args...)) }

// Fatal and Fatalf exit the process after logging. Only cmd/ calls them.
func Fatal(msg string) {
	std.log(LevelFatal, msg)
	std.exit(1)
}

func Fatalf(format string, args ...any) {
	std.log(LevelFatal, fmt.Sprintf(format, args...))
	std.exit(1)
}

func WithContext(ctx context.Context) *Entry { return std.WithContext(ctx) }
func WithField(key string, value any) *Entry { return std.WithField(key, value) }
func WithFields(fields Fields) *Entry        { return std.WithFields(fields) }
func WithError(err error) *Entry             { return std.WithError(err) }
