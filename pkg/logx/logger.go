package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Fields is structured data attached to one log line.
type Fields map[string]any

// LogEntry is what a Formatter receives; Fields are already redacted.
type LogEntry struct {
	Level     Level
	Message   string
	Fields    Fields
	Error     error
	Timestamp time.Time
	Caller    string
}

type Formatter interface {
	Format(entry *LogEntry) ([]byte, error)
}

// Logger is safe for concurrent use.
type Logger struct {
	mu        sync.Mutex
	config    *Config
	formatter Formatter
	redactor  redactor
	writer    io.Writer
	exitFunc  func(int)
}

func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	writer := config.Output
	if writer == nil {
		writer = os.Stdout
	}
	return &Logger{
		config:    config,
		formatter: formatterFor(config),
		redactor:  newRedactor(config.SensitiveFields),
		writer:    writer,
		exitFunc:  os.Exit,
	}
}

func formatterFor(config *Config) Formatter {
	switch config.Format {
	case FormatJSON:
		return NewJSONFormatter(config)
	case FormatCloudWatch:
		return NewCloudWatchFormatter(config)
	default:
		return NewConsoleFormatter(config)
	}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.config.Level = level
	l.mu.Unlock()
}

func (l *Logger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config.Level
}

func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.writer = w
	l.mu.Unlock()
}

func (l *Logger) log(level Level, msg string) {
	l.write(level, msg, nil, nil)
}

// write is the single sink. Callers sit exactly two frames above it, which
// is what the caller lookup relies on.
func (l *Logger) write(level Level, msg string, fields Fields, err error) {
	if !l.Level().Enabled(level) {
		return
	}

	entry := &LogEntry{
		Level:     level,
		Message:   msg,
		Fields:    l.redactor.apply(fields),
		Error:     err,
		Timestamp: time.Now(),
	}
	if l.config.EnableCaller {
		entry.Caller = caller(4)
	}

	line, ferr := l.formatter.Format(entry)
	if ferr != nil {
		fmt.Fprintf(os.Stderr, "logx: format: %v\n", ferr)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, werr := l.writer.Write(line); werr != nil {
		fmt.Fprintf(os.Stderr, "logx: write: %v\n", werr)
	}
}

func (l *Logger) WithContext(ctx context.Context) *Entry { return newEntry(l).WithContext(ctx) }
func (l *Logger) WithField(key string, value any) *Entry { return newEntry(l).WithField(key, value) }
func (l *Logger) WithFields(fields Fields) *Entry        { return newEntry(l).WithFields(fields) }
func (l *Logger) WithError(err error) *Entry             { return newEntry(l).WithError(err) }

func (l *Logger) exit(code int) {
	l.exitFunc(code)
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func formatTimestamp(t time.Time, layout string) string {
	switch layout {
	case "unix":
		return fmt.Sprint(t.Unix())
	case "unixmilli":
		return fmt.Sprint(t.UnixMilli())
	default:
		return t.Format(layout)
	}
}
