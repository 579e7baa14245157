package logx

import (
	"fmt"
	"sort"
	"strings"
)

const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiCyan  = "\033[36m"
	ansiGray  = "\033[90m"
)

var levelColors = map[Level]string{
	LevelTrace: ansiGray,
	LevelDebug: "\033[1;36m",
	LevelInfo:  "\033[1;32m",
	LevelWarn:  "\033[1;33m",
	LevelError: "\033[1;31m",
	LevelFatal: "\033[1;31m",
}

// ConsoleFormatter writes one human readable line per entry:
//
//	2026-01-02T15:04:05Z [INFO ] relay finished stage=callback tenant_id=proj-1
type ConsoleFormatter struct {
	config *Config
}

func NewConsoleFormatter(config *Config) *ConsoleFormatter {
	return &ConsoleFormatter{config: config}
}

func (f *ConsoleFormatter) Format(entry *LogEntry) ([]byte, error) {
	var b strings.Builder

	if f.config.EnableTimestamp {
		b.WriteString(f.paint(ansiGray, formatTimestamp(entry.Timestamp, f.config.TimeFormat)))
		b.WriteByte(' ')
	}
	b.WriteString(f.paint(levelColors[entry.Level], fmt.Sprintf("[%-5s]", entry.Level)))
	b.WriteByte(' ')
	if f.config.EnableCaller && entry.Caller != "" {
		b.WriteString(f.paint(ansiGray, "["+entry.Caller+"]"))
		b.WriteByte(' ')
	}
	b.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%v", k, entry.Fields[k])
		}
		b.WriteByte(' ')
		b.WriteString(f.paint(ansiCyan, strings.Join(pairs, " ")))
	}

	if entry.Error != nil {
		b.WriteString("\n  ")
		b.WriteString(f.paint(ansiRed, "error: "+entry.Error.Error()))
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func (f *ConsoleFormatter) paint(color, s string) string {
	if !f.config.EnableColors || color == "" {
		return s
	}
	return color + s + ansiReset
}
