package logx

import (
	"io"
	"os"
	"strings"
	"time"
)

type Format string

const (
	FormatConsole    Format = "console"
	FormatJSON       Format = "json"
	FormatCloudWatch Format = "cloudwatch"
)

type Config struct {
	Level           Level
	Format          Format
	EnableColors    bool
	EnableCaller    bool
	EnableTimestamp bool
	// TimeFormat is a Go layout, or "unix" / "unixmilli".
	TimeFormat string
	// Service is added as "service" to every JSON line when set.
	Service string
	// SensitiveFields are masked on top of the built-in list.
	SensitiveFields []string
	Output          io.Writer
}

func DefaultConfig() *Config {
	return &Config{
		Level:           LevelInfo,
		Format:          FormatConsole,
		EnableColors:    true,
		EnableTimestamp: true,
		TimeFormat:      time.RFC3339,
		Service:         "gatekeeper",
		Output:          os.Stdout,
	}
}

var timeLayouts = map[string]string{
	"RFC3339":     time.RFC3339,
	"RFC3339NANO": time.RFC3339Nano,
	"KITCHEN":     time.Kitchen,
	"UNIX":        "unix",
	"UNIXMILLI":   "unixmilli",
}

// LoadFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_COLOR, LOG_CALLER,
// LOG_TIME_FORMAT, LOG_SERVICE and LOG_REDACT_FIELDS (comma separated).
// Unknown values keep the default.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		if lvl, err := ParseLevel(v); err == nil {
			cfg.Level = lvl
		}
	}
	switch f := Format(strings.ToLower(os.Getenv("LOG_FORMAT"))); f {
	case FormatConsole, FormatJSON, FormatCloudWatch:
		cfg.Format = f
	}
	cfg.EnableColors = envBool("LOG_COLOR", cfg.EnableColors)
	cfg.EnableCaller = envBool("LOG_CALLER", cfg.EnableCaller)

	if v := os.Getenv("LOG_TIME_FORMAT"); v != "" {
		if layout, ok := timeLayouts[strings.ToUpper(v)]; ok {
			cfg.TimeFormat = layout
		} else {
			cfg.TimeFormat = v
		}
	}
	if v, ok := os.LookupEnv("LOG_SERVICE"); ok {
		cfg.Service = v
	}
	for _, f := range strings.Split(os.Getenv("LOG_REDACT_FIELDS"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			cfg.SensitiveFields = append(cfg.SensitiveFields, strings.ToLower(f))
		}
	}
	return cfg
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}
