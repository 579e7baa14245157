package logx

import (
	"encoding/json"
	"time"
)

// jsonKeys names the top-level keys of a JSON log line.
type jsonKeys struct {
	message   string
	timestamp string
}

// JSONFormatter formats logs as one JSON object per line
type JSONFormatter struct {
	config *Config
	keys   jsonKeys
	// cloudwatch forces RFC3339Nano timestamps and tags errors with their code.
	cloudwatch bool
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(config *Config) *JSONFormatter {
	return &JSONFormatter{config: config, keys: jsonKeys{message: "message", timestamp: "timestamp"}}
}

// NewCloudWatchFormatter creates a JSON formatter using CloudWatch Logs Insights field names
func NewCloudWatchFormatter(config *Config) *JSONFormatter {
	return &JSONFormatter{config: config, keys: jsonKeys{message: "msg", timestamp: "time"}, cloudwatch: true}
}

// Format formats a log entry as JSON
func (f *JSONFormatter) Format(entry *LogEntry) ([]byte, error) {
	data := make(map[string]any, len(entry.Fields)+6)
	for k, v := range entry.Fields {
		data[k] = v
	}

	data["level"] = entry.Level.String()
	if f.config.Service != "" {
		data["service"] = f.config.Service
	}
	data[f.keys.message] = entry.Message

	switch {
	case f.cloudwatch:
		data[f.keys.timestamp] = entry.Timestamp.Format(time.RFC3339Nano)
	case !f.config.EnableTimestamp:
	case f.config.TimeFormat == "unix":
		data[f.keys.timestamp] = entry.Timestamp.Unix()
	case f.config.TimeFormat == "unixmilli":
		data[f.keys.timestamp] = entry.Timestamp.UnixMilli()
	default:
		data[f.keys.timestamp] = entry.Timestamp.Format(time.RFC3339Nano)
	}

	if f.config.EnableCaller && entry.Caller != "" {
		data["caller"] = entry.Caller
	}
	if entry.Error != nil {
		data["error"] = entry.Error.Error()
		if f.cloudwatch {
			if _, ok := data["error_code"]; !ok {
				data["error_code"] = "UNKNOWN"
			}
		}
	}

	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(bytes, '\n'), nil
}
