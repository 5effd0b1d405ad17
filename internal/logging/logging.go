// Package logging provides structured, leveled logging for the indexing
// engine. Loggers are constructed in cmd and injected into components;
// there is no package-level default logger.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Fields carries structured key/value context for a log entry.
type Fields map[string]interface{}

// Level represents the severity of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	default:
		return "error"
	}
}

// ParseLevel maps a config string to a Level. Unknown strings default to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Format selects the log output encoding.
type Format string

const (
	// JSONFormat emits one JSON object per line.
	JSONFormat Format = "json"
	// HumanFormat emits a timestamped human-readable line.
	HumanFormat Format = "human"
)

// Config holds logger configuration.
type Config struct {
	Format Format
	Level  Level
	Output io.Writer // defaults to stderr
}

// Logger writes structured log entries.
type Logger struct {
	format    Format
	level     Level
	writer    io.Writer
	component string
}

// NewLogger creates a logger with the given configuration.
func NewLogger(cfg Config) *Logger {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	return &Logger{format: cfg.Format, level: cfg.Level, writer: w}
}

// WithComponent returns a logger that stamps every entry with a component
// name, sharing the parent's writer and level.
func (l *Logger) WithComponent(name string) *Logger {
	clone := *l
	clone.component = name
	return &clone
}

type entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
	Fields    Fields `json:"fields,omitempty"`
}

func (l *Logger) log(level Level, msg string, fields Fields) {
	if level < l.level {
		return
	}

	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Component: l.component,
		Message:   msg,
		Fields:    fields,
	}

	if l.format == JSONFormat {
		data, err := json.Marshal(e)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
			return
		}
		fmt.Fprintln(l.writer, string(data))
		return
	}

	var b strings.Builder
	b.WriteString(e.Timestamp)
	b.WriteString(" [")
	b.WriteString(e.Level)
	b.WriteString("]")
	if e.Component != "" {
		b.WriteString(" (")
		b.WriteString(e.Component)
		b.WriteString(")")
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	if len(fields) > 0 {
		b.WriteString(" |")
		for _, k := range sortedKeys(fields) {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	fmt.Fprintln(l.writer, b.String())
}

func sortedKeys(f Fields) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	// insertion sort; field sets are tiny
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields Fields) { l.log(DebugLevel, msg, fields) }

// Info logs an informational message.
func (l *Logger) Info(msg string, fields Fields) { l.log(InfoLevel, msg, fields) }

// Warn logs a warning.
func (l *Logger) Warn(msg string, fields Fields) { l.log(WarnLevel, msg, fields) }

// Error logs an error.
func (l *Logger) Error(msg string, fields Fields) { l.log(ErrorLevel, msg, fields) }

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	return NewLogger(Config{Format: HumanFormat, Level: ErrorLevel, Output: io.Discard})
}
