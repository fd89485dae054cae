package logging

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// Level is a log severity
type Level int32

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	// OffLevel silences a logger entirely
	OffLevel
)

// ErrUnknownLevel is returned by ParseLevel for an unrecognised name
var ErrUnknownLevel = errors.New("unknown log level")

var levelNames = [...]string{"debug", "info", "warn", "error", "off"}

// String returns the lowercase name used in configuration and output
func (l Level) String() string {
	if l < DebugLevel || l > OffLevel {
		return "unknown"
	}
	return levelNames[l]
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// Logger is the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// With creates a child logger with the given fields pre-set
	With(fields ...Field) Logger
	SetLevel(level Level)
	GetLevel() Level
}

// sink serializes writes from a logger and all of its children
type sink struct {
	mu sync.Mutex
	w  io.Writer
}

// JSONLogger writes one JSON object per line
type JSONLogger struct {
	out    *sink
	level  atomic.Int32
	fields []Field
}

// LogEntry is the shape of one output line
type LogEntry struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// NopLogger discards everything. It is the default for library use.
type NopLogger struct{}

func (NopLogger) Debug(msg string, fields ...Field) {}
func (NopLogger) Info(msg string, fields ...Field)  {}
func (NopLogger) Warn(msg string, fields ...Field)  {}
func (NopLogger) Error(msg string, fields ...Field) {}
func (n NopLogger) With(fields ...Field) Logger     { return n }
func (NopLogger) SetLevel(level Level)              {}
func (NopLogger) GetLevel() Level                   { return OffLevel }

// NewNopLogger creates a logger that discards all output
func NewNopLogger() Logger {
	return NopLogger{}
}
