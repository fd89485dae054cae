// Package logging is the store's structured JSON logger.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dd0wney/cluso-kv/pkg/pools"
)

// ParseLevel converts a case-insensitive level name
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "off", "none":
		return OffLevel, nil
	}
	return InfoLevel, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// NewJSONLogger creates a JSON logger writing to w
func NewJSONLogger(w io.Writer, level Level) *JSONLogger {
	l := &JSONLogger{out: &sink{w: w}}
	l.level.Store(int32(level))
	return l
}

// New builds a logger from a configured level name. "off" yields a
// NopLogger; an unknown name logs at info.
func New(w io.Writer, level string) Logger {
	lvl, _ := ParseLevel(level)
	if lvl == OffLevel {
		return NewNopLogger()
	}
	return NewJSONLogger(w, lvl)
}

func (l *JSONLogger) log(level Level, msg string, fields []Field) {
	if level < l.GetLevel() {
		return
	}

	entry := LogEntry{
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Level:   level.String(),
		Message: msg,
	}
	if n := len(l.fields) + len(fields); n > 0 {
		entry.Fields = make(map[string]any, n)
		for _, f := range l.fields {
			entry.Fields[f.Key] = f.Value
		}
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		line = []byte(fmt.Sprintf(`{"level":"error","msg":"unencodable log entry","cause":%q}`, err.Error()))
	}

	// One Write per line keeps concurrent entries from interleaving
	buf := pools.GetBytes(len(line) + 1)
	buf = append(append(buf, line...), '\n')

	l.out.mu.Lock()
	_, _ = l.out.w.Write(buf)
	l.out.mu.Unlock()

	pools.PutBytes(buf)
}

func (l *JSONLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *JSONLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *JSONLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *JSONLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

// With returns a child sharing the writer. The child starts at the
// parent's current level and is adjusted independently afterwards.
func (l *JSONLogger) With(fields ...Field) Logger {
	child := &JSONLogger{
		out:    l.out,
		fields: make([]Field, 0, len(l.fields)+len(fields)),
	}
	child.fields = append(append(child.fields, l.fields...), fields...)
	child.level.Store(l.level.Load())
	return child
}

// SetLevel sets the minimum level written
func (l *JSONLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// GetLevel returns the minimum level written
func (l *JSONLogger) GetLevel() Level {
	return Level(l.level.Load())
}

// Timer logs an operation together with its latency when stopped
type Timer struct {
	logger Logger
	msg    string
	start  time.Time
	fields []Field
}

// StartTimer begins timing an operation
func StartTimer(logger Logger, msg string, fields ...Field) *Timer {
	return &Timer{logger: logger, msg: msg, start: time.Now(), fields: fields}
}

// Stop logs the operation at debug on success and at error on failure
func (t *Timer) Stop(err error) time.Duration {
	elapsed := time.Since(t.start)
	fields := append(t.fields, Latency(elapsed))
	if err != nil {
		t.logger.Error(t.msg+" failed", append(fields, Error(err))...)
		return elapsed
	}
	t.logger.Debug(t.msg, fields...)
	return elapsed
}
