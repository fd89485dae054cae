package logging

import (
	"time"
)

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Duration renders d in Go notation, e.g. "1.5ms"
func Duration(key string, d time.Duration) Field {
	return Field{Key: key, Value: d.String()}
}

// Error records err's message, or null for a nil error
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Store fields

func Component(name string) Field { return String("component", name) }

// Database names the open database
func Database(name string) Field { return String("database", name) }

// Instance identifies one open of a database
func Instance(id string) Field { return String("instance", id) }

// LevelNum is the LSM level a message concerns
func LevelNum(level int) Field { return Int("level", level) }

func Latency(d time.Duration) Field { return Duration("latency", d) }
func Count(n int) Field             { return Int("count", n) }
func Bytes(n int64) Field           { return Int64("bytes", n) }
func Path(p string) Field           { return String("path", p) }
