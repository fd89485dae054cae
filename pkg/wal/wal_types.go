package wal

import (
	"errors"

	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
)

// FileName is the log file inside a database directory
const FileName = "wal.log"

// ErrClosed is returned by operations on a closed log
var ErrClosed = errors.New("wal: log is closed")

// OpType represents the type of operation in the WAL
type OpType uint8

const (
	OpPut OpType = iota + 1
	OpDelete
)

func (op OpType) String() string {
	switch op {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Entry represents a single logged write
type Entry struct {
	LSN   uint64 // Log Sequence Number
	Op    OpType
	Key   int32
	Value int32
}

// Options configures a log
type Options struct {
	Compress bool // Snappy-compress frame payloads
	Logger   logging.Logger
	Metrics  *metrics.Registry
}

// Stats holds write statistics
type Stats struct {
	Frames       uint64
	Entries      uint64
	BytesRaw     uint64 // Payload bytes before compression
	BytesWritten uint64 // Frame bytes on disk
}

// CompressionRatio returns on-disk bytes per raw payload byte
func (s Stats) CompressionRatio() float64 {
	if s.BytesRaw == 0 {
		return 0
	}
	return float64(s.BytesWritten) / float64(s.BytesRaw)
}
