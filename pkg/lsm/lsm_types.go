package lsm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
	"github.com/dd0wney/cluso-kv/pkg/wal"
)

// DB is a leveled LSM key-value store over int32 keys and values
type DB struct {
	mu sync.RWMutex

	name string
	id   string
	dir  string
	opts Options

	// Write path
	memTable *MemTable
	wal      wal.WriteAheadLog // nil when WALMode is WALOff

	// Read path
	compactor *Compactor
	cache     *PageCache

	logger  logging.Logger
	metrics *metrics.Registry

	// Logged writes take a ticket when they enter the log and apply to the
	// memtable in ticket order once durable. turn signals on mu.
	turn          *sync.Cond
	nextTicket    uint64
	appliedTicket uint64
	flushPending  bool // Full memtable waiting for the last write in flight
	holds         int  // Sync or Close waiting for writes in flight

	// State
	closed bool

	// Statistics
	stats DBStats
}

// DBStats tracks database statistics using lock-free atomic counters so
// that readers holding the shared lock can update them.
type DBStats struct {
	PutCount    atomic.Int64
	DeleteCount atomic.Int64
	GetCount    atomic.Int64
	ScanCount   atomic.Int64
	PagesRead   atomic.Int64
	BloomSkips  atomic.Int64
}

// Options configures a database
type Options struct {
	DataDir       string // Parent directory of every database
	MemtableBytes int    // Flush threshold (default 4MB)
	PageSize      int    // Bytes per page, a multiple of RecordSize
	BufferSlots   int    // Page cache capacity in pages
	BitsPerEntry  int    // Bloom filter bits per stored key
	HashFunctions int    // Bloom filter hash count, 1..MaxHashFunctions

	// Memtable logging. With WALOff unflushed writes are lost on a crash.
	WALMode          WALMode
	WALBatchSize     int           // Group commit batch size for WALBatched
	WALFlushInterval time.Duration // Group commit delay for WALBatched
	WALCompression   bool          // Snappy-compress log frames

	Logger  logging.Logger    // Defaults to a NopLogger
	Metrics *metrics.Registry // Optional
}

// WALMode selects how writes are logged before they reach the memtable
type WALMode string

const (
	WALOff     WALMode = "off"     // No log
	WALSync    WALMode = "sync"    // One fsync per write
	WALBatched WALMode = "batched" // Group commit across concurrent writers
)

// Group commit defaults
const (
	DefaultWALBatchSize     = 256
	DefaultWALFlushInterval = 2 * time.Millisecond
)

// DefaultOptions returns default database configuration
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:       dataDir,
		MemtableBytes: 4 * 1024 * 1024, // 4MB
		PageSize:      DefaultPageSize,
		BufferSlots:   DefaultBufferSlots,
		BitsPerEntry:  DefaultBitsPerEntry,
		HashFunctions: DefaultHashCount,

		WALMode:          WALOff,
		WALBatchSize:     DefaultWALBatchSize,
		WALFlushInterval: DefaultWALFlushInterval,
	}
}

// withDefaults fills zero fields with their defaults
func (o Options) withDefaults() Options {
	def := DefaultOptions(o.DataDir)
	if o.DataDir == "" {
		o.DataDir = "SSTs"
	}
	if o.MemtableBytes == 0 {
		o.MemtableBytes = def.MemtableBytes
	}
	if o.PageSize == 0 {
		o.PageSize = def.PageSize
	}
	if o.BufferSlots == 0 {
		o.BufferSlots = def.BufferSlots
	}
	if o.BitsPerEntry == 0 {
		o.BitsPerEntry = def.BitsPerEntry
	}
	if o.HashFunctions == 0 {
		o.HashFunctions = def.HashFunctions
	}
	if o.WALMode == "" {
		o.WALMode = def.WALMode
	}
	if o.WALBatchSize == 0 {
		o.WALBatchSize = def.WALBatchSize
	}
	if o.WALFlushInterval == 0 {
		o.WALFlushInterval = def.WALFlushInterval
	}
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}
	return o
}

// Validate checks options after defaults are applied
func (o Options) Validate() error {
	switch {
	case o.MemtableBytes < RecordSize:
		return fmt.Errorf("%w: memtable must hold at least one record, got %d bytes", ErrInvalidOptions, o.MemtableBytes)
	case o.PageSize < RecordSize || o.PageSize%RecordSize != 0:
		return fmt.Errorf("%w: page size %d is not a positive multiple of %d", ErrInvalidOptions, o.PageSize, RecordSize)
	case o.BufferSlots < 1:
		return fmt.Errorf("%w: buffer slots must be positive, got %d", ErrInvalidOptions, o.BufferSlots)
	case o.BitsPerEntry < 1:
		return fmt.Errorf("%w: bits per entry must be positive, got %d", ErrInvalidOptions, o.BitsPerEntry)
	case o.HashFunctions < 1 || o.HashFunctions > MaxHashFunctions:
		return fmt.Errorf("%w: hash functions must be in [1, %d], got %d", ErrInvalidOptions, MaxHashFunctions, o.HashFunctions)
	case o.WALMode != WALOff && o.WALMode != WALSync && o.WALMode != WALBatched:
		return fmt.Errorf("%w: unknown WAL mode %q", ErrInvalidOptions, o.WALMode)
	case o.WALBatchSize < 1:
		return fmt.Errorf("%w: WAL batch size must be positive, got %d", ErrInvalidOptions, o.WALBatchSize)
	case o.WALFlushInterval <= 0:
		return fmt.Errorf("%w: WAL flush interval must be positive, got %v", ErrInvalidOptions, o.WALFlushInterval)
	}
	return nil
}

func (o Options) tableConfig() tableConfig {
	return tableConfig{
		pageSize:     o.PageSize,
		bitsPerEntry: o.BitsPerEntry,
		family:       HashFamily(o.HashFunctions),
	}
}

// StatsSnapshot is a point-in-time snapshot of database statistics
type StatsSnapshot struct {
	PutCount     int64
	DeleteCount  int64
	GetCount     int64
	ScanCount    int64
	PagesRead    int64
	BloomSkips   int64
	MemtableSize int
	MemtableKeys int

	WAL *wal.Stats // nil when the log is off

	Compaction CompactionStatsSnapshot

	CacheHits      int64
	CacheMisses    int64
	CacheEvictions int64
	CacheHitRate   float64
}
