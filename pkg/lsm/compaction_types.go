package lsm

import (
	"sync/atomic"

	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
)

// Compactor owns the on-disk levels. Level n holds at most one file; a
// flush into an occupied level 1 cascades merges downward until a vacant
// level absorbs the result:
//   - Level 1 receives memtable flushes
//   - Level n+1 receives the merge of level n with its incoming file
//   - Only the deepest level may drop tombstones
//
// Compactor is not safe for concurrent use. DB holds its write lock for
// every mutation and its read lock for lookups.
type Compactor struct {
	dir      string
	cfg      tableConfig
	levels   map[int]*SSTable
	maxLevel int

	cache   *PageCache
	logger  logging.Logger
	metrics *metrics.Registry

	// open seals a level file being loaded or installed
	open func(path string, level int, cfg tableConfig) (*SSTable, error)

	stats CompactionStats
}

// CompactionStats tracks compaction counters
type CompactionStats struct {
	Flushes           atomic.Int64
	Merges            atomic.Int64
	BytesRead         atomic.Int64
	BytesWritten      atomic.Int64
	TombstonesDropped atomic.Int64
	DuplicatesDropped atomic.Int64 // Older versions shadowed during merge
}

// CompactionStatsSnapshot is a point-in-time copy of CompactionStats
type CompactionStatsSnapshot struct {
	Flushes           int64
	Merges            int64
	BytesRead         int64
	BytesWritten      int64
	TombstonesDropped int64
	DuplicatesDropped int64
	MaxLevel          int
	LevelCount        int
	LevelBytes        map[int]int64
}

// mergeResult summarizes one two-way merge
type mergeResult struct {
	read       int64
	written    int64
	tombstones int64
	duplicates int64
}
