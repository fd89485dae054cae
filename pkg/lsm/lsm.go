package lsm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/pools"
	"github.com/dd0wney/cluso-kv/pkg/wal"
)

// Open opens the database name under opts.DataDir, creating it if needed
// and recovering any level files left by a previous session
func Open(name string, opts Options) (*DB, error) {
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: bad database name %q", ErrInvalidOptions, name)
	}

	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	dir := filepath.Join(opts.DataDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, wrapIO("create database directory", 0, dir, err)
	}

	id := uuid.NewString()
	logger := opts.Logger.With(
		logging.Component("lsm"),
		logging.Database(name),
		logging.Instance(id),
	)

	cache := NewPageCache(opts.BufferSlots, opts.PageSize, opts.Metrics)
	compactor := NewCompactor(dir, opts.tableConfig(), cache, logger, opts.Metrics)
	if err := compactor.Load(); err != nil {
		logger.Error("recovery failed", logging.Path(dir), logging.Error(err))
		return nil, err
	}

	db := &DB{
		name:      name,
		id:        id,
		dir:       dir,
		opts:      opts,
		memTable:  NewMemTable(opts.MemtableBytes),
		compactor: compactor,
		cache:     cache,
		logger:    logger,
		metrics:   opts.Metrics,
	}
	db.turn = sync.NewCond(&db.mu)
	if err := db.openWAL(); err != nil {
		logger.Error("log recovery failed", logging.Path(dir), logging.Error(err))
		_ = compactor.Close()
		return nil, err
	}
	db.metrics.SetMemtableBytes(db.memTable.Size())

	logger.Info("database opened",
		logging.Path(dir),
		logging.Count(compactor.LevelCount()),
		logging.LevelNum(compactor.MaxLevel()))
	return db, nil
}

// openWAL opens the memtable log and replays it. Replayed writes may
// overfill the memtable, in which case it is flushed once at the end.
func (db *DB) openWAL() error {
	walOpts := wal.Options{
		Compress: db.opts.WALCompression,
		Logger:   db.logger,
		Metrics:  db.metrics,
	}

	switch db.opts.WALMode {
	case WALSync:
		w, err := wal.Open(db.dir, walOpts)
		if err != nil {
			return err
		}
		db.wal = w
	case WALBatched:
		w, err := wal.OpenBatched(db.dir, db.opts.WALBatchSize, db.opts.WALFlushInterval, walOpts)
		if err != nil {
			return err
		}
		db.wal = w
	default:
		return nil
	}

	replayed := 0
	err := db.wal.Replay(func(e wal.Entry) error {
		value := e.Value
		if e.Op == wal.OpDelete {
			value = Tombstone
		}
		db.memTable.Put(e.Key, value)
		replayed++
		return nil
	})
	if err == nil && db.memTable.IsFull() {
		err = db.flush()
	}
	if err != nil {
		_ = db.wal.Close()
		db.wal = nil
		return err
	}

	if replayed > 0 {
		db.logger.Info("memtable recovered from log",
			logging.Count(replayed),
			logging.Int("keys", db.memTable.Len()))
	}
	return nil
}

// Put writes a key-value pair. Tombstone is reserved and rejected.
func (db *DB) Put(key, value int32) error {
	start := time.Now()
	err := db.put(key, value)
	db.observe("put", start, err)
	if err == nil {
		db.stats.PutCount.Add(1)
	}
	return err
}

// Update is Put under the name the shell uses
func (db *DB) Update(key, value int32) error {
	start := time.Now()
	err := db.put(key, value)
	db.observe("update", start, err)
	if err == nil {
		db.stats.PutCount.Add(1)
	}
	return err
}

func (db *DB) put(key, value int32) error {
	if value == Tombstone {
		return ErrReservedValue
	}

	return db.apply(key, value)
}

// Delete removes key by writing a tombstone
func (db *DB) Delete(key int32) error {
	start := time.Now()
	err := db.apply(key, Tombstone)
	db.observe("delete", start, err)
	if err == nil {
		db.stats.DeleteCount.Add(1)
	}
	return err
}

// apply performs one write. Without a log it happens entirely under the
// write lock.
func (db *DB) apply(key, value int32) error {
	if db.wal != nil {
		return db.applyLogged(key, value)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	if db.insert(key, value) {
		return db.flush()
	}
	return nil
}

// applyLogged makes the write durable before the memtable sees it, so a
// write the log rejects is never visible. The wait for the log happens
// outside the lock and concurrent writers share one fsync. Each write takes
// a ticket together with its log position and reaches the memtable in
// ticket order, which is log order.
func (db *DB) applyLogged(key, value int32) error {
	op := wal.OpPut
	if value == Tombstone {
		op = wal.OpDelete
	}

	db.mu.Lock()
	for !db.closed && db.writesHeld() {
		db.turn.Wait()
	}
	if db.closed {
		db.mu.Unlock()
		return ErrClosed
	}
	ticket := db.nextTicket
	db.nextTicket++
	commit := db.wal.Enqueue(op, key, value)
	db.mu.Unlock()

	_, logErr := commit.Wait()

	db.mu.Lock()
	defer db.mu.Unlock()
	for db.appliedTicket != ticket {
		db.turn.Wait()
	}
	db.appliedTicket++
	defer db.turn.Broadcast()

	var err error
	if logErr != nil {
		err = fmt.Errorf("log write: %w", logErr)
	} else if db.insert(key, value) {
		db.flushPending = true
	}

	// Only the last write in flight flushes: truncating the log earlier
	// would drop entries that have not reached the memtable yet
	if db.flushPending && db.drained() {
		db.flushPending = false
		if flushErr := db.flush(); flushErr != nil && err == nil {
			err = flushErr
		}
	}
	return err
}

// insert puts the record into the memtable and reports whether a new key
// filled it
func (db *DB) insert(key, value int32) bool {
	created := db.memTable.Put(key, value)
	db.metrics.SetMemtableBytes(db.memTable.Size())
	return created && db.memTable.IsFull()
}

// writesHeld reports whether new logged writes must wait: a full memtable
// is waiting for its flush or a drain is in progress
func (db *DB) writesHeld() bool {
	return db.flushPending || db.holds > 0
}

// drained reports whether every logged write has reached the memtable
func (db *DB) drained() bool {
	return db.appliedTicket == db.nextTicket
}

// drain waits until every logged write has reached the memtable. Callers
// hold the write lock, which drain releases while waiting, and broadcast on
// db.turn when they are done.
func (db *DB) drain() {
	db.holds++
	for !db.drained() {
		db.turn.Wait()
	}
	db.holds--
}

// flush hands the memtable to the compactor and swaps in an empty one. On
// failure the memtable is kept so that no acknowledged write is lost.
func (db *DB) flush() error {
	if db.memTable.Len() == 0 {
		return nil
	}

	timer := logging.StartTimer(db.logger, "memtable flush",
		logging.Count(db.memTable.Len()),
		logging.Bytes(int64(db.memTable.Size())))

	err := db.compactor.Flush(db.memTable)
	timer.Stop(err)
	if err != nil {
		return err
	}

	db.memTable = NewMemTable(db.opts.MemtableBytes)
	db.metrics.SetMemtableBytes(0)

	// Replaying a stale log only rewrites values already on disk
	if db.wal != nil {
		if err := db.wal.Truncate(); err != nil {
			db.logger.Warn("failed to truncate log after flush", logging.Error(err))
		}
	}
	return nil
}

// Get returns the newest value of key. It returns ErrKeyDeleted when the
// newest record is a tombstone and ErrKeyNotFound when no record exists.
func (db *DB) Get(key int32) (int32, error) {
	start := time.Now()
	value, err := db.get(key)
	db.observe("get", start, err)
	db.stats.GetCount.Add(1)
	return value, err
}

func (db *DB) get(key int32) (int32, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return 0, ErrClosed
	}

	// 1. Check MemTable
	if value, ok := db.memTable.Get(key); ok {
		return liveValue(value)
	}

	// 2. Check levels from newest to oldest
	for level := 1; level <= db.compactor.MaxLevel(); level++ {
		sst, ok := db.compactor.Level(level)
		if !ok {
			continue
		}
		page, filtered, ok := sst.pointPage(key)
		if filtered {
			db.stats.BloomSkips.Add(1)
			db.metrics.RecordBloomSkip()
		}
		if !ok {
			continue
		}

		var rec Record
		var found bool
		err := db.cache.Fetch(sst, page, func(records []Record) error {
			rec, found = searchRecords(records, key)
			return nil
		})
		db.stats.PagesRead.Add(1)
		if err != nil {
			return 0, err
		}
		// A miss here is a filter false positive; older levels may still
		// hold the key.
		if found {
			return liveValue(rec.Value)
		}
	}

	return 0, ErrKeyNotFound
}

func liveValue(value int32) (int32, error) {
	if value == Tombstone {
		return 0, ErrKeyDeleted
	}
	return value, nil
}

// Scan returns the live records with lo <= key <= hi in ascending key order
func (db *DB) Scan(lo, hi int32) ([]Record, error) {
	start := time.Now()
	records, err := db.scan(lo, hi)
	db.observe("scan", start, err)
	db.stats.ScanCount.Add(1)
	return records, err
}

func (db *DB) scan(lo, hi int32) ([]Record, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrClosed
	}
	if lo > hi {
		return []Record{}, nil
	}

	// Newest record per key, tombstones included so they shadow older levels
	resolved := resolvedPool.Get()
	defer resolvedPool.Put(resolved)
	want := int64(hi) - int64(lo) + 1

	for _, r := range db.memTable.Scan(lo, hi) {
		resolved[r.Key] = r.Value
	}

	for level := 1; level <= db.compactor.MaxLevel(); level++ {
		if int64(len(resolved)) == want {
			break
		}
		sst, ok := db.compactor.Level(level)
		if !ok {
			continue
		}
		if err := db.scanTable(sst, lo, hi, resolved); err != nil {
			return nil, err
		}
	}

	out := make([]Record, 0, len(resolved))
	for key, value := range resolved {
		if value != Tombstone {
			out = append(out, Record{Key: key, Value: value})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

var errStopScan = errors.New("scan passed upper bound")

// resolvedPool recycles the per-scan key resolution map
var resolvedPool = pools.NewMapPool[int32, int32]()

// scanTable adds the records of sst in [lo, hi] whose keys are not yet
// resolved by a newer source
func (db *DB) scanTable(sst *SSTable, lo, hi int32, resolved map[int32]int32) error {
	first, ok := sst.LocateCandidatePage(lo, LocateRangeLower)
	if !ok {
		return nil
	}
	last, ok := sst.LocateCandidatePage(hi, LocateRangeUpper)
	if !ok {
		return nil
	}

	for page := first; page <= last; page++ {
		err := db.cache.Fetch(sst, page, func(records []Record) error {
			for _, r := range records {
				if r.Key < lo {
					continue
				}
				if r.Key > hi {
					return errStopScan
				}
				if _, seen := resolved[r.Key]; !seen {
					resolved[r.Key] = r.Value
				}
			}
			return nil
		})
		db.stats.PagesRead.Add(1)
		if errors.Is(err, errStopScan) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Sync forces a flush of the current memtable to disk
func (db *DB) Sync() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}
	db.drain()
	defer db.turn.Broadcast()
	if db.closed {
		return ErrClosed
	}

	if err := db.flush(); err != nil {
		return fmt.Errorf("failed to flush memtable: %w", err)
	}
	return nil
}

// Ping returns ErrClosed once the database is closed
func (db *DB) Ping() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrClosed
	}
	return nil
}

// Close flushes pending writes and unmaps every file. Later calls, and
// every other operation, return ErrClosed. When the final flush fails the
// database stays open with its memtable intact and Close may be retried.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}
	db.drain()
	defer db.turn.Broadcast()
	if db.closed {
		return ErrClosed
	}

	if err := db.flush(); err != nil {
		err = fmt.Errorf("final flush failed: %w", err)
		db.logger.Error("close failed", logging.Error(err))
		return err
	}
	db.closed = true

	closeErr := db.compactor.Close()
	var walErr error
	if db.wal != nil {
		walErr = db.wal.Close()
	}

	if err := errors.Join(closeErr, walErr); err != nil {
		db.logger.Error("close failed", logging.Error(err))
		return err
	}
	db.logger.Info("database closed", logging.LevelNum(db.compactor.MaxLevel()))
	return nil
}

// observe records the outcome of one operation
func (db *DB) observe(op string, start time.Time, err error) {
	status := "success"
	switch {
	case err == nil:
	case IsAbsent(err):
		status = "not_found"
	default:
		status = "error"
	}
	db.metrics.RecordOperation(op, status, time.Since(start))
}

// Stats returns current statistics as a snapshot
func (db *DB) Stats() StatsSnapshot {
	db.mu.RLock()
	memSize := db.memTable.Size()
	memKeys := db.memTable.Len()
	compaction := db.compactor.Stats()
	var walStats *wal.Stats
	if db.wal != nil {
		st := db.wal.Stats()
		walStats = &st
	}
	db.mu.RUnlock()

	hits, misses, evictions, hitRate := db.cache.Stats()

	return StatsSnapshot{
		PutCount:       db.stats.PutCount.Load(),
		DeleteCount:    db.stats.DeleteCount.Load(),
		GetCount:       db.stats.GetCount.Load(),
		ScanCount:      db.stats.ScanCount.Load(),
		PagesRead:      db.stats.PagesRead.Load(),
		BloomSkips:     db.stats.BloomSkips.Load(),
		MemtableSize:   memSize,
		MemtableKeys:   memKeys,
		WAL:            walStats,
		Compaction:     compaction,
		CacheHits:      hits,
		CacheMisses:    misses,
		CacheEvictions: evictions,
		CacheHitRate:   hitRate,
	}
}

// PrintStats writes human readable statistics to w
func (db *DB) PrintStats(w io.Writer) {
	stats := db.Stats()

	fmt.Fprintf(w, "Database %s (%s):\n", db.name, db.id)
	fmt.Fprintf(w, "  Puts: %d  Deletes: %d  Gets: %d  Scans: %d\n",
		stats.PutCount, stats.DeleteCount, stats.GetCount, stats.ScanCount)
	fmt.Fprintf(w, "  MemTable: %d keys (%.2f KB)\n", stats.MemtableKeys, float64(stats.MemtableSize)/1024)
	fmt.Fprintf(w, "  Flushes: %d  Merges: %d\n", stats.Compaction.Flushes, stats.Compaction.Merges)
	fmt.Fprintf(w, "  Tombstones dropped: %d  Shadowed versions dropped: %d\n",
		stats.Compaction.TombstonesDropped, stats.Compaction.DuplicatesDropped)
	fmt.Fprintf(w, "  Max level: %d  Occupied levels: %d\n", stats.Compaction.MaxLevel, stats.Compaction.LevelCount)

	levels := make([]int, 0, len(stats.Compaction.LevelBytes))
	for level := range stats.Compaction.LevelBytes {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	for _, level := range levels {
		fmt.Fprintf(w, "    L%d: %.2f KB\n", level, float64(stats.Compaction.LevelBytes[level])/1024)
	}

	fmt.Fprintf(w, "  Page cache: %d hits, %d misses, %d evictions (%.1f%% hit rate)\n",
		stats.CacheHits, stats.CacheMisses, stats.CacheEvictions, stats.CacheHitRate*100)
	fmt.Fprintf(w, "  Pages read: %d  Bloom skips: %d\n", stats.PagesRead, stats.BloomSkips)
	if stats.WAL != nil {
		fmt.Fprintf(w, "  WAL (%s): %d entries in %d frames, %.2f KB written\n",
			db.opts.WALMode, stats.WAL.Entries, stats.WAL.Frames, float64(stats.WAL.BytesWritten)/1024)
	}
}

// Name returns the database name
func (db *DB) Name() string { return db.name }

// ID identifies this open of the database
func (db *DB) ID() string { return db.id }

// Dir returns the directory holding the level files
func (db *DB) Dir() string { return db.dir }

// Cache returns the page cache
func (db *DB) Cache() *PageCache { return db.cache }

// Compactor returns the level manager. Callers must not mutate it while
// the database is open.
func (db *DB) Compactor() *Compactor { return db.compactor }
