package lsm

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
)

// NewCompactor creates a compactor for the level files in dir
func NewCompactor(dir string, cfg tableConfig, cache *PageCache, logger logging.Logger, reg *metrics.Registry) *Compactor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Compactor{
		dir:     dir,
		cfg:     cfg,
		levels:  make(map[int]*SSTable),
		cache:   cache,
		logger:  logger.With(logging.Component("compactor")),
		metrics: reg,
		open:    openSealedSSTable,
	}
}

// Load recovers the levels present in dir. Leftover temporary files belong
// to merges that never completed and are deleted.
func (c *Compactor) Load() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return wrapIO("list levels", 0, c.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		level, temp, ok := parseSSTableName(entry.Name())
		if !ok {
			continue
		}

		path := SSTablePath(c.dir, level, temp)
		if temp {
			if err := os.Remove(path); err != nil {
				return wrapIO("remove temp file", level, path, err)
			}
			c.logger.Warn("removed unfinished merge output", logging.LevelNum(level), logging.Path(path))
			continue
		}

		sst, err := c.openTable(path, level)
		if err != nil {
			c.closeAll()
			return err
		}
		c.levels[level] = sst
		c.maxLevel = max(c.maxLevel, level)
		c.metrics.SetLevelBytes(level, sst.Size())
	}

	c.metrics.SetMaxLevel(c.maxLevel)
	c.logger.Info("levels recovered",
		logging.Count(len(c.levels)),
		logging.LevelNum(c.maxLevel))
	return nil
}

// Flush writes the memtable's records into level 1, cascading merges down
// the tree when level 1 is occupied. On error no level changes.
func (c *Compactor) Flush(mt *MemTable) error {
	records := mt.Records()
	if len(records) == 0 {
		return nil
	}

	start := time.Now()
	tempPath := SSTablePath(c.dir, 1, true)
	written, err := writeSSTable(tempPath, 1, c.cfg.pageSize, records)
	if err != nil {
		return fmt.Errorf("flush memtable: %w", err)
	}

	c.stats.Flushes.Add(1)
	c.stats.BytesWritten.Add(written)
	c.metrics.RecordFlush()

	if _, occupied := c.levels[1]; !occupied {
		if err := c.install(1, tempPath); err != nil {
			_ = os.Remove(tempPath)
			return err
		}
		c.logger.Debug("memtable flushed",
			logging.LevelNum(1),
			logging.Count(len(records)),
			logging.Bytes(written),
			logging.Latency(time.Since(start)))
		return nil
	}

	if err := c.cascade(1, tempPath); err != nil {
		return fmt.Errorf("flush memtable: %w", err)
	}
	return nil
}

// cascade merges the incoming temporary file for level with the file
// installed there, moving one level deeper each step until the output lands
// on a vacant level. Superseded level files are only removed once the
// final output is installed, so a failure part way leaves every level as it
// was.
func (c *Compactor) cascade(level int, incomingPath string) error {
	var superseded []*SSTable

	for {
		existing := c.levels[level]
		outLevel := level + 1
		outPath := SSTablePath(c.dir, outLevel, true)

		start := time.Now()
		res, err := c.mergeFiles(existing, incomingPath, level, outPath)
		_ = os.Remove(incomingPath)
		if err != nil {
			c.metrics.RecordMerge("failed", time.Since(start))
			c.logger.Error("merge failed",
				logging.LevelNum(level),
				logging.Path(outPath),
				logging.Error(err))
			return err
		}

		c.stats.Merges.Add(1)
		c.stats.BytesRead.Add(res.read)
		c.stats.BytesWritten.Add(res.written)
		c.stats.TombstonesDropped.Add(res.tombstones)
		c.stats.DuplicatesDropped.Add(res.duplicates)
		superseded = append(superseded, existing)

		if _, occupied := c.levels[outLevel]; occupied {
			c.metrics.RecordMerge("cascaded", time.Since(start))
			c.logger.Debug("merge cascading",
				logging.LevelNum(outLevel),
				logging.Bytes(res.written))
			level = outLevel
			incomingPath = outPath
			continue
		}

		if err := c.install(outLevel, outPath); err != nil {
			_ = os.Remove(outPath)
			c.metrics.RecordMerge("failed", time.Since(start))
			return err
		}
		c.metrics.RecordMerge("installed", time.Since(start))
		c.logger.Info("merge installed",
			logging.LevelNum(outLevel),
			logging.Count(len(superseded)),
			logging.Bytes(res.written),
			logging.Latency(time.Since(start)))
		break
	}

	for _, sst := range superseded {
		c.retire(sst)
	}
	return nil
}

// mergeFiles opens the incoming temporary file and merges it with existing
// into outPath. Tombstones are dropped when level is the deepest level.
func (c *Compactor) mergeFiles(existing *SSTable, incomingPath string, level int, outPath string) (mergeResult, error) {
	incoming, err := openSSTable(incomingPath, level, true, c.cfg.pageSize)
	if err != nil {
		return mergeResult{}, err
	}
	defer incoming.Close()

	return mergeTables(existing, incoming, outPath, level+1, level == c.maxLevel)
}

// mergeTables streams a two-way merge of older and newer into a new file at
// outPath. newer wins when both hold a key.
func mergeTables(older, newer *SSTable, outPath string, outLevel int, dropTombstones bool) (mergeResult, error) {
	res := mergeResult{read: older.Size() + newer.Size()}

	w, err := newSSTWriter(outPath, outLevel, older.pageSize)
	if err != nil {
		return res, err
	}

	a := newTableIterator(older)
	defer a.Close()
	b := newTableIterator(newer)
	defer b.Close()

	emit := func(r Record) error {
		if dropTombstones && r.IsTombstone() {
			res.tombstones++
			return nil
		}
		return w.Append(r)
	}

	for {
		ra, okA := a.Peek()
		rb, okB := b.Peek()
		if !okA && !okB {
			break
		}

		var err error
		switch {
		case !okB || (okA && ra.Key < rb.Key):
			err = emit(ra)
			a.Next()
		case !okA || rb.Key < ra.Key:
			err = emit(rb)
			b.Next()
		default:
			err = emit(rb)
			res.duplicates++
			a.Next()
			b.Next()
		}
		if err != nil {
			w.Abort()
			return res, err
		}
	}

	if err := errors.Join(a.Err(), b.Err()); err != nil {
		w.Abort()
		return res, err
	}
	if err := w.Finish(); err != nil {
		_ = os.Remove(outPath)
		return res, err
	}

	res.written = w.written
	return res, nil
}

// install renames a finished temporary file into place as level's file. A
// file that cannot be opened is removed again so that Load never finds it.
func (c *Compactor) install(level int, tempPath string) error {
	finalPath := SSTablePath(c.dir, level, false)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return wrapIO("install level", level, finalPath, err)
	}

	sst, err := c.openTable(finalPath, level)
	if err != nil {
		if rmErr := os.Remove(finalPath); rmErr != nil {
			c.logger.Warn("failed to remove unopenable level file",
				logging.LevelNum(level),
				logging.Path(finalPath),
				logging.Error(rmErr))
		}
		return err
	}

	c.levels[level] = sst
	if level > c.maxLevel {
		c.maxLevel = level
		c.metrics.SetMaxLevel(level)
	}
	c.metrics.SetLevelBytes(level, sst.Size())
	return nil
}

func (c *Compactor) openTable(path string, level int) (*SSTable, error) {
	return c.open(path, level, c.cfg)
}

// retire drops a superseded level file. Its cached pages are invalidated
// before the file goes away.
func (c *Compactor) retire(sst *SSTable) {
	level := sst.Level()
	if c.levels[level] == sst {
		delete(c.levels, level)
		c.metrics.SetLevelBytes(level, 0)
	}
	if c.cache != nil {
		c.cache.InvalidateTable(sst)
	}
	if err := sst.Remove(); err != nil {
		c.logger.Warn("failed to remove superseded level file",
			logging.LevelNum(level),
			logging.Path(sst.Path()),
			logging.Error(err))
	}
}

// Level returns the file installed at level n
func (c *Compactor) Level(n int) (*SSTable, bool) {
	sst, ok := c.levels[n]
	return sst, ok
}

// MaxLevel returns the deepest level ever installed, 0 when none
func (c *Compactor) MaxLevel() int {
	return c.maxLevel
}

// LevelCount returns the number of occupied levels
func (c *Compactor) LevelCount() int {
	return len(c.levels)
}

// Levels returns the occupied level numbers in ascending order
func (c *Compactor) Levels() []int {
	out := make([]int, 0, len(c.levels))
	for level := range c.levels {
		out = append(out, level)
	}
	sort.Ints(out)
	return out
}

// Stats returns a snapshot of compaction statistics
func (c *Compactor) Stats() CompactionStatsSnapshot {
	levelBytes := make(map[int]int64, len(c.levels))
	for level, sst := range c.levels {
		levelBytes[level] = sst.Size()
	}
	return CompactionStatsSnapshot{
		Flushes:           c.stats.Flushes.Load(),
		Merges:            c.stats.Merges.Load(),
		BytesRead:         c.stats.BytesRead.Load(),
		BytesWritten:      c.stats.BytesWritten.Load(),
		TombstonesDropped: c.stats.TombstonesDropped.Load(),
		DuplicatesDropped: c.stats.DuplicatesDropped.Load(),
		MaxLevel:          c.maxLevel,
		LevelCount:        len(c.levels),
		LevelBytes:        levelBytes,
	}
}

// Close unmaps every level file
func (c *Compactor) Close() error {
	var errs []error
	for _, sst := range c.levels {
		if err := sst.Close(); err != nil {
			errs = append(errs, wrapIO("close sstable", sst.Level(), sst.Path(), err))
		}
	}
	return errors.Join(errs...)
}

func (c *Compactor) closeAll() {
	for level, sst := range c.levels {
		_ = sst.Close()
		delete(c.levels, level)
	}
}
