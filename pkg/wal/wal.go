package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
)

// WAL is a Write-Ahead Log for the memtable. Every append is one frame
// followed by an fsync.
type WAL struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	writer     *bufio.Writer
	size       int64 // Bytes of valid frames
	currentLSN uint64
	compress   bool
	closed     bool

	logger  logging.Logger
	metrics *metrics.Registry
	stats   Stats
	scratch []byte
}

// Open opens or creates the log in dir. A torn or corrupt tail left by a
// crash is cut off so that new frames follow the last valid one.
func Open(dir string, opts Options) (*WAL, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	path := filepath.Join(dir, FileName)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	w := &WAL{
		path:     path,
		file:     file,
		writer:   bufio.NewWriter(file),
		compress: opts.Compress,
		logger:   logger.With(logging.Component("wal"), logging.Path(path)),
		metrics:  opts.Metrics,
	}

	if err := w.recover(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to recover WAL: %w", err)
	}
	return w, nil
}

// recover finds the end of the valid frames, trims anything after it and
// positions the file for appending
func (w *WAL) recover() error {
	var lastLSN uint64
	valid, err := w.scan(func(e Entry) error {
		lastLSN = e.LSN
		return nil
	})
	if err != nil {
		return err
	}

	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() > valid {
		w.logger.Warn("discarding torn WAL tail",
			logging.Int64("valid_bytes", valid),
			logging.Int64("file_bytes", info.Size()))
		if err := w.file.Truncate(valid); err != nil {
			return err
		}
		if err := w.file.Sync(); err != nil {
			return err
		}
	}

	if _, err := w.file.Seek(valid, io.SeekStart); err != nil {
		return err
	}
	w.size = valid
	w.currentLSN = lastLSN
	return nil
}

// scan reads frames from the start of the file, calling fn for every entry
// of every valid frame. It stops quietly at the first damaged frame and
// returns the byte length of the valid prefix.
func (w *WAL) scan(fn func(Entry) error) (int64, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	var valid int64
	var frames int
	for {
		entries, n, err := readFrame(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, errCorruptFrame) {
			w.logger.Warn("WAL corruption detected, recovery stopped",
				logging.Count(frames),
				logging.Error(err))
			break
		}
		if err != nil {
			return valid, err
		}
		for _, e := range entries {
			if err := fn(e); err != nil {
				return valid, fmt.Errorf("failed to replay entry LSN=%d: %w", e.LSN, err)
			}
		}
		valid += n
		frames++
	}
	return valid, nil
}

// Append logs one write and returns its LSN once it is durable
func (w *WAL) Append(op OpType, key, value int32) (uint64, error) {
	return w.AppendBatch([]Entry{{Op: op, Key: key, Value: value}})
}

// AppendBatch logs entries as a single frame with a single fsync. LSNs are
// assigned in order; the last one is returned.
func (w *WAL) AppendBatch(entries []Entry) (uint64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}

	// Check for LSN overflow
	if w.currentLSN > ^uint64(0)-uint64(len(entries)) {
		return 0, fmt.Errorf("WAL LSN space exhausted")
	}

	for i := range entries {
		entries[i].LSN = w.currentLSN + 1 + uint64(i)
	}

	frame, raw := encodeFrame(w.scratch[:0], entries, w.compress)
	w.scratch = frame

	if err := w.writeFrame(frame); err != nil {
		w.rollback()
		return 0, err
	}

	w.size += int64(len(frame))
	w.currentLSN += uint64(len(entries))
	w.stats.Frames++
	w.stats.Entries += uint64(len(entries))
	w.stats.BytesRaw += uint64(raw)
	w.stats.BytesWritten += uint64(len(frame))
	w.metrics.RecordWALSync(len(entries), len(frame))
	return w.currentLSN, nil
}

func (w *WAL) writeFrame(frame []byte) error {
	if _, err := w.writer.Write(frame); err != nil {
		return fmt.Errorf("failed to write WAL frame: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL: %w", err)
	}
	return nil
}

// rollback cuts a partially written frame so the log ends on a frame
// boundary again
func (w *WAL) rollback() {
	w.writer.Reset(w.file)
	if err := w.file.Truncate(w.size); err != nil {
		w.logger.Error("failed to roll back partial WAL frame", logging.Error(err))
	}
	if _, err := w.file.Seek(w.size, io.SeekStart); err != nil {
		w.logger.Error("failed to reposition WAL", logging.Error(err))
	}
}

// Enqueue appends synchronously and returns an already resolved commit
func (w *WAL) Enqueue(op OpType, key, value int32) *Commit {
	lsn, err := w.Append(op, key, value)
	return resolvedCommit(lsn, err)
}

// ReadAll reads all valid entries from the WAL
func (w *WAL) ReadAll() ([]Entry, error) {
	entries := make([]Entry, 0)
	err := w.Replay(func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// Replay calls fn for every logged entry in LSN order
func (w *WAL) Replay(fn func(Entry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	_, err := w.scan(fn)
	return err
}

// Truncate empties the log. It is called once the entries it holds are
// durable elsewhere.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL before truncate: %w", err)
	}
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate WAL: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind WAL: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL: %w", err)
	}
	w.writer.Reset(w.file)
	w.size = 0
	w.currentLSN = 0
	return nil
}

// CurrentLSN returns the LSN of the newest entry, 0 when empty
func (w *WAL) CurrentLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentLSN
}

// Size returns the length of the log in bytes
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Stats returns write statistics since Open
func (w *WAL) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Path returns the log file path
func (w *WAL) Path() string {
	return w.path
}

// Close closes the WAL
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
