package wal

import (
	"sync"
	"time"
)

// BatchedWAL wraps WAL with group commit: entries enqueued by concurrent
// writers share one frame and one fsync. A batch is written when it reaches
// batchSize entries or when flushInterval elapses.
type BatchedWAL struct {
	wal           *WAL
	buffer        []Entry
	pending       []*Commit
	batchSize     int
	flushInterval time.Duration
	closed        bool
	mu            sync.Mutex
	writeMu       sync.Mutex // Keeps batches in enqueue order
	stopCh        chan struct{}
	flushCh       chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// OpenBatched opens the log in dir with group commit
func OpenBatched(dir string, batchSize int, flushInterval time.Duration, opts Options) (*BatchedWAL, error) {
	w, err := Open(dir, opts)
	if err != nil {
		return nil, err
	}

	bw := &BatchedWAL{
		wal:           w,
		buffer:        make([]Entry, 0, batchSize),
		pending:       make([]*Commit, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
		flushCh:       make(chan struct{}, 1),
	}

	// Start background flusher
	bw.wg.Add(1)
	go bw.backgroundFlusher()

	return bw, nil
}

// Enqueue adds an entry to the current batch without waiting. Entries are
// logged in the order Enqueue is called.
func (bw *BatchedWAL) Enqueue(op OpType, key, value int32) *Commit {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return resolvedCommit(0, ErrClosed)
	}
	commit := newCommit()
	bw.buffer = append(bw.buffer, Entry{Op: op, Key: key, Value: value})
	bw.pending = append(bw.pending, commit)
	shouldFlush := len(bw.buffer) >= bw.batchSize
	bw.mu.Unlock()

	// Trigger immediate flush if batch is full
	if shouldFlush {
		select {
		case bw.flushCh <- struct{}{}:
		default:
		}
	}
	return commit
}

// Append enqueues an entry and waits until it is durable
func (bw *BatchedWAL) Append(op OpType, key, value int32) (uint64, error) {
	return bw.Enqueue(op, key, value).Wait()
}

// backgroundFlusher periodically flushes buffered entries
func (bw *BatchedWAL) backgroundFlusher() {
	defer bw.wg.Done()

	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-bw.stopCh:
			// Final flush on shutdown
			bw.flush()
			return

		case <-ticker.C:
			bw.flush()

		case <-bw.flushCh:
			bw.flush()
		}
	}
}

// flush writes all buffered entries to WAL with a single fsync
func (bw *BatchedWAL) flush() {
	bw.writeMu.Lock()
	defer bw.writeMu.Unlock()

	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}

	// Take ownership of current buffer
	entries := bw.buffer
	commits := bw.pending
	bw.buffer = make([]Entry, 0, bw.batchSize)
	bw.pending = make([]*Commit, 0, bw.batchSize)
	bw.mu.Unlock()

	last, err := bw.wal.AppendBatch(entries)

	// Notify all waiting goroutines
	first := last - uint64(len(entries)) + 1
	for i, c := range commits {
		if err != nil {
			c.resolve(0, err)
			continue
		}
		c.resolve(first+uint64(i), nil)
	}
}

// Replay replays WAL entries
func (bw *BatchedWAL) Replay(fn func(Entry) error) error {
	bw.flush()
	return bw.wal.Replay(fn)
}

// Truncate writes out the pending batch, then empties the log
func (bw *BatchedWAL) Truncate() error {
	bw.flush()

	bw.writeMu.Lock()
	defer bw.writeMu.Unlock()
	return bw.wal.Truncate()
}

// Close closes the batched WAL
func (bw *BatchedWAL) Close() error {
	var closeErr error
	bw.closeOnce.Do(func() {
		bw.mu.Lock()
		bw.closed = true
		bw.mu.Unlock()

		// Signal background flusher to stop
		close(bw.stopCh)

		// Wait for background flusher to complete (including final flush)
		bw.wg.Wait()

		// Close underlying WAL
		closeErr = bw.wal.Close()
	})
	return closeErr
}

// CurrentLSN returns the LSN of the newest durable entry
func (bw *BatchedWAL) CurrentLSN() uint64 {
	return bw.wal.CurrentLSN()
}

// Stats returns write statistics of the underlying log
func (bw *BatchedWAL) Stats() Stats {
	return bw.wal.Stats()
}
