package wal

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func openTestBatched(t *testing.T, dir string, batchSize int, interval time.Duration) *BatchedWAL {
	t.Helper()
	bw, err := OpenBatched(dir, batchSize, interval, Options{Compress: true})
	if err != nil {
		t.Fatalf("Failed to open batched WAL: %v", err)
	}
	return bw
}

// TestNewBatchedWAL tests creating a batched WAL
func TestNewBatchedWAL(t *testing.T) {
	bw := openTestBatched(t, t.TempDir(), 10, 100*time.Millisecond)
	defer bw.Close()

	if bw.batchSize != 10 {
		t.Errorf("Expected batch size 10, got %d", bw.batchSize)
	}
	if bw.flushInterval != 100*time.Millisecond {
		t.Errorf("Expected flush interval 100ms, got %v", bw.flushInterval)
	}
}

// TestBatchedWAL_Append tests that a lone entry is written by the ticker
func TestBatchedWAL_Append(t *testing.T) {
	bw := openTestBatched(t, t.TempDir(), 10, 5*time.Millisecond)
	defer bw.Close()

	lsn, err := bw.Append(OpPut, 1, 10)
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if lsn != 1 {
		t.Errorf("Expected LSN 1, got %d", lsn)
	}
	if bw.CurrentLSN() != 1 {
		t.Errorf("CurrentLSN = %d, want 1", bw.CurrentLSN())
	}
}

// TestBatchedWAL_FullBatchFlushesImmediately uses an interval far longer
// than the test so only the size trigger can complete the commits
func TestBatchedWAL_FullBatchFlushesImmediately(t *testing.T) {
	bw := openTestBatched(t, t.TempDir(), 4, time.Hour)
	defer bw.Close()

	commits := make([]*Commit, 4)
	for i := range commits {
		commits[i] = bw.Enqueue(OpPut, int32(i), int32(i*10))
	}

	done := make(chan struct{})
	go func() {
		for _, c := range commits {
			c.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("full batch was not flushed")
	}

	for i, c := range commits {
		lsn, err := c.Wait()
		if err != nil {
			t.Fatalf("commit %d failed: %v", i, err)
		}
		if lsn != uint64(i+1) {
			t.Errorf("commit %d LSN = %d, want %d", i, lsn, i+1)
		}
	}
	if stats := bw.Stats(); stats.Frames != 1 || stats.Entries != 4 {
		t.Errorf("stats = %+v, want one frame of 4 entries", stats)
	}
}

// TestBatchedWAL_ConcurrentAppends tests group commit under contention
func TestBatchedWAL_ConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	bw := openTestBatched(t, dir, 32, time.Millisecond)

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := bw.Append(OpPut, int32(w*perWriter+i), int32(w)); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Append failed: %v", err)
	}

	if err := bw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	w, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer w.Close()

	entries, err := w.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) != writers*perWriter {
		t.Fatalf("recovered %d entries, want %d", len(entries), writers*perWriter)
	}
	seen := make(map[int32]bool)
	for i, e := range entries {
		if e.LSN != uint64(i+1) {
			t.Fatalf("entry %d has LSN %d", i, e.LSN)
		}
		seen[e.Key] = true
	}
	if len(seen) != writers*perWriter {
		t.Errorf("recovered %d distinct keys, want %d", len(seen), writers*perWriter)
	}
}

// TestBatchedWAL_TruncateDrainsPending tests that pending entries are
// written before the log is emptied, so their commits succeed
func TestBatchedWAL_TruncateDrainsPending(t *testing.T) {
	bw := openTestBatched(t, t.TempDir(), 100, time.Hour)
	defer bw.Close()

	c := bw.Enqueue(OpPut, 1, 10)
	if err := bw.Truncate(); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	if _, err := c.Wait(); err != nil {
		t.Errorf("pending commit failed: %v", err)
	}

	var n int
	bw.Replay(func(Entry) error { n++; return nil })
	if n != 0 {
		t.Errorf("replayed %d entries after Truncate, want 0", n)
	}
}

// TestBatchedWAL_Close tests that Close flushes and later appends fail
func TestBatchedWAL_Close(t *testing.T) {
	bw := openTestBatched(t, t.TempDir(), 100, time.Hour)

	c := bw.Enqueue(OpPut, 1, 10)
	if err := bw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := c.Wait(); err != nil {
		t.Errorf("commit pending at Close failed: %v", err)
	}
	if err := bw.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if _, err := bw.Append(OpPut, 2, 20); !errors.Is(err, ErrClosed) {
		t.Errorf("Append after Close = %v, want ErrClosed", err)
	}
}

// TestNewCommit tests that a commit stays pending until resolved
func TestNewCommit(t *testing.T) {
	c, resolve := NewCommit()

	done := make(chan error, 1)
	go func() {
		_, err := c.Wait()
		done <- err
	}()
	select {
	case <-done:
		t.Fatal("Wait returned before resolve")
	case <-time.After(10 * time.Millisecond):
	}

	boom := errors.New("boom")
	resolve(0, boom)
	if err := <-done; !errors.Is(err, boom) {
		t.Errorf("Wait = %v, want boom", err)
	}
}

// TestBatchedWAL_FrameWriteFailure tests that the commit of a batch that
// cannot be written fails and the entry is not counted as logged
func TestBatchedWAL_FrameWriteFailure(t *testing.T) {
	// Batch size 1 flushes on every enqueue
	bw := openTestBatched(t, t.TempDir(), 1, time.Hour)
	defer func() { _ = bw.Close() }()

	if _, err := bw.Append(OpPut, 1, 10); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Later frame writes hit a closed descriptor
	if err := bw.wal.file.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := bw.Append(OpPut, 2, 20); err == nil {
		t.Fatal("Append to an unwritable log succeeded")
	}

	if got := bw.CurrentLSN(); got != 1 {
		t.Errorf("CurrentLSN() = %d, want 1", got)
	}
	if got := bw.Stats().Entries; got != 1 {
		t.Errorf("Stats().Entries = %d, want 1", got)
	}
}
