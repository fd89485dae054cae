package lsm

import (
	"os"

	"github.com/dd0wney/cluso-kv/pkg/pools"
)

// sstWriter streams sorted records into a new SSTable file one page at a
// time. Only the current page is held in memory.
type sstWriter struct {
	path     string
	level    int
	file     *os.File
	page     []byte
	n        int   // Records in the current page
	written  int64 // Bytes written so far
	records  int
	pageSize int
}

// newSSTWriter creates (or truncates) the file at path
func newSSTWriter(path string, level, pageSize int) (*sstWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, wrapIO("create sstable", level, path, err)
	}
	return &sstWriter{
		path:     path,
		level:    level,
		file:     file,
		page:     pools.GetBytesSized(pageSize),
		pageSize: pageSize,
	}, nil
}

// Append adds the next record. Records must arrive in strictly ascending
// key order.
func (w *sstWriter) Append(r Record) error {
	encodeRecord(w.page[w.n*RecordSize:], r)
	w.n++
	w.records++
	if w.n*RecordSize == w.pageSize {
		return w.flushPage()
	}
	return nil
}

func (w *sstWriter) flushPage() error {
	if w.n == 0 {
		return nil
	}
	nbytes := w.n * RecordSize
	if _, err := w.file.Write(w.page[:nbytes]); err != nil {
		return wrapIO("write page", w.level, w.path, err)
	}
	w.written += int64(nbytes)
	w.n = 0
	return nil
}

// release hands the page buffer back once the writer is done
func (w *sstWriter) release() {
	if w.page != nil {
		pools.PutBytes(w.page)
		w.page = nil
	}
}

// Finish writes the partial tail page, syncs and closes the file
func (w *sstWriter) Finish() error {
	defer w.release()
	if err := w.flushPage(); err != nil {
		_ = w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return wrapIO("sync sstable", w.level, w.path, err)
	}
	if err := w.file.Close(); err != nil {
		return wrapIO("close sstable", w.level, w.path, err)
	}
	return nil
}

// Abort closes and removes the partially written file
func (w *sstWriter) Abort() {
	w.release()
	_ = w.file.Close()
	_ = os.Remove(w.path)
}

// writeSSTable writes already sorted records to path in one go
func writeSSTable(path string, level, pageSize int, records []Record) (int64, error) {
	w, err := newSSTWriter(path, level, pageSize)
	if err != nil {
		return 0, err
	}
	for _, r := range records {
		if err := w.Append(r); err != nil {
			w.Abort()
			return 0, err
		}
	}
	if err := w.Finish(); err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return w.written, nil
}
