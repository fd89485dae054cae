package lsm

import (
	"github.com/dd0wney/cluso-kv/pkg/pools"
)

// recordPool recycles the decoded page of each merge input
var recordPool = pools.NewSlicePool[Record]()

// tableIterator streams the records of an SSTable one page at a time. Merge
// inputs bypass the page cache: each input owns exactly one page buffer.
type tableIterator struct {
	sst     *SSTable
	buf     []byte
	records []Record
	page    int
	index   int
	err     error
}

// newTableIterator positions the iterator at the first record of sst
func newTableIterator(sst *SSTable) *tableIterator {
	it := &tableIterator{
		sst:     sst,
		buf:     pools.GetBytesSized(sst.pageSize),
		records: recordPool.Get(sst.pageSize / RecordSize),
		page:    -1,
	}
	it.advancePage()
	return it
}

func (it *tableIterator) advancePage() {
	it.index = 0
	it.records = it.records[:0]
	for it.err == nil && len(it.records) == 0 {
		it.page++
		if it.page >= it.sst.NumPages() {
			return
		}
		n, err := it.sst.ReadPage(it.page, it.buf)
		if err != nil {
			it.err = err
			return
		}
		it.records = decodeRecords(it.records, it.buf, n)
	}
}

// Peek returns the current record without advancing
func (it *tableIterator) Peek() (Record, bool) {
	if it.err != nil || it.index >= len(it.records) {
		return Record{}, false
	}
	return it.records[it.index], true
}

// Next advances past the current record
func (it *tableIterator) Next() {
	it.index++
	if it.index >= len(it.records) {
		it.advancePage()
	}
}

// Err returns the first read error encountered
func (it *tableIterator) Err() error {
	return it.err
}

// Close returns the iterator's buffers to their pools. The iterator must
// not be used afterwards.
func (it *tableIterator) Close() {
	if it.buf == nil {
		return
	}
	pools.PutBytes(it.buf)
	recordPool.Put(it.records)
	it.buf = nil
	it.records = nil
	it.err = ErrClosed
}
