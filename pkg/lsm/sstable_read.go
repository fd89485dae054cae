package lsm

import (
	"errors"
)

var errTornFile = errors.New("file length is not a whole number of records")

// LocateCandidatePage returns the page that must be read for key under mode,
// or ok=false when no page of this table can be relevant.
func (sst *SSTable) LocateCandidatePage(key int32, mode LocateMode) (page int, ok bool) {
	sst.mustBeSealed()

	if len(sst.keys) == 0 {
		return 0, false
	}

	switch mode {
	case LocatePoint:
		page, _, ok := sst.pointPage(key)
		return page, ok
	case LocateRangeUpper:
		if sst.keys[0] > key {
			return 0, false
		}
	case LocateRangeLower:
		if sst.keys[0] >= key {
			return 0, true
		}
	}

	return sst.floorPage(key), true
}

// pointPage locates the page that may hold key. filtered reports that the
// Bloom filter ruled the key out, which is the only reason the filter is
// consulted: it cannot answer ranges.
func (sst *SSTable) pointPage(key int32) (page int, filtered, ok bool) {
	sst.mustBeSealed()

	if len(sst.keys) == 0 {
		return 0, false, false
	}
	if !sst.bloom.MayContain(key) {
		return 0, true, false
	}
	if sst.keys[0] > key {
		return 0, false, false
	}
	return sst.floorPage(key), false, true
}

// floorPage returns the rightmost page whose first key is <= key. Callers
// guarantee keys[0] <= key.
func (sst *SSTable) floorPage(key int32) int {
	lo, hi := 0, len(sst.keys)-1
	result := -1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if sst.keys[mid] <= key {
			result = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return result
}

// ReadPage copies page into buf and returns the number of records in it
func (sst *SSTable) ReadPage(page int, buf []byte) (int, error) {
	n := sst.PageRecordCount(page)
	if n == 0 {
		return 0, nil
	}
	if sst.reader == nil {
		return 0, wrapIO("read page", sst.level, sst.path, errors.New("sstable is closed"))
	}
	off := int64(page) * int64(sst.pageSize)
	if _, err := sst.reader.ReadAt(buf[:n*RecordSize], off); err != nil {
		return 0, wrapIO("read page", sst.level, sst.path, err)
	}
	return n, nil
}
