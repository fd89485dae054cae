package lsm

import (
	"golang.org/x/exp/mmap"
)

// SSTable format:
//   [Page 0][Page 1]...[Page N-1]
//   Every page holds PageSize/RecordSize records of key(4) | value(4),
//   little-endian. The final page may be partial. There is no header,
//   footer or checksum; level and temporary status live in the file name.

const (
	DefaultPageSize     = 4096
	DefaultBitsPerEntry = 10
	DefaultHashCount    = 3

	tempSuffix = "Temp"
)

// LocateMode selects how LocateCandidatePage treats the search key
type LocateMode int

const (
	// LocatePoint finds the only page that could hold key, consulting the Bloom filter
	LocatePoint LocateMode = iota
	// LocateRangeLower finds the first page a scan starting at key must read
	LocateRangeLower
	// LocateRangeUpper finds the last page a scan ending at key must read
	LocateRangeUpper
)

func (m LocateMode) String() string {
	switch m {
	case LocatePoint:
		return "point"
	case LocateRangeLower:
		return "range-lower"
	case LocateRangeUpper:
		return "range-upper"
	default:
		return "unknown"
	}
}

// tableConfig carries the parameters every SSTable of a database shares
type tableConfig struct {
	pageSize     int
	bitsPerEntry int
	family       []HashFunc
}

func (c tableConfig) recordsPerPage() int {
	return c.pageSize / RecordSize
}

// SSTable is an immutable sorted run of records on disk. It becomes
// queryable once sealed, i.e. its sparse index and Bloom filter are built.
type SSTable struct {
	path     string
	level    int
	temp     bool
	size     int64 // Exact byte length
	pageSize int
	reader   *mmap.ReaderAt

	keys   []int32      // First key of every page
	bloom  *BloomFilter // Built from every stored key
	sealed bool
}
