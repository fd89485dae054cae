package lsm

import (
	"encoding/binary"
	"math"
)

const (
	// RecordSize is the fixed on-disk and in-memory size of a record
	RecordSize = 8

	// Tombstone marks a key as deleted. It can never be stored as user data.
	Tombstone int32 = math.MinInt32
)

// Record is a fixed-width key-value pair
type Record struct {
	Key   int32
	Value int32
}

// IsTombstone reports whether the record marks a deletion
func (r Record) IsTombstone() bool {
	return r.Value == Tombstone
}

// encodeRecord writes r into the first RecordSize bytes of buf
func encodeRecord(buf []byte, r Record) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Key))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.Value))
}

// decodeRecord reads a record from the first RecordSize bytes of buf
func decodeRecord(buf []byte) Record {
	return Record{
		Key:   int32(binary.LittleEndian.Uint32(buf[0:4])),
		Value: int32(binary.LittleEndian.Uint32(buf[4:8])),
	}
}

// decodeRecords decodes n consecutive records from buf into dst
func decodeRecords(dst []Record, buf []byte, n int) []Record {
	dst = dst[:0]
	for i := 0; i < n; i++ {
		dst = append(dst, decodeRecord(buf[i*RecordSize:]))
	}
	return dst
}

// searchRecords binary-searches a key-sorted page for key
func searchRecords(records []Record, key int32) (Record, bool) {
	lo, hi := 0, len(records)-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		switch {
		case records[mid].Key == key:
			return records[mid], true
		case records[mid].Key < key:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return Record{}, false
}
