package lsm

import (
	"encoding/binary"
	"os"

	"golang.org/x/exp/mmap"

	"github.com/dd0wney/cluso-kv/pkg/pools"
)

// openSSTable maps an existing file read-only. The table is not sealed;
// temporary merge inputs are only ever streamed and never sealed.
func openSSTable(path string, level int, temp bool, pageSize int) (*SSTable, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, wrapIO("stat sstable", level, path, err)
	}
	if info.Size()%RecordSize != 0 {
		return nil, wrapIO("open sstable", level, path, errTornFile)
	}

	reader, err := mmap.Open(path)
	if err != nil {
		return nil, wrapIO("mmap sstable", level, path, err)
	}

	return &SSTable{
		path:     path,
		level:    level,
		temp:     temp,
		size:     info.Size(),
		pageSize: pageSize,
		reader:   reader,
	}, nil
}

// openSealedSSTable opens a level file and builds its index and filter
func openSealedSSTable(path string, level int, cfg tableConfig) (*SSTable, error) {
	sst, err := openSSTable(path, level, false, cfg.pageSize)
	if err != nil {
		return nil, err
	}
	if err := sst.seal(cfg); err != nil {
		_ = sst.Close()
		return nil, err
	}
	return sst, nil
}

func (sst *SSTable) seal(cfg tableConfig) error {
	if err := sst.buildIndex(); err != nil {
		return err
	}
	if err := sst.buildBloomFilter(cfg.family, cfg.bitsPerEntry); err != nil {
		return err
	}
	sst.sealed = true
	return nil
}

// buildIndex reads the first key of every page into the sparse index
func (sst *SSTable) buildIndex() error {
	numPages := sst.NumPages()
	keys := make([]int32, 0, numPages)
	var buf [4]byte
	for p := 0; p < numPages; p++ {
		if _, err := sst.reader.ReadAt(buf[:], int64(p)*int64(sst.pageSize)); err != nil {
			return wrapIO("build index", sst.level, sst.path, err)
		}
		keys = append(keys, int32(binary.LittleEndian.Uint32(buf[:])))
	}
	sst.keys = keys
	return nil
}

// buildBloomFilter streams the file page by page, adding every stored key
func (sst *SSTable) buildBloomFilter(family []HashFunc, bitsPerEntry int) error {
	bloom := NewBloomFilter(sst.RecordCount(), bitsPerEntry, family)
	buf := pools.GetBytesSized(sst.pageSize)
	defer pools.PutBytes(buf)
	for p := 0; p < sst.NumPages(); p++ {
		n, err := sst.ReadPage(p, buf)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			bloom.Add(decodeRecord(buf[i*RecordSize:]).Key)
		}
	}
	sst.bloom = bloom
	return nil
}

// Path returns the file path
func (sst *SSTable) Path() string { return sst.path }

// Level returns the level the file was written for
func (sst *SSTable) Level() int { return sst.level }

// IsTemp reports whether this is an in-flight merge intermediate
func (sst *SSTable) IsTemp() bool { return sst.temp }

// Size returns the exact file length in bytes
func (sst *SSTable) Size() int64 { return sst.size }

// RecordCount returns the number of records stored
func (sst *SSTable) RecordCount() int {
	return int(sst.size / RecordSize)
}

// NumPages returns the number of pages including a partial tail page
func (sst *SSTable) NumPages() int {
	ps := int64(sst.pageSize)
	return int((sst.size + ps - 1) / ps)
}

// PageRecordCount returns how many records page holds, computed from the
// exact file length for the final page
func (sst *SSTable) PageRecordCount(page int) int {
	if page < 0 || page >= sst.NumPages() {
		return 0
	}
	remaining := sst.size - int64(page)*int64(sst.pageSize)
	if remaining > int64(sst.pageSize) {
		remaining = int64(sst.pageSize)
	}
	return int(remaining / RecordSize)
}

// FirstKeys returns a copy of the sparse index
func (sst *SSTable) FirstKeys() []int32 {
	sst.mustBeSealed()
	out := make([]int32, len(sst.keys))
	copy(out, sst.keys)
	return out
}

// Bloom returns the table's filter
func (sst *SSTable) Bloom() *BloomFilter {
	sst.mustBeSealed()
	return sst.bloom
}

// Close unmaps the file
func (sst *SSTable) Close() error {
	if sst.reader == nil {
		return nil
	}
	err := sst.reader.Close()
	sst.reader = nil
	return err
}

// Remove closes and deletes the file
func (sst *SSTable) Remove() error {
	_ = sst.Close()
	if err := os.Remove(sst.path); err != nil {
		return wrapIO("remove sstable", sst.level, sst.path, err)
	}
	return nil
}

func (sst *SSTable) mustBeSealed() {
	if !sst.sealed {
		panic("lsm: sstable " + sst.path + " queried before its index was built")
	}
}
