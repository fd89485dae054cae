package pools

import (
	"sync"
)

// Buffer size classes for efficient reuse
const (
	TinySize  = 64    // For single-entry WAL payloads
	SmallSize = 512   // For small pages and WAL batches
	PageSize  = 4096  // For default-sized pages
	LargeSize = 16384 // For large pages
	MaxPool   = 65536 // Don't pool buffers larger than this
)

// BytePool provides size-class based pooling for byte slices.
// This reduces GC pressure by reusing buffers of appropriate sizes.
type BytePool struct {
	classes [5]sync.Pool
}

var byteClasses = [5]int{TinySize, SmallSize, PageSize, LargeSize, MaxPool}

// NewBytePool creates a new byte pool
func NewBytePool() *BytePool {
	p := &BytePool{}
	for i, size := range byteClasses {
		p.classes[i].New = func() any {
			b := make([]byte, 0, size)
			return &b
		}
	}
	return p
}

// classFor returns the smallest class holding size, or -1 when too large
func classFor(classes []int, size int) int {
	for i, c := range classes {
		if size <= c {
			return i
		}
	}
	return -1
}

// Get returns a byte slice with at least the requested capacity.
// The returned slice has length 0.
func (p *BytePool) Get(size int) []byte {
	i := classFor(byteClasses[:], size)
	if i < 0 {
		return make([]byte, 0, size)
	}

	bp, ok := p.classes[i].Get().(*[]byte)
	if !ok || cap(*bp) < size {
		return make([]byte, 0, size)
	}
	return (*bp)[:0]
}

// GetSized returns a byte slice with exactly the requested length.
// Its contents are not zeroed.
func (p *BytePool) GetSized(size int) []byte {
	b := p.Get(size)
	return b[:size]
}

// Put returns a byte slice to the pool for reuse. A slice is filed under
// the largest class its capacity covers, so Get never sees a short buffer.
func (p *BytePool) Put(b []byte) {
	c := cap(b)
	if c < TinySize || c > MaxPool {
		return
	}

	i := len(byteClasses) - 1
	for i > 0 && byteClasses[i] > c {
		i--
	}
	b = b[:0]
	p.classes[i].Put(&b)
}

// Default global byte pool
var defaultBytePool = NewBytePool()

// GetBytes returns a byte slice from the default pool.
func GetBytes(size int) []byte {
	return defaultBytePool.Get(size)
}

// GetBytesSized returns a byte slice with exact length from the default pool.
func GetBytesSized(size int) []byte {
	return defaultBytePool.GetSized(size)
}

// PutBytes returns a byte slice to the default pool.
func PutBytes(b []byte) {
	defaultBytePool.Put(b)
}
