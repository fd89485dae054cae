package lsm

import "math"

// BloomFilter is a probabilistic data structure for set membership testing
// - False positives possible (may say key exists when it doesn't)
// - False negatives impossible (if it says key doesn't exist, it definitely doesn't)
type BloomFilter struct {
	bits   []uint64
	size   uint64 // In bits
	family []HashFunc
}

// NewBloomFilter creates a filter of numRecords*bitsPerEntry bits probed by
// every function in family
func NewBloomFilter(numRecords, bitsPerEntry int, family []HashFunc) *BloomFilter {
	size := uint64(0)
	if numRecords > 0 && bitsPerEntry > 0 {
		size = uint64(numRecords) * uint64(bitsPerEntry)
	}
	return &BloomFilter{
		bits:   make([]uint64, (size+63)/64),
		size:   size,
		family: family,
	}
}

// Add adds a key to the Bloom filter
func (bf *BloomFilter) Add(key int32) {
	if bf.size == 0 {
		return
	}
	for _, h := range bf.family {
		pos := h.Sum(key) % bf.size
		bf.bits[pos/64] |= 1 << (pos % 64)
	}
}

// MayContain checks if a key might be in the set
// Returns false if key definitely doesn't exist
func (bf *BloomFilter) MayContain(key int32) bool {
	if bf.size == 0 {
		return false
	}
	for _, h := range bf.family {
		pos := h.Sum(key) % bf.size
		if bf.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Size returns the size of the filter in bits
func (bf *BloomFilter) Size() int {
	return int(bf.size)
}

// HashCount returns the number of hash functions
func (bf *BloomFilter) HashCount() int {
	return len(bf.family)
}

// EstimateFalsePositiveRate estimates current false positive rate
func (bf *BloomFilter) EstimateFalsePositiveRate(itemCount int) float64 {
	if bf.size == 0 {
		return 0
	}
	// p = (1 - e^(-k*n/m))^k
	k := float64(len(bf.family))
	n := float64(itemCount)
	m := float64(bf.size)

	return math.Pow(1.0-math.Exp(-k*n/m), k)
}
