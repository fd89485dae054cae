package lsm

const (
	hashIndexInitialBuckets = 100
	hashIndexMaxLoad        = 0.75
)

type hashEntry struct {
	level int
	page  int
	slot  int
}

// HashIndex is a chained hash map from a (level, page) pair to a cache slot.
// The table doubles and rehashes once the load factor exceeds 0.75.
type HashIndex struct {
	buckets [][]hashEntry
	count   int
}

// NewHashIndex creates an empty index
func NewHashIndex() *HashIndex {
	return &HashIndex{
		buckets: make([][]hashEntry, hashIndexInitialBuckets),
	}
}

// pairHash combines the pair so that distinct small pairs rarely collide:
// a*(a+b) when a >= b, otherwise a + b*b.
func pairHash(a, b int) uint64 {
	x, y := uint64(uint32(a)), uint64(uint32(b))
	if a >= b {
		return x * (x + y)
	}
	return x + y*y
}

func (h *HashIndex) bucketOf(level, page int) int {
	return int(pairHash(level, page) % uint64(len(h.buckets)))
}

// Put inserts the mapping or updates the slot of an existing one
func (h *HashIndex) Put(level, page, slot int) {
	b := h.bucketOf(level, page)
	for i := range h.buckets[b] {
		e := &h.buckets[b][i]
		if e.level == level && e.page == page {
			e.slot = slot
			return
		}
	}

	h.buckets[b] = append(h.buckets[b], hashEntry{level: level, page: page, slot: slot})
	h.count++

	if float64(h.count)/float64(len(h.buckets)) > hashIndexMaxLoad {
		h.resize()
	}
}

// Get returns the slot mapped to (level, page)
func (h *HashIndex) Get(level, page int) (int, bool) {
	for _, e := range h.buckets[h.bucketOf(level, page)] {
		if e.level == level && e.page == page {
			return e.slot, true
		}
	}
	return 0, false
}

// Remove deletes the mapping and reports whether it existed
func (h *HashIndex) Remove(level, page int) bool {
	b := h.bucketOf(level, page)
	chain := h.buckets[b]
	for i, e := range chain {
		if e.level == level && e.page == page {
			chain[i] = chain[len(chain)-1]
			h.buckets[b] = chain[:len(chain)-1]
			h.count--
			return true
		}
	}
	return false
}

// Len returns the number of mappings
func (h *HashIndex) Len() int {
	return h.count
}

// Buckets returns the current table size
func (h *HashIndex) Buckets() int {
	return len(h.buckets)
}

func (h *HashIndex) resize() {
	old := h.buckets
	h.buckets = make([][]hashEntry, len(old)*2)
	for _, chain := range old {
		for _, e := range chain {
			b := h.bucketOf(e.level, e.page)
			h.buckets[b] = append(h.buckets[b], e)
		}
	}
}
