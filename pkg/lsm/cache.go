package lsm

import (
	"sync"

	"github.com/dd0wney/cluso-kv/pkg/metrics"
)

// DefaultBufferSlots is the default page cache capacity in pages
const DefaultBufferSlots = 1024

type pageTag struct {
	level int
	page  int
}

// cacheSlot owns one page buffer and the records decoded from it
type cacheSlot struct {
	buf        []byte
	records    []Record
	n          int
	tag        pageTag
	bound      bool // Whether tag names a cached page
	referenced bool
}

// PageCache is a fixed-capacity cache of SSTable pages keyed by
// (level, page) and evicted with the clock algorithm. Its mutex is the
// single point of mutual exclusion for page reads across all files.
type PageCache struct {
	mu    sync.Mutex
	slots []cacheSlot
	index *HashIndex
	hand  int

	metrics *metrics.Registry

	// Statistics
	hits      int64
	misses    int64
	evictions int64
}

// NewPageCache creates a cache of capacity pages of pageSize bytes each
func NewPageCache(capacity, pageSize int, reg *metrics.Registry) *PageCache {
	slots := make([]cacheSlot, capacity)
	for i := range slots {
		slots[i] = cacheSlot{
			buf:     make([]byte, pageSize),
			records: make([]Record, 0, pageSize/RecordSize),
		}
	}
	return &PageCache{
		slots:   slots,
		index:   NewHashIndex(),
		metrics: reg,
	}
}

// Fetch lends the decoded records of page to fn. The slice is only valid
// until fn returns; the slot may be evicted and reused afterwards.
func (pc *PageCache) Fetch(sst *SSTable, page int, fn func(records []Record) error) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if slot, ok := pc.index.Get(sst.Level(), page); ok {
		pc.hits++
		pc.metrics.RecordCacheHit()
		s := &pc.slots[slot]
		s.referenced = true
		return fn(s.records[:s.n])
	}

	pc.misses++
	pc.metrics.RecordCacheMiss()

	slot := pc.findFreeSlot()
	if slot < 0 {
		slot = pc.clockEvict()
	}

	s := &pc.slots[slot]
	n, err := sst.ReadPage(page, s.buf)
	if err != nil {
		return err
	}
	s.records = decodeRecords(s.records, s.buf, n)
	s.n = n
	s.tag = pageTag{level: sst.Level(), page: page}
	s.bound = true
	s.referenced = true
	pc.index.Put(sst.Level(), page, slot)

	return fn(s.records[:s.n])
}

func (pc *PageCache) findFreeSlot() int {
	for i := range pc.slots {
		if !pc.slots[i].bound {
			return i
		}
	}
	return -1
}

// clockEvict advances the hand, giving every referenced slot a second
// chance, and frees the first unreferenced slot it reaches
func (pc *PageCache) clockEvict() int {
	for {
		s := &pc.slots[pc.hand]
		if !s.referenced {
			victim := pc.hand
			pc.unbind(victim)
			pc.hand = (pc.hand + 1) % len(pc.slots)
			pc.evictions++
			pc.metrics.RecordCacheEviction()
			return victim
		}
		s.referenced = false
		pc.hand = (pc.hand + 1) % len(pc.slots)
	}
}

func (pc *PageCache) unbind(slot int) {
	s := &pc.slots[slot]
	if s.bound {
		pc.index.Remove(s.tag.level, s.tag.page)
	}
	s.tag = pageTag{}
	s.bound = false
	s.referenced = false
	s.n = 0
}

// Invalidate drops page of level from the cache if present
func (pc *PageCache) Invalidate(level, page int) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if slot, ok := pc.index.Get(level, page); ok {
		pc.unbind(slot)
	}
}

// InvalidateTable drops every page of sst. It must run before the file is
// removed so that no mapping outlives it.
func (pc *PageCache) InvalidateTable(sst *SSTable) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	for page := 0; page < sst.NumPages(); page++ {
		if slot, ok := pc.index.Get(sst.Level(), page); ok {
			pc.unbind(slot)
		}
	}
}

// Contains reports whether page of level is cached
func (pc *PageCache) Contains(level, page int) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	_, ok := pc.index.Get(level, page)
	return ok
}

// SlotOf returns the slot holding page of level and its reference bit
func (pc *PageCache) SlotOf(level, page int) (slot int, referenced bool, ok bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	slot, ok = pc.index.Get(level, page)
	if !ok {
		return 0, false, false
	}
	return slot, pc.slots[slot].referenced, true
}

// ReferencedCount returns how many slots have their reference bit set
func (pc *PageCache) ReferencedCount() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	count := 0
	for i := range pc.slots {
		if pc.slots[i].referenced {
			count++
		}
	}
	return count
}

// Len returns the number of cached pages
func (pc *PageCache) Len() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.index.Len()
}

// Capacity returns the number of slots
func (pc *PageCache) Capacity() int {
	return len(pc.slots)
}

// Stats returns cache statistics
func (pc *PageCache) Stats() (hits, misses, evictions int64, hitRate float64) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	hits = pc.hits
	misses = pc.misses
	evictions = pc.evictions
	total := hits + misses
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return
}
