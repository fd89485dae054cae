package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Record helpers accept a nil receiver so components can run without metrics.

// RecordOperation records a database operation
func (r *Registry) RecordOperation(operation, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.OperationsTotal.WithLabelValues(operation, status).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetMemtableBytes updates the active memtable size
func (r *Registry) SetMemtableBytes(n int) {
	if r == nil {
		return
	}
	r.MemtableBytes.Set(float64(n))
}

// RecordFlush counts a memtable flush
func (r *Registry) RecordFlush() {
	if r == nil {
		return
	}
	r.FlushesTotal.Inc()
}

// RecordMerge records one two-way merge with its outcome
// ("installed", "cascaded" or "failed")
func (r *Registry) RecordMerge(outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.MergesTotal.WithLabelValues(outcome).Inc()
	r.MergeDuration.Observe(duration.Seconds())
}

// SetMaxLevel updates the deepest occupied level
func (r *Registry) SetMaxLevel(level int) {
	if r == nil {
		return
	}
	r.MaxLevel.Set(float64(level))
}

// SetLevelBytes updates the size of a level's file; 0 marks it vacant
func (r *Registry) SetLevelBytes(level int, size int64) {
	if r == nil {
		return
	}
	r.LevelBytes.WithLabelValues(strconv.Itoa(level)).Set(float64(size))
}

// RecordCacheHit counts a page served from the cache
func (r *Registry) RecordCacheHit() {
	if r == nil {
		return
	}
	r.CacheRequestsTotal.WithLabelValues("hit").Inc()
}

// RecordCacheMiss counts a page read from disk
func (r *Registry) RecordCacheMiss() {
	if r == nil {
		return
	}
	r.CacheRequestsTotal.WithLabelValues("miss").Inc()
}

// RecordCacheEviction counts a page evicted by the clock hand
func (r *Registry) RecordCacheEviction() {
	if r == nil {
		return
	}
	r.CacheEvictionsTotal.Inc()
}

// RecordBloomSkip counts a lookup rejected by a Bloom filter
func (r *Registry) RecordBloomSkip() {
	if r == nil {
		return
	}
	r.BloomSkipsTotal.Inc()
}

// RecordWALSync records one synced WAL frame
func (r *Registry) RecordWALSync(entries, bytes int) {
	if r == nil {
		return
	}
	r.WALSyncsTotal.Inc()
	r.WALBatchEntries.Observe(float64(entries))
	r.WALBytesTotal.Add(float64(bytes))
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
