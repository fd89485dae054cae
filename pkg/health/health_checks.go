package health

import (
	"runtime"
	"time"

	"github.com/dd0wney/cluso-kv/pkg/lsm"
)

// MinCacheLookups is how many page lookups CacheCheck waits for before it
// judges the hit rate
const MinCacheLookups = 1000

// SimpleCheck returns a check that is always healthy
func SimpleCheck(name string) Check {
	return Check{
		Name:        name,
		Status:      StatusHealthy,
		LastChecked: time.Now(),
	}
}

// StoreCheck reports on the database current returns. No open database is
// degraded, a closed one unhealthy.
func StoreCheck(current func() *lsm.DB) CheckFunc {
	return func() Check {
		check := Check{Name: "store"}

		db := current()
		if db == nil {
			check.Status = StatusDegraded
			check.Message = "No database open"
			return check
		}
		if err := db.Ping(); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			return check
		}

		stats := db.Stats()
		check.Status = StatusHealthy
		check.Message = "Open"
		check.Details = map[string]any{
			"name":          db.Name(),
			"id":            db.ID(),
			"levels":        stats.Compaction.LevelCount,
			"max_level":     stats.Compaction.MaxLevel,
			"memtable_keys": stats.MemtableKeys,
		}
		if stats.WAL != nil {
			check.Details["wal_entries"] = stats.WAL.Entries
		}
		return check
	}
}

// CacheCheck degrades when the page cache hit rate falls below minHitRate
// once enough lookups have been made to judge it
func CacheCheck(current func() *lsm.DB, minHitRate float64) CheckFunc {
	return func() Check {
		check := Check{Name: "page_cache", Status: StatusHealthy}

		db := current()
		if db == nil || db.Ping() != nil {
			check.Message = "No database open"
			return check
		}

		stats := db.Stats()
		lookups := stats.CacheHits + stats.CacheMisses
		check.Details = map[string]any{
			"hits":      stats.CacheHits,
			"misses":    stats.CacheMisses,
			"evictions": stats.CacheEvictions,
			"hit_rate":  stats.CacheHitRate,
		}

		switch {
		case lookups < MinCacheLookups:
			check.Message = "Warming up"
		case stats.CacheHitRate < minHitRate:
			check.Status = StatusDegraded
			check.Message = "Low hit rate"
		default:
			check.Message = "Hit rate normal"
		}
		return check
	}
}

// MemoryCheck degrades when allocated heap exceeds 90% of memory obtained
// from the OS
func MemoryCheck(getUsage func() (alloc, sys uint64)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "memory",
			Details: make(map[string]any),
		}

		alloc, sys := getUsage()
		check.Details["alloc_bytes"] = alloc
		check.Details["sys_bytes"] = sys

		usagePercent := 0.0
		if sys > 0 {
			usagePercent = float64(alloc) / float64(sys) * 100
		}

		if usagePercent > 90 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}

		return check
	}
}

// RuntimeMemory reads heap usage from the Go runtime
func RuntimeMemory() (alloc, sys uint64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc, m.Sys
}
