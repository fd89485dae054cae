package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics of one store instance
type Registry struct {
	// Operation Metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	MemtableBytes     prometheus.Gauge

	// Compaction Metrics
	FlushesTotal  prometheus.Counter
	MergesTotal   *prometheus.CounterVec
	MergeDuration prometheus.Histogram
	MaxLevel      prometheus.Gauge
	LevelBytes    *prometheus.GaugeVec

	// Page Cache Metrics
	CacheRequestsTotal  *prometheus.CounterVec
	CacheEvictionsTotal prometheus.Counter
	BloomSkipsTotal     prometheus.Counter

	// WAL Metrics
	WALSyncsTotal   prometheus.Counter
	WALBatchEntries prometheus.Histogram
	WALBytesTotal   prometheus.Counter

	// Process Metrics
	UptimeSeconds    prometheus.GaugeFunc
	GoRoutines       prometheus.GaugeFunc
	MemoryAllocBytes prometheus.GaugeFunc

	registry *prometheus.Registry
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initStorageMetrics()
	r.initCompactionMetrics()
	r.initCacheMetrics()
	r.initWALMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
