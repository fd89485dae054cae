package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// initSystemMetrics registers process gauges that are sampled on scrape
func (r *Registry) initSystemMetrics() {
	started := time.Now()

	r.UptimeSeconds = promauto.With(r.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lsmkv_uptime_seconds",
			Help: "Time since the metrics registry was created in seconds",
		},
		func() float64 { return time.Since(started).Seconds() },
	)

	r.GoRoutines = promauto.With(r.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lsmkv_goroutines",
			Help: "Number of goroutines",
		},
		func() float64 { return float64(runtime.NumGoroutine()) },
	)

	r.MemoryAllocBytes = promauto.With(r.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lsmkv_memory_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
		func() float64 {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			return float64(ms.HeapAlloc)
		},
	)
}
