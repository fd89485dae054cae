package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCacheMetrics() {
	r.CacheRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsmkv_cache_requests_total",
			Help: "Page cache lookups by result",
		},
		[]string{"result"},
	)

	r.CacheEvictionsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "lsmkv_cache_evictions_total",
			Help: "Pages evicted by the clock hand",
		},
	)

	r.BloomSkipsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "lsmkv_bloom_skips_total",
			Help: "Point lookups answered by a Bloom filter without reading a page",
		},
	)
}
