package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initWALMetrics() {
	r.WALSyncsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "lsmkv_wal_syncs_total",
			Help: "Total number of WAL frames written and synced",
		},
	)

	r.WALBatchEntries = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lsmkv_wal_batch_entries",
			Help:    "Entries per WAL frame",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	r.WALBytesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "lsmkv_wal_bytes_total",
			Help: "Total bytes written to the WAL",
		},
	)
}
