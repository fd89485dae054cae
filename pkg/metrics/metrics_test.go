package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	if r.OperationsTotal == nil {
		t.Error("OperationsTotal not initialized")
	}
	if r.MergesTotal == nil {
		t.Error("MergesTotal not initialized")
	}
	if r.CacheRequestsTotal == nil {
		t.Error("CacheRequestsTotal not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r1 := DefaultRegistry()
	r2 := DefaultRegistry()

	if r1 != r2 {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordOperation(t *testing.T) {
	r := NewRegistry()

	r.RecordOperation("put", "success", 10*time.Microsecond)
	r.RecordOperation("put", "success", 20*time.Microsecond)
	r.RecordOperation("put", "error", 5*time.Microsecond)

	success, err := r.OperationsTotal.GetMetricWithLabelValues("put", "success")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	if got := counterValue(t, success); got != 2 {
		t.Errorf("Success counter = %v, want 2", got)
	}

	failed, err := r.OperationsTotal.GetMetricWithLabelValues("put", "error")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	if got := counterValue(t, failed); got != 1 {
		t.Errorf("Error counter = %v, want 1", got)
	}
}

func TestCompactionMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordFlush()
	r.RecordFlush()
	r.RecordMerge("cascaded", time.Millisecond)
	r.RecordMerge("installed", 2*time.Millisecond)
	r.SetMaxLevel(3)
	r.SetLevelBytes(2, 8192)

	if got := counterValue(t, r.FlushesTotal); got != 2 {
		t.Errorf("FlushesTotal = %v, want 2", got)
	}
	if got := counterValue(t, r.MergesTotal.WithLabelValues("installed")); got != 1 {
		t.Errorf("installed merges = %v, want 1", got)
	}
	if got := gaugeValue(t, r.MaxLevel); got != 3 {
		t.Errorf("MaxLevel = %v, want 3", got)
	}
	if got := gaugeValue(t, r.LevelBytes.WithLabelValues("2")); got != 8192 {
		t.Errorf("LevelBytes{2} = %v, want 8192", got)
	}
}

func TestCacheMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordCacheHit()
	r.RecordCacheMiss()
	r.RecordCacheMiss()
	r.RecordCacheEviction()
	r.RecordBloomSkip()

	if got := counterValue(t, r.CacheRequestsTotal.WithLabelValues("miss")); got != 2 {
		t.Errorf("cache misses = %v, want 2", got)
	}
	if got := counterValue(t, r.CacheEvictionsTotal); got != 1 {
		t.Errorf("evictions = %v, want 1", got)
	}
	if got := counterValue(t, r.BloomSkipsTotal); got != 1 {
		t.Errorf("bloom skips = %v, want 1", got)
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry

	// None of these may panic
	r.RecordOperation("get", "success", time.Millisecond)
	r.SetMemtableBytes(64)
	r.RecordFlush()
	r.RecordMerge("failed", time.Millisecond)
	r.SetMaxLevel(1)
	r.SetLevelBytes(1, 0)
	r.RecordCacheHit()
	r.RecordCacheMiss()
	r.RecordCacheEviction()
	r.RecordBloomSkip()
	r.RecordWALSync(1, 30)
}

func TestWALMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordWALSync(1, 30)
	r.RecordWALSync(16, 100)

	if got := counterValue(t, r.WALSyncsTotal); got != 2 {
		t.Errorf("WAL syncs = %v, want 2", got)
	}
	if got := counterValue(t, r.WALBytesTotal); got != 130 {
		t.Errorf("WAL bytes = %v, want 130", got)
	}

	var metric dto.Metric
	if err := r.WALBatchEntries.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 || metric.Histogram.GetSampleSum() != 17 {
		t.Errorf("batch histogram count=%d sum=%v, want 2 and 17",
			metric.Histogram.GetSampleCount(), metric.Histogram.GetSampleSum())
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRegistry()
	r.RecordFlush()
	r.SetMemtableBytes(128)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}

	for _, name := range []string{"lsmkv_flushes_total 1", "lsmkv_memtable_bytes 128"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected exposition to contain %q", name)
		}
	}
}

func TestSystemMetrics(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name  string
		gauge prometheus.GaugeFunc
	}{
		{"UptimeSeconds", r.UptimeSeconds},
		{"GoRoutines", r.GoRoutines},
		{"MemoryAllocBytes", r.MemoryAllocBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var metric dto.Metric
			if err := tt.gauge.Write(&metric); err != nil {
				t.Fatalf("Failed to write metric: %v", err)
			}
			if metric.Gauge.GetValue() <= 0 {
				t.Errorf("%s = %v, want > 0", tt.name, metric.Gauge.GetValue())
			}
		})
	}
}
