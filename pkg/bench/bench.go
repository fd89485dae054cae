// Package bench measures put, get and scan throughput as the stored data
// volume doubles, writing one CSV series per operation.
package bench

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/lsm"
	"github.com/dd0wney/cluso-kv/pkg/parallel"
)

const (
	MiB = 1 << 20

	// Sample sizes for the read phases at each volume
	SampleGets  = 1000
	SampleScans = 1000
	MaxScanSpan = 15
)

// Store is the subset of the database API the experiment drives. It must
// be safe for concurrent use when Experiment.Readers is above one.
type Store interface {
	Put(key, value int32) error
	Get(key int32) (int32, error)
	Scan(lo, hi int32) ([]lsm.Record, error)
}

// Experiment describes one run
type Experiment struct {
	Label    string // Suffix of the result files, e.g. "4MB"
	OutDir   string
	MaxBytes int64 // Largest data volume, doubled from 1 MiB
	Rand     *rand.Rand
	Logger   logging.Logger
	Readers  int // Goroutines sharing each read phase; 0 or 1 runs them inline
}

// Result is one measured point
type Result struct {
	MiB        float64
	Throughput float64 // MiB/s
}

// Results holds every series of a run
type Results struct {
	Put  []Result
	Get  []Result
	Scan []Result
}

// Volumes returns the record counts to load, doubling from 1 MiB of
// records up to maxBytes
func Volumes(maxBytes int64) []int {
	var volumes []int
	for size := int64(MiB); size <= maxBytes; size *= 2 {
		volumes = append(volumes, int(size/lsm.RecordSize))
	}
	return volumes
}

// Run loads sequential keys (i, i*10) up to each volume, then samples gets
// and scans over the loaded range. Put throughput is cumulative over the
// whole load so far.
func (e *Experiment) Run(store Store) (Results, error) {
	logger := e.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	rng := e.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	var results Results
	var putTotal time.Duration
	loaded := 0

	for _, volume := range Volumes(e.MaxBytes) {
		start := time.Now()
		for ; loaded < volume; loaded++ {
			if err := store.Put(int32(loaded), int32(loaded*10)); err != nil {
				return results, fmt.Errorf("put %d: %w", loaded, err)
			}
		}
		putTotal += time.Since(start)
		mib := float64(volume*lsm.RecordSize) / MiB
		results.Put = append(results.Put, Result{MiB: mib, Throughput: throughput(mib, putTotal)})

		elapsed, err := e.sample(rng, SampleGets, func(r *rand.Rand) error {
			key := int32(r.Intn(volume + 1))
			if _, err := store.Get(key); err != nil && !lsm.IsAbsent(err) {
				return fmt.Errorf("get %d: %w", key, err)
			}
			return nil
		})
		if err != nil {
			return results, err
		}
		results.Get = append(results.Get, Result{MiB: mib, Throughput: sampleThroughput(SampleGets, elapsed)})

		elapsed, err = e.sample(rng, SampleScans, func(r *rand.Rand) error {
			key := int32(r.Intn(volume + 1))
			span := int32(r.Intn(MaxScanSpan + 1))
			if _, err := store.Scan(key, key+span); err != nil {
				return fmt.Errorf("scan %d: %w", key, err)
			}
			return nil
		})
		if err != nil {
			return results, err
		}
		results.Scan = append(results.Scan, Result{MiB: mib, Throughput: sampleThroughput(SampleScans, elapsed)})

		logger.Info("volume measured",
			logging.Count(volume),
			logging.Float64("put_mib_s", results.Put[len(results.Put)-1].Throughput),
			logging.Float64("get_mib_s", results.Get[len(results.Get)-1].Throughput),
			logging.Float64("scan_mib_s", results.Scan[len(results.Scan)-1].Throughput))

		if err := e.appendAll(results); err != nil {
			return results, err
		}
	}
	return results, nil
}

// sample runs op n times and returns the wall time taken. With Readers set
// the operations are split across a worker pool, each worker drawing from
// its own generator seeded from rng.
func (e *Experiment) sample(rng *rand.Rand, n int, op func(*rand.Rand) error) (time.Duration, error) {
	if e.Readers <= 1 {
		start := time.Now()
		for i := 0; i < n; i++ {
			if err := op(rng); err != nil {
				return 0, err
			}
		}
		return time.Since(start), nil
	}

	pool, err := parallel.NewWorkerPool(e.Readers, e.Logger)
	if err != nil {
		return 0, err
	}

	var (
		mu       sync.Mutex
		firstErr error
	)
	seeds := make([]int64, e.Readers)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	start := time.Now()
	for w := 0; w < e.Readers; w++ {
		share := n / e.Readers
		if w < n%e.Readers {
			share++
		}
		r := rand.New(rand.NewSource(seeds[w]))
		pool.Submit(func() {
			for i := 0; i < share; i++ {
				if err := op(r); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		})
	}
	pool.Wait()
	elapsed := time.Since(start)

	if panics := pool.Panics(); panics > 0 && firstErr == nil {
		firstErr = fmt.Errorf("%d read workers panicked", panics)
	}
	return elapsed, firstErr
}

// appendAll appends the newest point of each series to its file
func (e *Experiment) appendAll(results Results) error {
	series := []struct {
		op     string
		points []Result
	}{
		{"put", results.Put},
		{"get", results.Get},
		{"scan", results.Scan},
	}
	for _, s := range series {
		last := s.points[len(s.points)-1]
		if err := e.appendResult(s.op, last); err != nil {
			return err
		}
	}
	return nil
}

// ResultPath returns the CSV path for an operation
func (e *Experiment) ResultPath(op string) string {
	return filepath.Join(e.OutDir, fmt.Sprintf("%s_results_%s.csv", op, e.Label))
}

func (e *Experiment) appendResult(op string, r Result) error {
	f, err := os.OpenFile(e.ResultPath(op), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s results: %w", op, err)
	}
	if _, err := fmt.Fprintf(f, "%g,%g\n", r.MiB, r.Throughput); err != nil {
		f.Close()
		return fmt.Errorf("write %s results: %w", op, err)
	}
	return f.Close()
}

func throughput(mib float64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return mib / d.Seconds()
}

// sampleThroughput converts n operations on single records to MiB/s
func sampleThroughput(n int, d time.Duration) float64 {
	return throughput(float64(n*lsm.RecordSize)/MiB, d)
}
