package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dd0wney/cluso-kv/pkg/bench"
	"github.com/dd0wney/cluso-kv/pkg/config"
	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/lsm"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
)

func main() {
	memtableMB := flag.Int("memtable-mb", 1, "Memtable size in MiB")
	maxMB := flag.Int("max-mb", 1024, "Largest data volume in MiB")
	dataDir := flag.String("data", "./SSTs", "Data directory")
	outDir := flag.String("out", ".", "Directory for the result CSV files")
	logLevel := flag.String("log-level", "info", "debug, info, warn, error or off")
	walMode := flag.String("wal", "off", "Write-ahead log mode: off, sync or batched")
	readers := flag.Int("readers", 1, "Goroutines sharing each get and scan phase")
	flag.Parse()

	logger := logging.New(os.Stderr, *logLevel)

	fmt.Printf("LSM Key-Value Store - Throughput Experiment\n")
	fmt.Printf("============================================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Memtable: %d MiB\n", *memtableMB)
	fmt.Printf("  WAL: %s\n", *walMode)
	fmt.Printf("  Readers: %d\n", *readers)
	fmt.Printf("  Volumes: 1 MiB .. %d MiB\n\n", *maxMB)

	cfg := config.Default()
	cfg.DataDir = *dataDir
	cfg.MemtableBytes = *memtableMB * bench.MiB
	cfg.WAL.Mode = *walMode
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	label := fmt.Sprintf("%dMB", *memtableMB)
	name := "database" + label

	// Start from an empty database every run
	if err := os.RemoveAll(filepath.Join(*dataDir, name)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to clear %s: %v\n", name, err)
		os.Exit(1)
	}
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", *outDir, err)
		os.Exit(1)
	}

	db, err := lsm.Open(name, cfg.Options(logger, metrics.DefaultRegistry()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}

	exp := &bench.Experiment{
		Label:    label,
		OutDir:   *outDir,
		MaxBytes: int64(*maxMB) * bench.MiB,
		Logger:   logger,
		Readers:  *readers,
	}
	results, runErr := exp.Run(db)

	for i := range results.Scan {
		fmt.Printf("  %6.0f MiB  put %8.2f MiB/s  get %8.2f MiB/s  scan %8.2f MiB/s\n",
			results.Put[i].MiB, results.Put[i].Throughput, results.Get[i].Throughput, results.Scan[i].Throughput)
	}

	fmt.Printf("\nFinal Statistics\n")
	fmt.Printf("================\n")
	db.PrintStats(os.Stdout)

	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v\n", err)
		os.Exit(1)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Experiment failed: %v\n", runErr)
		os.Exit(1)
	}
	fmt.Printf("\nResults written to %s\n", *outDir)
}
