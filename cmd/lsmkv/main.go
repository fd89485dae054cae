package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dd0wney/cluso-kv/pkg/config"
	"github.com/dd0wney/cluso-kv/pkg/health"
	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
	"github.com/dd0wney/cluso-kv/pkg/shell"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	dataDir := flag.String("data", "", "Directory holding one subdirectory per database (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Serve /metrics, /health, /ready and /live on this address, e.g. :9100 (overrides config)")
	logLevel := flag.String("log-level", "", "debug, info, warn, error or off (overrides config)")
	walMode := flag.String("wal", "", "Write-ahead log mode: off, sync or batched (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *walMode != "" {
		cfg.WAL.Mode = *walMode
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Logger()
	registry := metrics.DefaultRegistry()
	sh := shell.New(os.Stdin, os.Stdout, cfg.Options(logger, registry))

	if cfg.MetricsAddr != "" {
		checker := health.NewHealthChecker()
		checker.RegisterCheck("store", health.StoreCheck(sh.DB))
		checker.RegisterCheck("page_cache", health.CacheCheck(sh.DB, 0.5))
		checker.RegisterCheck("memory", health.MemoryCheck(health.RuntimeMemory))
		checker.RegisterReadinessCheck("store", health.StoreCheck(sh.DB))
		checker.RegisterLivenessCheck("process", func() health.Check { return health.SimpleCheck("process") })

		mux := http.NewServeMux()
		mux.Handle("/metrics", registry.Handler())
		checker.Register(mux)

		server := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", logging.String("addr", cfg.MetricsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", logging.Error(err))
			}
		}()
		defer server.Close()
	}

	sh.Banner()
	if err := sh.Run(); err != nil {
		logger.Error("shell exited with error", logging.Error(err))
		os.Exit(1)
	}
}
