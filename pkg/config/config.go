// Package config loads store settings from YAML and maps them onto
// lsm.Options.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/lsm"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
	"github.com/dd0wney/cluso-kv/pkg/validation"
)

// Default values
const (
	DefaultDataDir       = "./SSTs"
	DefaultMemtableBytes = 4 * 1024 * 1024
	DefaultLogLevel      = "info"
)

// Config represents the store configuration file. Enumerations are checked
// by struct tags, numeric bounds by Validate so that every failure is
// reported at once.
type Config struct {
	DataDir       string `yaml:"data_dir"`
	MemtableBytes int    `yaml:"memtable_bytes"`
	PageSize      int    `yaml:"page_size"`
	BufferSlots   int    `yaml:"buffer_slots"`
	BitsPerEntry  int    `yaml:"bits_per_entry"`
	HashFunctions int    `yaml:"hash_functions"`
	LogLevel      string `yaml:"log_level" validate:"oneof=debug info warn error off"`
	MetricsAddr   string `yaml:"metrics_addr"` // Empty disables the endpoint

	WAL WALConfig `yaml:"wal"`
}

// WALConfig controls the write-ahead log
type WALConfig struct {
	Mode          string        `yaml:"mode" validate:"oneof=off sync batched"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Compression   bool          `yaml:"compression"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		DataDir:       DefaultDataDir,
		MemtableBytes: DefaultMemtableBytes,
		PageSize:      lsm.DefaultPageSize,
		BufferSlots:   lsm.DefaultBufferSlots,
		BitsPerEntry:  lsm.DefaultBitsPerEntry,
		HashFunctions: lsm.DefaultHashCount,
		LogLevel:      DefaultLogLevel,
		WAL: WALConfig{
			Mode:          string(lsm.WALOff),
			BatchSize:     lsm.DefaultWALBatchSize,
			FlushInterval: lsm.DefaultWALFlushInterval,
		},
	}
}

// Load reads a YAML file. Fields it omits keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.FillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FillDefaults replaces zero fields with defaults
func (c *Config) FillDefaults() {
	def := Default()
	c.DataDir = validation.DefaultOr(c.DataDir, def.DataDir)
	c.MemtableBytes = validation.DefaultOr(c.MemtableBytes, def.MemtableBytes)
	c.PageSize = validation.DefaultOr(c.PageSize, def.PageSize)
	c.BufferSlots = validation.DefaultOr(c.BufferSlots, def.BufferSlots)
	c.BitsPerEntry = validation.DefaultOr(c.BitsPerEntry, def.BitsPerEntry)
	c.HashFunctions = validation.DefaultOr(c.HashFunctions, def.HashFunctions)
	c.LogLevel = validation.DefaultOr(c.LogLevel, def.LogLevel)
	c.WAL.Mode = validation.DefaultOr(c.WAL.Mode, def.WAL.Mode)
	c.WAL.BatchSize = validation.DefaultOr(c.WAL.BatchSize, def.WAL.BatchSize)
	c.WAL.FlushInterval = validation.DefaultOr(c.WAL.FlushInterval, def.WAL.FlushInterval)
}

// Validate checks field ranges and the page layout
func (c *Config) Validate() error {
	structErr := validation.Struct(c)

	fieldErr := validation.NewConfigValidator("Config").
		Required("DataDir", c.DataDir).
		MinInt("MemtableBytes", c.MemtableBytes, lsm.RecordSize).
		MultipleOf("PageSize", c.PageSize, lsm.RecordSize).
		MinInt("BufferSlots", c.BufferSlots, 1).
		RangeInt("BitsPerEntry", c.BitsPerEntry, 1, 64).
		RangeInt("HashFunctions", c.HashFunctions, 1, lsm.MaxHashFunctions).
		Custom("MemtableBytes", func() error {
			if c.MemtableBytes < c.PageSize {
				return fmt.Errorf("%d bytes is smaller than one %d byte page", c.MemtableBytes, c.PageSize)
			}
			return nil
		}).
		MinInt("WAL.BatchSize", c.WAL.BatchSize, 1).
		Custom("WAL.FlushInterval", func() error {
			if c.WAL.FlushInterval <= 0 {
				return fmt.Errorf("interval %v is not positive", c.WAL.FlushInterval)
			}
			return nil
		}).
		When(c.MetricsAddr != "", func(v *validation.ConfigValidator) {
			v.Custom("MetricsAddr", func() error {
				_, _, err := net.SplitHostPort(c.MetricsAddr)
				return err
			})
		}).
		Validate()

	if err := errors.Join(structErr, fieldErr); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Options maps the configuration onto store options
func (c *Config) Options(logger logging.Logger, reg *metrics.Registry) lsm.Options {
	return lsm.Options{
		DataDir:       c.DataDir,
		MemtableBytes: c.MemtableBytes,
		PageSize:      c.PageSize,
		BufferSlots:   c.BufferSlots,
		BitsPerEntry:  c.BitsPerEntry,
		HashFunctions: c.HashFunctions,

		WALMode:          lsm.WALMode(c.WAL.Mode),
		WALBatchSize:     c.WAL.BatchSize,
		WALFlushInterval: c.WAL.FlushInterval,
		WALCompression:   c.WAL.Compression,

		Logger:  logger,
		Metrics: reg,
	}
}

// Logger builds the logger the configuration asks for
func (c *Config) Logger() logging.Logger {
	return logging.New(os.Stderr, c.LogLevel)
}
