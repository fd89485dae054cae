package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/lsm"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
	"github.com/dd0wney/cluso-kv/pkg/validation"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lsmkv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "./SSTs", cfg.DataDir)
	assert.Equal(t, 4*1024*1024, cfg.MemtableBytes)
	assert.Equal(t, 4096, cfg.PageSize)
	assert.Equal(t, 1024, cfg.BufferSlots)
	assert.Equal(t, 10, cfg.BitsPerEntry)
	assert.Equal(t, 3, cfg.HashFunctions)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, "off", cfg.WAL.Mode)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/lsmkv
memtable_bytes: 1048576
page_size: 8192
buffer_slots: 256
bits_per_entry: 12
hash_functions: 4
log_level: debug
metrics_addr: ":9100"
wal:
  mode: batched
  batch_size: 64
  flush_interval: 5ms
  compression: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/lsmkv", cfg.DataDir)
	assert.Equal(t, 1048576, cfg.MemtableBytes)
	assert.Equal(t, 8192, cfg.PageSize)
	assert.Equal(t, 256, cfg.BufferSlots)
	assert.Equal(t, 12, cfg.BitsPerEntry)
	assert.Equal(t, 4, cfg.HashFunctions)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.Equal(t, WALConfig{Mode: "batched", BatchSize: 64, FlushInterval: 5 * time.Millisecond, Compression: true}, cfg.WAL)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "page_size: 512\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.PageSize)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, DefaultMemtableBytes, cfg.MemtableBytes)
	assert.Equal(t, lsm.DefaultHashCount, cfg.HashFunctions)
	assert.Equal(t, Default().WAL, cfg.WAL)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		errMsg string
	}{
		{"ragged page size", "page_size: 4095\n", "PageSize"},
		{"too many hashes", "hash_functions: 9\n", "HashFunctions"},
		{"unknown log level", "log_level: loud\n", "LogLevel"},
		{"memtable below page", "memtable_bytes: 64\npage_size: 4096\n", "MemtableBytes"},
		{"malformed yaml", "page_size: [\n", "parse config"},
		{"unknown wal mode", "wal:\n  mode: lazy\n", "Mode"},
		{"negative wal batch", "wal:\n  batch_size: -4\n", "BatchSize"},
		{"negative wal interval", "wal:\n  flush_interval: -1ms\n", "FlushInterval"},
		{"too many filter bits", "bits_per_entry: 65\n", "BitsPerEntry"},
		{"metrics addr without port", "metrics_addr: localhost\n", "MetricsAddr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_ReportsEveryField(t *testing.T) {
	cfg := Default()
	cfg.DataDir = ""
	cfg.BufferSlots = -1
	cfg.PageSize = 100
	cfg.LogLevel = "loud"
	cfg.MetricsAddr = ":9100"

	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"Config.DataDir", "Config.BufferSlots", "Config.PageSize", "LogLevel"} {
		assert.Contains(t, err.Error(), field)
	}
	assert.NotContains(t, err.Error(), "MetricsAddr")

	var fe *validation.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "DataDir", fe.Field)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.PageSize = 64
	cfg.MemtableBytes = 128

	reg := metrics.NewRegistry()
	opts := cfg.Options(logging.NewNopLogger(), reg)

	assert.Equal(t, cfg.DataDir, opts.DataDir)
	assert.Equal(t, 64, opts.PageSize)
	assert.Equal(t, 128, opts.MemtableBytes)
	assert.Same(t, reg, opts.Metrics)
	require.NoError(t, opts.Validate())

	db, err := lsm.Open("fromconfig", opts)
	require.NoError(t, err)
	require.NoError(t, db.Put(1, 2))
	require.NoError(t, db.Close())
}

func TestOptions_WAL(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.WAL.Mode = "sync"
	cfg.WAL.Compression = true

	opts := cfg.Options(logging.NewNopLogger(), nil)
	assert.Equal(t, lsm.WALSync, opts.WALMode)
	assert.True(t, opts.WALCompression)

	db, err := lsm.Open("logged", opts)
	require.NoError(t, err)
	require.NoError(t, db.Put(7, 70))
	stats := db.Stats()
	require.NotNil(t, stats.WAL)
	assert.Equal(t, uint64(1), stats.WAL.Entries)
	require.NoError(t, db.Close())
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "off"
	_, isNop := cfg.Logger().(logging.NopLogger)
	assert.True(t, isNop)

	cfg.LogLevel = "error"
	assert.Equal(t, logging.ErrorLevel, cfg.Logger().GetLevel())
}
