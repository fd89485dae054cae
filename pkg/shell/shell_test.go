package shell

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-kv/pkg/lsm"
)

func testOptions(dir string) lsm.Options {
	return lsm.Options{
		DataDir:       dir,
		MemtableBytes: 8 * lsm.RecordSize,
		PageSize:      4 * lsm.RecordSize,
		BufferSlots:   8,
	}
}

// runScript feeds lines to a fresh shell and returns everything it printed
func runScript(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	var out bytes.Buffer
	sh := New(strings.NewReader(strings.Join(lines, "\n")+"\n"), &out, testOptions(dir))
	require.NoError(t, sh.Run())
	assert.Nil(t, sh.DB(), "Run must close the database")
	return out.String()
}

func TestShell_PutGet(t *testing.T) {
	out := runScript(t, t.TempDir(),
		"open demo",
		"put 1 10",
		"get 1",
		"update 1 11",
		"get 1",
		"get 2",
		"exit",
	)

	assert.Contains(t, out, "Opened demo")
	assert.Contains(t, out, "Value = 10")
	assert.Contains(t, out, "Value = 11")
	assert.Contains(t, out, "Key does not exist")
	assert.Contains(t, out, "Goodbye!")
}

func TestShell_DeleteAndScan(t *testing.T) {
	lines := []string{"open demo"}
	for k := 0; k < 20; k++ {
		lines = append(lines, "put "+strconv.Itoa(k)+" "+strconv.Itoa(k*10))
	}
	lines = append(lines, "delete 5", "get 5", "scan 3 7", "scan 100 200", "exit")

	out := runScript(t, t.TempDir(), lines...)

	assert.Contains(t, out, "Key does not exist")
	assert.Contains(t, out, "3 = 30\n4 = 40\n6 = 60\n7 = 70\n")
	assert.NotContains(t, out, "5 = 50")
	assert.Contains(t, out, "No keys in range")
}

func TestShell_UsageErrorsContinue(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    string
	}{
		{"put missing value", "put 1", "Usage: put <key> <value>"},
		{"update too many", "update 1 2 3", "Usage: update <key> <value>"},
		{"get without key", "get", "Usage: get <key>"},
		{"delete too many", "delete 1 2", "Usage: delete <key>"},
		{"scan one bound", "scan 1", "Usage: scan <low> <high>"},
		{"open without name", "open", "Usage: open <name>"},
		{"close with args", "close now", "Usage: close"},
		{"non numeric key", "get abc", `"abc" is not a 32-bit integer`},
		{"overflowing key", "get 4294967296", "is not a 32-bit integer"},
		{"unknown command", "frobnicate", "Unknown command: frobnicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := runScript(t, t.TempDir(), tt.command, "help")
			assert.Contains(t, out, tt.want)
			assert.Contains(t, out, "Available Commands", "loop must continue after an error")
		})
	}
}

func TestShell_NoOpenDatabase(t *testing.T) {
	for _, cmd := range []string{"put 1 2", "get 1", "delete 1", "scan 1 2", "close", "stats"} {
		t.Run(cmd, func(t *testing.T) {
			out := runScript(t, t.TempDir(), cmd)
			assert.Contains(t, out, "No database is open")
		})
	}
}

func TestShell_ReservedValue(t *testing.T) {
	out := runScript(t, t.TempDir(),
		"open demo",
		"put 1 -2147483648",
		"get 1",
	)

	assert.Contains(t, out, "is reserved")
	assert.Contains(t, out, "Key does not exist")
}

func TestShell_OpenValidation(t *testing.T) {
	dir := t.TempDir()
	out := runScript(t, dir,
		"open ..",
		"open a/b",
		"open first",
		"open second",
	)

	assert.Contains(t, out, "not a valid database name")
	assert.Contains(t, out, "Database first is already open")
	assert.DirExists(t, filepath.Join(dir, "first"))
	assert.NoDirExists(t, filepath.Join(dir, "second"))
}

func TestShell_CloseAndReopen(t *testing.T) {
	dir := t.TempDir()
	out := runScript(t, dir,
		"open demo",
		"put 7 70",
		"close",
		"get 7",
		"open demo",
		"get 7",
	)

	assert.Contains(t, out, "Closed demo")
	assert.Contains(t, out, "No database is open")
	assert.Contains(t, out, "Value = 70")

	entries, err := os.ReadDir(filepath.Join(dir, "demo"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "close must flush the memtable to a level file")
}

func TestShell_CloseRetryAfterFailure(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	sh := New(strings.NewReader(""), &out, testOptions(dir))

	require.True(t, sh.Execute("open demo"))
	require.True(t, sh.Execute("put 7 70"))

	require.NoError(t, os.RemoveAll(filepath.Join(dir, "demo")))
	require.True(t, sh.Execute("close"))
	assert.Contains(t, out.String(), "Failed to close demo")
	require.NotNil(t, sh.DB(), "a failed close must keep the database")

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "demo"), 0755))
	require.True(t, sh.Execute("close"))
	assert.Contains(t, out.String(), "Closed demo")
	assert.Nil(t, sh.DB())

	db, err := lsm.Open("demo", testOptions(dir))
	require.NoError(t, err)
	defer db.Close()
	v, err := db.Get(7)
	require.NoError(t, err)
	assert.Equal(t, int32(70), v)
}

func TestShell_CaseInsensitiveCommands(t *testing.T) {
	out := runScript(t, t.TempDir(),
		"OPEN demo",
		"Put 3 30",
		"GET 3",
		"H",
		"QUIT",
		"get 3",
	)

	assert.Contains(t, out, "Value = 30")
	assert.Contains(t, out, "Available Commands")
	assert.Equal(t, 1, strings.Count(out, "Value = 30"), "commands after quit must not run")
}

func TestShell_Stats(t *testing.T) {
	out := runScript(t, t.TempDir(), "open demo", "put 1 1", "stats")

	assert.Contains(t, out, "Database demo (")
	assert.Contains(t, out, "Puts: 1")
}

func TestShell_EndOfInputClosesDatabase(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	sh := New(strings.NewReader("open demo\nput 1 100"), &out, testOptions(dir))
	require.NoError(t, sh.Run())

	db, err := lsm.Open("demo", testOptions(dir))
	require.NoError(t, err)
	defer db.Close()

	v, err := db.Get(1)
	require.NoError(t, err)
	assert.Equal(t, int32(100), v)
}

func TestShell_ExecuteBlankLine(t *testing.T) {
	var out bytes.Buffer
	sh := New(strings.NewReader(""), &out, testOptions(t.TempDir()))
	assert.True(t, sh.Execute("   "))
	assert.Empty(t, out.String())
}
