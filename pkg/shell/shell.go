// Package shell implements the interactive line-oriented front end to the
// store. Every user error is reported and the loop keeps reading.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/lsm"
	"github.com/dd0wney/cluso-kv/pkg/validation"
)

const prompt = "lsmkv> "

// Shell reads commands from in and writes results to out. At most one
// database is open at a time.
type Shell struct {
	scanner *bufio.Scanner
	out     io.Writer
	opts    lsm.Options
	logger  logging.Logger

	// mu guards db for readers outside the command loop
	mu sync.RWMutex
	db *lsm.DB
}

// New creates a shell. opts is the template used for every open command.
func New(in io.Reader, out io.Writer, opts lsm.Options) *Shell {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Shell{
		scanner: bufio.NewScanner(in),
		out:     out,
		opts:    opts,
		logger:  logger.With(logging.Component("shell")),
	}
}

// DB returns the open database, or nil. Safe to call from any goroutine.
func (s *Shell) DB() *lsm.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Banner prints the greeting
func (s *Shell) Banner() {
	fmt.Fprintln(s.out, bannerStyle.Render("LSM key-value store"))
	fmt.Fprintln(s.out, dimStyle.Render("Type 'help' for available commands, 'exit' to quit"))
}

// Run reads commands until exit or end of input, then closes any open
// database.
func (s *Shell) Run() error {
	for {
		fmt.Fprint(s.out, promptStyle.Render(prompt))

		if !s.scanner.Scan() {
			fmt.Fprintln(s.out)
			break
		}

		if !s.Execute(s.scanner.Text()) {
			break
		}
	}

	closeErr := s.closeDB()
	if err := s.scanner.Err(); err != nil {
		return errors.Join(fmt.Errorf("read input: %w", err), closeErr)
	}
	return closeErr
}

// Execute runs one command line. It returns false when the shell should stop.
func (s *Shell) Execute(input string) bool {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return true
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "help", "h":
		s.showHelp()

	case "exit", "quit":
		fmt.Fprintln(s.out, "Goodbye!")
		return false

	case "open":
		if len(args) != 1 {
			s.usage("open <name>")
			return true
		}
		s.open(args[0])

	case "close":
		if len(args) != 0 {
			s.usage("close")
			return true
		}
		if s.requireDB() {
			s.close()
		}

	case "put", "update":
		if len(args) != 2 {
			s.usage(command + " <key> <value>")
			return true
		}
		key, ok := s.parseInt(args[0])
		if !ok {
			return true
		}
		value, ok := s.parseInt(args[1])
		if !ok {
			return true
		}
		if s.requireDB() {
			s.put(command, key, value)
		}

	case "get":
		if len(args) != 1 {
			s.usage("get <key>")
			return true
		}
		key, ok := s.parseInt(args[0])
		if ok && s.requireDB() {
			s.get(key)
		}

	case "delete":
		if len(args) != 1 {
			s.usage("delete <key>")
			return true
		}
		key, ok := s.parseInt(args[0])
		if ok && s.requireDB() {
			s.check(s.db.Delete(key))
		}

	case "scan":
		if len(args) != 2 {
			s.usage("scan <low> <high>")
			return true
		}
		lo, ok := s.parseInt(args[0])
		if !ok {
			return true
		}
		hi, ok := s.parseInt(args[1])
		if ok && s.requireDB() {
			s.scan(lo, hi)
		}

	case "stats":
		if s.requireDB() {
			s.db.PrintStats(s.out)
		}

	default:
		s.fail(fmt.Sprintf("Unknown command: %s (type 'help' for available commands)", command))
	}

	return true
}

func (s *Shell) open(name string) {
	if s.db != nil {
		s.fail(fmt.Sprintf("Database %s is already open; close it first", s.db.Name()))
		return
	}
	if err := validation.ValidateOpenRequest(&validation.OpenRequest{Name: name}); err != nil {
		s.fail(err.Error())
		return
	}

	db, err := lsm.Open(name, s.opts)
	if err != nil {
		s.fail(fmt.Sprintf("Failed to open %s: %v", name, err))
		return
	}
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	fmt.Fprintln(s.out, okStyle.Render("Opened "+name))
}

func (s *Shell) close() {
	name := s.db.Name()
	if err := s.closeDB(); err != nil {
		s.fail(fmt.Sprintf("Failed to close %s: %v", name, err))
		return
	}
	fmt.Fprintln(s.out, okStyle.Render("Closed "+name))
}

// closeDB forgets the handle once Close succeeds. A failed Close leaves the
// database open with its unflushed writes, so close can be retried.
func (s *Shell) closeDB() error {
	db := s.DB()
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	s.mu.Lock()
	s.db = nil
	s.mu.Unlock()
	return nil
}

func (s *Shell) put(command string, key, value int32) {
	if err := validation.ValidateWriteRequest(&validation.WriteRequest{Key: key, Value: value}); err != nil {
		s.fail(err.Error())
		return
	}
	if command == "update" {
		s.check(s.db.Update(key, value))
		return
	}
	s.check(s.db.Put(key, value))
}

func (s *Shell) get(key int32) {
	value, err := s.db.Get(key)
	switch {
	case err == nil:
		fmt.Fprintf(s.out, "Value = %d\n", value)
	case lsm.IsAbsent(err):
		fmt.Fprintln(s.out, "Key does not exist")
	default:
		s.check(err)
	}
}

func (s *Shell) scan(lo, hi int32) {
	records, err := s.db.Scan(lo, hi)
	if err != nil {
		s.check(err)
		return
	}
	if len(records) == 0 {
		fmt.Fprintln(s.out, dimStyle.Render("No keys in range"))
		return
	}
	for _, r := range records {
		fmt.Fprintf(s.out, "%d = %d\n", r.Key, r.Value)
	}
}

func (s *Shell) requireDB() bool {
	if s.db == nil {
		s.fail("No database is open. Usage: open <name>")
		return false
	}
	return true
}

func (s *Shell) parseInt(arg string) (int32, bool) {
	n, err := strconv.ParseInt(arg, 10, 32)
	if err != nil {
		s.fail(fmt.Sprintf("%q is not a 32-bit integer", arg))
		return 0, false
	}
	return int32(n), true
}

func (s *Shell) check(err error) {
	if err == nil {
		return
	}
	s.logger.Warn("command failed", logging.Error(err))
	s.fail("Error: " + err.Error())
}

func (s *Shell) usage(form string) {
	s.fail("Usage: " + form)
}

func (s *Shell) fail(msg string) {
	fmt.Fprintln(s.out, errorStyle.Render(msg))
}

func (s *Shell) showHelp() {
	help := `Available Commands:
  open <name>            Open (or create) a database
  close                  Flush and close the open database
  put <key> <value>      Insert or overwrite a key
  update <key> <value>   Same as put
  get <key>              Print the value of a key
  delete <key>           Delete a key
  scan <low> <high>      Print all keys in [low, high]
  stats                  Show database statistics
  help, h                Show this help
  exit, quit             Close the database and leave`
	fmt.Fprintln(s.out, help)
}
