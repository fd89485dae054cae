package wal

// WriteAheadLog is implemented by both WAL and BatchedWAL. Enqueue fixes an
// entry's position in the log immediately; Commit.Wait reports when it is
// durable.
type WriteAheadLog interface {
	Enqueue(op OpType, key, value int32) *Commit
	Replay(fn func(Entry) error) error
	Truncate() error
	Close() error
	CurrentLSN() uint64
	Stats() Stats
}

var _ WriteAheadLog = (*WAL)(nil)
var _ WriteAheadLog = (*BatchedWAL)(nil)

// Commit tracks the durability of one enqueued entry
type Commit struct {
	done chan struct{}
	lsn  uint64
	err  error
}

func newCommit() *Commit {
	return &Commit{done: make(chan struct{})}
}

// NewCommit returns a pending commit and the function that settles it, for
// WriteAheadLog implementations outside this package. resolve must be
// called exactly once.
func NewCommit() (commit *Commit, resolve func(lsn uint64, err error)) {
	c := newCommit()
	return c, c.resolve
}

func resolvedCommit(lsn uint64, err error) *Commit {
	c := newCommit()
	c.resolve(lsn, err)
	return c
}

func (c *Commit) resolve(lsn uint64, err error) {
	c.lsn = lsn
	c.err = err
	close(c.done)
}

// Wait blocks until the entry is durable or failed
func (c *Commit) Wait() (uint64, error) {
	<-c.done
	return c.lsn, c.err
}
