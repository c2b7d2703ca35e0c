package ledger

import "sync/atomic"

// Clock is the store-wide logical sequence counter.
//
// Every ledger entry is stamped with a strictly increasing seq from this
// clock. Seq never derives from wall-clock time, so replay from persistence
// and rollback both reproduce the same order.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used by replay to resume from the last persisted entry.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// reset rewinds the clock on rollback.
func (c *Clock) reset(v int64) {
	c.seq.Store(v)
}
