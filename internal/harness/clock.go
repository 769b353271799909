package harness

import "sync/atomic"

// Sequencer hands out strictly increasing seq values.
// Implemented by *Clock and *testutil.DeterministicClock.
type Sequencer interface {
	Next() int64
}

// Clock is the monotonic logical clock that orders runs, entries and
// findings in the store. Wall time is never used for ordering.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start, typically the
// store's LastSeq, so a new campaign orders after every earlier one.
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
