package engine

import "sync/atomic"

// Clock is a monotonic logical clock. Each event processed by the
// controller is stamped with the next value, so logs order events without
// relying on wall-clock time.
//
// Thread-safety: safe for concurrent use, though only the Run goroutine
// advances it in practice.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at start, so a restarted controller
// can continue numbering where it left off.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
