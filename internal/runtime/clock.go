package runtime

import "sync/atomic"

// Clock issues increasing int64 values starting at 1. The loop stamps each
// dispatched Task with one; the timer extension uses its own for timer ids.
// A Clock never hands out the same value twice and is safe for concurrent use.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a Clock whose first value is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next issues the next value.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Last returns the most recently issued value, or 0 if none was issued.
func (c *Clock) Last() int64 {
	return c.last.Load()
}
