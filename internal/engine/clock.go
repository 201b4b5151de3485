package engine

import "sync/atomic"

// Clock is a logical clock handing out increasing sequence numbers starting
// at 1. The scenario harness stamps each executed step with Clock.Next() so
// traces order the same way on every run.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}
