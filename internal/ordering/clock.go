// Package ordering provides the monotonic ordering counter used to bound
// freeze windows and pattern-detection windows. The unit is a block-number
// analogue: every state-mutating gateway operation observes the current unit,
// and thresholds ("N calls per unit", "expires after 30 units") are expressed
// against it.
package ordering

import "sync/atomic"

// Clock reports the current ordering unit.
type Clock interface {
	Unit() uint64
}

// Counter is a manually advanced ordering clock. The surrounding runtime
// (or a test) advances it; readers only ever observe it.
type Counter struct {
	unit atomic.Uint64
}

// NewCounter creates a counter starting at the given unit.
func NewCounter(start uint64) *Counter {
	c := &Counter{}
	c.unit.Store(start)
	return c
}

// Unit returns the current ordering unit.
func (c *Counter) Unit() uint64 {
	return c.unit.Load()
}

// Advance moves the counter forward by n units and returns the new unit.
func (c *Counter) Advance(n uint64) uint64 {
	return c.unit.Add(n)
}

// Set jumps the counter to unit. Panics if this would move it backwards;
// the ordering unit is monotonic by contract.
func (c *Counter) Set(unit uint64) {
	for {
		cur := c.unit.Load()
		if unit < cur {
			panic("ordering: counter moved backwards")
		}
		if c.unit.CompareAndSwap(cur, unit) {
			return
		}
	}
}
