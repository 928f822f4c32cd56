package core

import "time"

// Clock provides millisecond timestamps for the control loop.
// Firmware targets back this with the hardware tick counter; tests
// install a manual clock and step it explicitly.
type Clock interface {
	// Now returns milliseconds since boot. Wraps after ~49 days.
	Now() uint32
}

type systemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock backed by the Go runtime's monotonic time.
func NewSystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) Now() uint32 {
	return uint32(time.Since(c.start) / time.Millisecond)
}
