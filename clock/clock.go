// Package clock keeps the virtual clocks of two Remote Port peers causally
// ordered.
//
// Each side normalizes its clock by subtracting a base captured once per
// session. The two clocks are reconciled only at synchronization points: bus
// transactions and explicit sync packets.
package clock

import (
	"math"
	"sync"
	"time"
)

// VTime is a point in virtual time, in nanoseconds.
type VTime = int64

// A TimeTeller reports the current virtual time of the host simulator.
type TimeTeller interface {
	Now() VTime
}

// TimeTellerFunc lets a plain function serve as a TimeTeller.
type TimeTellerFunc func() VTime

// Now calls f.
func (f TimeTellerFunc) Now() VTime {
	return f()
}

// FromSeconds converts a time expressed in seconds, as discrete event engines
// usually keep it, to VTime.
func FromSeconds(sec float64) VTime {
	return VTime(math.Round(sec * 1e9))
}

// ToSeconds converts a VTime to seconds.
func ToSeconds(t VTime) float64 {
	return float64(t) / 1e9
}

// A WallClock uses the time elapsed since its creation as virtual time. It
// suits hosts that run in real time, such as command line tools.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a WallClock starting at zero.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// Now returns the nanoseconds elapsed since the clock was created.
func (c *WallClock) Now() VTime {
	return VTime(time.Since(c.start))
}

// A ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now VTime
}

// NewManualClock creates a ManualClock at the given time.
func NewManualClock(now VTime) *ManualClock {
	return &ManualClock{now: now}
}

// Now returns the current time.
func (c *ManualClock) Now() VTime {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Set moves the clock to t. Moving backwards panics.
func (c *ManualClock) Set(t VTime) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t < c.now {
		panic("manual clock cannot go backwards")
	}

	c.now = t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d VTime) {
	if d < 0 {
		panic("manual clock cannot go backwards")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.now += d
}
