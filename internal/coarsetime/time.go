// Package coarsetime provides a clock refreshed every tick, cheaper to read
// than time.Now on the request path. Readings lag real time by up to one
// tick.
package coarsetime

import (
	"sync/atomic"
	"time"
)

// Tick is the refresh interval of the clock.
const Tick = 50 * time.Millisecond

var now atomic.Int64

func init() {
	now.Store(time.Now().UnixNano())

	ticker := time.NewTicker(Tick)
	go func() {
		for t := range ticker.C {
			now.Store(t.UnixNano())
		}
	}()
}

// Now returns the last recorded time.
func Now() time.Time {
	return time.Unix(0, now.Load())
}

// Deadline returns Now()+d, rounded up by one tick so a coarse reading
// never shortens d.
func Deadline(d time.Duration) time.Time {
	return Now().Add(d + Tick)
}
