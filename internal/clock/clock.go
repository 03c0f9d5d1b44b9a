// Package clock provides the nanosecond time source shared by stampers and
// measurers on one host.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns nanoseconds since an arbitrary, fixed epoch. It must be
// monotonic and safe for concurrent reads.
type Clock interface {
	Now() uint64
}

// Func adapts a function to Clock.
type Func func() uint64

func (f Func) Now() uint64 { return f() }

// Manual is a settable clock for tests and simulations.
type Manual struct {
	ns atomic.Uint64
}

// NewManual returns a manual clock reading start.
func NewManual(start uint64) *Manual {
	m := &Manual{}
	m.ns.Store(start)
	return m
}

func (m *Manual) Now() uint64 { return m.ns.Load() }

// Set jumps to ns. Moving backwards is allowed to model clock anomalies.
func (m *Manual) Set(ns uint64) { m.ns.Store(ns) }

// Advance moves the clock forward by d and returns the new reading.
func (m *Manual) Advance(d time.Duration) uint64 {
	return m.ns.Add(uint64(d))
}
