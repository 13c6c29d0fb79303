// Package clock provides an injectable source of wall-clock time.
//
// Every timeout and timestamp in the logger and publisher - the silence
// deadline, the ping-giveup deadline, the spool entry timestamp - reads
// the current time through this seam instead of calling time.Now()
// directly, so tests can advance time deterministically instead of
// sleeping. This mirrors the shape of daviddao-clockmail's pkg/clock:
// a tiny struct with a Now/Value-style read and a Set for tests, just
// reading wall-clock seconds since epoch rather than advancing a
// Lamport counter, since this system's ordering guarantee is receipt
// order, not a logical clock.
package clock

import "time"

// Clock returns the current time as seconds since the Unix epoch.
type Clock interface {
	Now() uint64
}

// Real reads the actual wall clock.
type Real struct{}

// Now returns time.Now() truncated to whole seconds since epoch.
func (Real) Now() uint64 { return uint64(time.Now().Unix()) }

// Fixed is a settable clock for tests. The zero value reads as 0.
type Fixed struct {
	t uint64
}

// NewFixed returns a Fixed clock starting at t.
func NewFixed(t uint64) *Fixed { return &Fixed{t: t} }

// Now returns the clock's current value.
func (f *Fixed) Now() uint64 { return f.t }

// Set overrides the clock's current value.
func (f *Fixed) Set(t uint64) { f.t = t }

// Advance moves the clock forward by delta seconds and returns the new value.
func (f *Fixed) Advance(delta uint64) uint64 {
	f.t += delta
	return f.t
}
