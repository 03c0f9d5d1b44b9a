//go:build !(linux || darwin || freebsd)

package clock

// Monotonic falls back to the Go runtime's monotonic reading, which is only
// comparable within one process.
type Monotonic struct{}

// NewMonotonic returns the process monotonic clock.
func NewMonotonic() Monotonic { return Monotonic{} }

func (Monotonic) Now() uint64 { return processMonotonic() }
