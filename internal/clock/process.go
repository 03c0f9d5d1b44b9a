package clock

import "time"

var processStart = time.Now()

// processMonotonic is nanoseconds since package init on the runtime's
// monotonic clock.
func processMonotonic() uint64 {
	return uint64(time.Since(processStart))
}
