//go:build !mono

// Package mono provides low-level monotonic time
package mono

import "time"

var started = time.Now()

// NanoTime returns the number of nanoseconds on the process-local
// monotonic clock; useful for measuring durations, meaningless as a wall
// clock.
func NanoTime() int64 { return int64(time.Since(started)) }
