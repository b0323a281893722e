// Package timescale defines the timestamp type used throughout the pipeline.
//
// Timestamps live on the TAI scale (continuous atomic time, no leap-second
// discontinuities) referenced to the Unix epoch, with nanosecond resolution.
// Integer nanoseconds are used instead of float seconds because counter
// values at this magnitude cannot be represented exactly by float64.
package timescale

import (
	"fmt"
	"math"
)

// Timestamp is nanoseconds since 1970-01-01T00:00:00 TAI.
type Timestamp int64

// NoTimestamp is the sentinel reported for events whose time could not be
// reconstructed from any clock source.
const NoTimestamp Timestamp = math.MinInt64

const nanosPerSecond = int64(1_000_000_000)

// Valid reports whether t carries a reconstructed time.
func (t Timestamp) Valid() bool {
	return t != NoTimestamp
}

// Nanos returns the raw nanosecond count.
func (t Timestamp) Nanos() int64 {
	return int64(t)
}

// Seconds returns the timestamp as float seconds. Only for display and
// coarse comparisons; sub-microsecond math must stay in integer nanoseconds.
func (t Timestamp) Seconds() float64 {
	return float64(t) / float64(nanosPerSecond)
}

// String formats the timestamp as fixed-point TAI seconds.
func (t Timestamp) String() string {
	if !t.Valid() {
		return "no-timestamp"
	}
	sec := int64(t) / nanosPerSecond
	frac := int64(t) % nanosPerSecond
	if frac < 0 {
		sec--
		frac += nanosPerSecond
	}
	return fmt.Sprintf("%d.%09d tai", sec, frac)
}
