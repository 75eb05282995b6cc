// Package gpstime converts between wall-clock time and GPS time in
// microseconds and extrapolates the radio-local xtime counter of a gateway.
package gpstime

import (
	"time"
)

// LeapSeconds is the GPS-UTC offset applied by the conversion functions.
const LeapSeconds = 18

// Epoch is the GPS epoch.
var Epoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// FromTime returns the GPS time in microseconds for the given wall-clock time.
func FromTime(t time.Time) int64 {
	return t.Sub(Epoch).Microseconds() + LeapSeconds*1000000
}

// ToTime returns the wall-clock time for the given GPS time in microseconds.
func ToTime(us int64) time.Time {
	return Epoch.Add(time.Duration(us-LeapSeconds*1000000) * time.Microsecond)
}

// Now returns the current GPS time in microseconds.
func Now() int64 {
	return FromTime(time.Now())
}

// MuxTime returns the given time as fractional seconds since the Unix epoch.
func MuxTime(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// Anchor pairs an xtime value reported by the gateway with the GPS time
// observed for it and the wall-clock time at which it was received.
type Anchor struct {
	XTime   int64
	GPSTime int64
	At      time.Time
}

// Valid returns true when the anchor has been set.
func (a Anchor) Valid() bool {
	return a.XTime != 0 && !a.At.IsZero()
}

// Extrapolate returns the xtime value at the given wall-clock time.
func (a Anchor) Extrapolate(now time.Time) int64 {
	return a.XTime + now.Sub(a.At).Microseconds()
}
