package utils

import "time"

// EpochSeconds converts t into fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Milliseconds renders a duration as fractional milliseconds for result envelopes.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
