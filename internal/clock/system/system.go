// Package system provides the wall-clock implementation of monitor.Clock.
package system

import "time"

// Clock reports UTC wall time, truncated to microseconds so values survive a
// round trip through Postgres timestamptz unchanged.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
