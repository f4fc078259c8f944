// Package system provides the wall clock.
package system

import "time"

// Clock implements hunter.Clock. Observer log lines show wall time, so the
// clock reports in a configurable zone rather than UTC.
type Clock struct {
	loc *time.Location
}

// New returns a Clock in loc, or the process's local zone when loc is nil.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.Local
	}
	return &Clock{loc: loc}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}
