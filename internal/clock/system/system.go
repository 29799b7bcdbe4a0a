// Package system provides a real clock implementation.
package system

import "time"

// Clock implements crawler.Clock using time.Now. All timestamps are UTC so
// frontier rows compare consistently regardless of host timezone.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Since reports the elapsed time since t.
func (c Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}
