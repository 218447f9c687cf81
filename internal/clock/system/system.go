// Package system provides a real clock implementation.
package system

import "time"

// Clock returns wall-clock time in UTC. It satisfies the Clock
// interfaces declared by the kwcache, bron, and health packages.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
