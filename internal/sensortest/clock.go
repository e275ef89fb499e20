// Package sensortest provides a simulated temperature sensor and a WebSocket
// server exposing it, for tests of the client and the check scenarios.
package sensortest

import (
	"sync"
	"time"
)

// Clock is a manual clock. Sleep advances it instead of blocking, so it can
// be handed to the poller and the device at the same time.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock starting at start
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleep implements poll.Sleeper
func (c *Clock) Sleep(d time.Duration) {
	c.Advance(d)
}
