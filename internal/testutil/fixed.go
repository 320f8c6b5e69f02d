package testutil

import (
	"sync"
	"time"
)

// FixedID always returns the same identifier. It satisfies ident.Generator
// and makes broadcast frames and journal rows reproducible.
type FixedID string

// Generate returns the identifier, or "test-id" when empty.
func (f FixedID) Generate() string {
	if f == "" {
		return "test-id"
	}
	return string(f)
}

// Clock is a logical clock for tests. Each call to Now advances it by one
// second from a fixed origin.
type Clock struct {
	mu   sync.Mutex
	tick int64
}

// Origin is the time returned by the first call to Clock.Now.
var Origin = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewClock creates a clock positioned at Origin.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current logical time and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Origin.Add(time.Duration(c.tick) * time.Second)
	c.tick++
	return t
}

// Reset rewinds the clock to Origin.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick = 0
}
