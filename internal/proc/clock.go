package proc

import (
	"sync"
	"time"
)

// Clock abstracts time for the process table so timer blocking can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock returns a Clock backed by the system clock.
func RealClock() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// ManualClock only moves when Advance is called. Sleepers stay parked
// until the clock passes their deadline.
type ManualClock struct {
	mu   sync.Mutex
	cond *sync.Cond
	now  time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	c := &ManualClock{now: start}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := c.now.Add(d)
	for c.now.Before(deadline) {
		c.cond.Wait()
	}
}

// Advance moves the clock forward and releases every sleeper whose
// deadline has passed.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	c.cond.Broadcast()
}
