package gofiber

import "time"

// virtualClock is a deterministic Clock for tests: Sleep advances the clock
// instantly instead of blocking the test process, so timer-driven scenarios
// (the 5000-sleeper scenario, preemption budgets) run in real milliseconds
// regardless of what simulated duration they sleep for.
type virtualClock struct {
	now time.Time
}

func newVirtualClock() *virtualClock {
	return &virtualClock{now: time.Unix(0, 0)}
}

func (c *virtualClock) Now() time.Time { return c.now }

func (c *virtualClock) Sleep(d time.Duration) {
	if d > 0 {
		c.now = c.now.Add(d)
	}
}
