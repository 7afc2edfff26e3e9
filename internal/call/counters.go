package call

import "sync"

// Counters is the per-call named counter table. Get/Inc/Dec follow the
// fetch-then-apply convention: the returned value is the one before the
// operation, so `if c.Inc("hello_null") > 1` reads naturally in routing
// logic.
type Counters struct {
	mu sync.Mutex
	m  map[string]int
}

func NewCounters() *Counters {
	return &Counters{m: make(map[string]int)}
}

// Get returns the current value without changing it.
func (c *Counters) Get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[name]
}

// Inc returns the current value, then increments.
func (c *Counters) Inc(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.m[name]
	c.m[name] = current + 1
	return current
}

// Dec returns the current value, then decrements.
func (c *Counters) Dec(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.m[name]
	c.m[name] = current - 1
	return current
}
