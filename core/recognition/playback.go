package recognition

import "sync"

// PlaybackCount is the number of assistant playbacks currently running.
// Only the recognition machine writes it, one step per started or ended
// event; anything may read it.
type PlaybackCount struct {
	mu sync.RWMutex
	n  int
}

func (c *PlaybackCount) Value() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.n
}

func (c *PlaybackCount) Active() bool { return c.Value() > 0 }

func (c *PlaybackCount) add(delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = max(c.n+delta, 0)
	return c.n
}
