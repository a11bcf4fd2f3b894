package eventbus

import (
	"sync"
	"time"
)

// TypeStats is the running total for one event type.
type TypeStats struct {
	Count uint64    `json:"count"`
	Last  time.Time `json:"last"`
}

// Counter tallies events by type. Feed it from a subscriber loop.
type Counter struct {
	mu     sync.Mutex
	byType map[string]TypeStats
}

func NewCounter() *Counter {
	return &Counter{byType: map[string]TypeStats{}}
}

func (c *Counter) Record(e Event) {
	c.mu.Lock()
	st := c.byType[e.Type]
	st.Count++
	if e.Time.After(st.Last) {
		st.Last = e.Time
	}
	c.byType[e.Type] = st
	c.mu.Unlock()
}

// Snapshot returns a copy of the totals.
func (c *Counter) Snapshot() map[string]TypeStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]TypeStats, len(c.byType))
	for k, v := range c.byType {
		out[k] = v
	}
	return out
}
