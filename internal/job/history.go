package job

import (
	"context"
	"sync"
	"time"
)

// HistoryItem summarizes one finished job for the debug endpoint.
type HistoryItem struct {
	ID       string        `json:"id"`
	Engine   string        `json:"engine"`
	Channel  string        `json:"channel_id"`
	Stage    Stage         `json:"stage"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// History keeps the last N outcomes in memory.
type History struct {
	mu    sync.Mutex
	size  int
	items []HistoryItem
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 200
	}
	return &History{size: size}
}

// Observe is an Observer that records o.
func (h *History) Observe(_ context.Context, j Job, o Outcome) {
	item := HistoryItem{
		ID:       j.ID,
		Engine:   o.Engine,
		Channel:  j.Request.ChannelID,
		Stage:    o.Stage,
		Started:  o.Started,
		Duration: o.Duration,
		Error:    errString(o.Err),
	}
	h.mu.Lock()
	h.items = append(h.items, item)
	if len(h.items) > h.size {
		h.items = h.items[len(h.items)-h.size:]
	}
	h.mu.Unlock()
}

// Snapshot returns the items, newest first.
func (h *History) Snapshot() []HistoryItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryItem, len(h.items))
	for i, it := range h.items {
		out[len(h.items)-1-i] = it
	}
	return out
}
