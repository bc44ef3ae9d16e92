package server

import (
	"sync"

	"github.com/zeusync/hephaestus/internal/core/events/bus"
)

// eventCounter tallies lifecycle events per type for Stats.
type eventCounter struct {
	mu     sync.Mutex
	counts map[string]uint64
}

var _ bus.EventBusObserver = (*eventCounter)(nil)

func newEventCounter() *eventCounter {
	return &eventCounter{counts: make(map[string]uint64)}
}

func (c *eventCounter) OnPublish(eventType string, _ bus.Event) {
	c.mu.Lock()
	c.counts[eventType]++
	c.mu.Unlock()
}

func (c *eventCounter) OnDelivered(string, int, error, int64) {}

func (c *eventCounter) snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
