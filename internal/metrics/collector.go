// Package metrics provides the in-process counter collector injected into
// the engine. Counters are plain named int64s surfaced on the status
// endpoint; anything heavier belongs in an external system.
package metrics

import (
	"sync"

	"github.com/ternarybob/disperse/internal/interfaces"
)

// Collector is a thread-safe named counter registry
type Collector struct {
	mu       sync.RWMutex
	counters map[string]int64
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{
		counters: make(map[string]int64),
	}
}

// Incr increments a named counter by one
func (c *Collector) Incr(name string) {
	c.Add(name, 1)
}

// Add increments a named counter by n
func (c *Collector) Add(name string, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += n
}

// Snapshot returns a copy of all counters
func (c *Collector) Snapshot() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]int64, len(c.counters))
	for name, value := range c.counters {
		snapshot[name] = value
	}
	return snapshot
}

// noop discards all counter updates
type noop struct{}

func (noop) Incr(string)       {}
func (noop) Add(string, int64) {}
func (noop) Snapshot() map[string]int64 {
	return map[string]int64{}
}

// Noop returns a collector that discards everything. Used in tests and
// anywhere observability is not wired.
func Noop() interfaces.Collector {
	return noop{}
}
