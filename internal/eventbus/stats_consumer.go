package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/matthewbaird/valuation/internal/event"
)

// StatsConsumer tallies events by type and remembers when each type was
// last seen. Served on the stats endpoint.
type StatsConsumer struct {
	mu       sync.Mutex
	counts   map[string]int
	lastSeen map[string]time.Time
}

// Stats is a point-in-time copy of the tallies.
type Stats struct {
	Total    int                  `json:"total"`
	ByType   map[string]int       `json:"by_type"`
	LastSeen map[string]time.Time `json:"last_seen"`
}

// NewStatsConsumer creates an empty StatsConsumer.
func NewStatsConsumer() *StatsConsumer {
	return &StatsConsumer{
		counts:   make(map[string]int),
		lastSeen: make(map[string]time.Time),
	}
}

func (c *StatsConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[evt.EventType]++
	if evt.OccurredAt.After(c.lastSeen[evt.EventType]) {
		c.lastSeen[evt.EventType] = evt.OccurredAt
	}
	return nil
}

// Snapshot returns a copy of the current tallies.
func (c *StatsConsumer) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		ByType:   make(map[string]int, len(c.counts)),
		LastSeen: make(map[string]time.Time, len(c.lastSeen)),
	}
	for k, n := range c.counts {
		s.ByType[k] = n
		s.Total += n
	}
	for k, t := range c.lastSeen {
		s.LastSeen[k] = t
	}
	return s
}
