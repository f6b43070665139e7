package telemetry

import (
	"sync"
	"sync/atomic"
)

// Cache holds the current Snapshot.
//
// Reads are a single atomic load and never block. Writes (Publish from the
// aggregator, Update from the command gateway) are serialised by a mutex
// that readers never take. Every method returns a copy.
type Cache struct {
	current atomic.Pointer[Snapshot]
	writeMu sync.Mutex
}

// NewCache creates a cache holding initial.
func NewCache(initial Snapshot) *Cache {
	c := &Cache{}
	c.current.Store(&initial)
	return c
}

// Get returns a copy of the current snapshot.
func (c *Cache) Get() Snapshot {
	return *c.current.Load()
}

// Publish replaces the current snapshot. Once Publish returns, every Get
// observes s or a newer snapshot.
func (c *Cache) Publish(s Snapshot) {
	c.writeMu.Lock()
	c.current.Store(&s)
	c.writeMu.Unlock()
}

// Update applies fn to a copy of the current snapshot and publishes the
// result, returning it.
func (c *Cache) Update(fn func(*Snapshot)) Snapshot {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	next := *c.current.Load()
	fn(&next)
	c.current.Store(&next)
	return next
}
