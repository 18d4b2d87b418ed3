// Package lifecycle tracks resources that must be released before the process
// exits, such as open browser sessions.
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

type entry struct {
	id       uint64
	name     string
	teardown func() error
}

// Coordinator is an explicit registry of scoped acquisitions. Every registered
// teardown runs exactly once: either through its release func or through Shutdown.
type Coordinator struct {
	mu      sync.Mutex
	nextID  uint64
	entries []*entry
	closed  bool
	logger  *slog.Logger
}

// New creates an empty coordinator.
func New(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		logger: logger.With("component", "lifecycle"),
	}
}

// Register records a teardown and returns the func that releases it. Calling
// release runs the teardown and removes it from the registry; further calls
// are no-ops. Registering after Shutdown runs the teardown immediately.
func (c *Coordinator) Register(name string, teardown func() error) (release func() error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn("registration after shutdown, releasing immediately", "name", name)
		err := teardown()
		return func() error { return err }
	}

	c.nextID++
	e := &entry{id: c.nextID, name: name, teardown: teardown}
	c.entries = append(c.entries, e)
	c.mu.Unlock()

	var once sync.Once
	var err error
	return func() error {
		once.Do(func() {
			if c.take(e.id) {
				err = e.teardown()
			}
		})
		return err
	}
}

// take removes an entry and reports whether it was still pending.
func (c *Coordinator) take(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e.id == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Pending returns how many teardowns have not run yet.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Shutdown runs every pending teardown in reverse registration order.
func (c *Coordinator) Shutdown() error {
	c.mu.Lock()
	c.closed = true
	pending := c.entries
	c.entries = nil
	c.mu.Unlock()

	var errs []error
	for i := len(pending) - 1; i >= 0; i-- {
		e := pending[i]
		c.logger.Info("releasing resource", "name", e.name)
		if err := e.teardown(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}

	return errors.Join(errs...)
}
