// Package catalog maintains the in-memory snapshot of agents and their
// authorized tools. The snapshot is loaded once from storage, treated as
// read-only by every pipeline run, and replaced wholesale by an explicit
// Reload rather than mutated in place.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
)

// Catalog is the process-wide agent/tool snapshot. Safe for concurrent reads;
// Reload swaps the snapshot atomically.
type Catalog struct {
	store  core.Store
	logger logging.Logger

	mu     sync.RWMutex
	agents []core.Agent
	byName map[string]*core.Agent
}

// New creates an empty catalog bound to store. Call Load before use.
func New(store core.Store, logger logging.Logger) *Catalog {
	return &Catalog{store: store, logger: logging.OrNoOp(logger)}
}

// Load populates the snapshot from storage. Stale until the next Reload; no
// hot reload happens implicitly.
func (c *Catalog) Load(ctx context.Context) error {
	agents, err := c.store.ListActiveAgents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load agents: %w", err)
	}
	byName := make(map[string]*core.Agent, len(agents))
	for i := range agents {
		byName[agents[i].Name] = &agents[i]
	}

	c.mu.Lock()
	c.agents = agents
	c.byName = byName
	c.mu.Unlock()

	c.logger.Info("agent catalog loaded", "agents", len(agents))
	for _, a := range agents {
		c.logger.Info("agent loaded", "name", a.Name, "tools", len(a.Tools))
	}
	return nil
}

// Reload rebuilds the snapshot from storage.
func (c *Catalog) Reload(ctx context.Context) error { return c.Load(ctx) }

// Agents returns the loaded agent list. Callers must treat it as read-only.
func (c *Catalog) Agents() []core.Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agents
}

// Find returns the agent with the given name, or false.
func (c *Catalog) Find(name string) (*core.Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.byName[name]
	return a, ok
}

// ByID returns the agent with the given id, or false.
func (c *Catalog) ByID(id string) (*core.Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.agents {
		if c.agents[i].ID == id {
			return &c.agents[i], true
		}
	}
	return nil, false
}
