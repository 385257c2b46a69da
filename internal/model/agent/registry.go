package agent

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an agent id has no stored definition.
var ErrNotFound = errors.New("agent not found")

// Registry exposes read-only agent lookup to the orchestration core.
// AgentsByIDs makes no ordering promise; callers that care about order must
// re-sort against their input.
type Registry interface {
	ListAgents(ctx context.Context) ([]Agent, error)
	AgentByID(ctx context.Context, id string) (Agent, error)
	AgentsByIDs(ctx context.Context, ids []string) ([]Agent, error)
}

// MemoryRegistry implements Registry with an in-memory slice, suitable for
// tests and single-process setups without a database file.
type MemoryRegistry struct {
	items []Agent
}

// NewMemoryRegistry returns a MemoryRegistry preloaded with the supplied agents.
func NewMemoryRegistry(items []Agent) *MemoryRegistry {
	return &MemoryRegistry{items: append([]Agent(nil), items...)}
}

// ListAgents returns all registered agents.
func (r *MemoryRegistry) ListAgents(_ context.Context) ([]Agent, error) {
	return append([]Agent(nil), r.items...), nil
}

// AgentByID looks up a single agent definition.
func (r *MemoryRegistry) AgentByID(_ context.Context, id string) (Agent, error) {
	for _, item := range r.items {
		if item.ID == id {
			return item, nil
		}
	}
	return Agent{}, ErrNotFound
}

// AgentsByIDs returns the agents matching the given ids. Unknown ids are
// skipped silently; the result order follows registry order, not input order.
func (r *MemoryRegistry) AgentsByIDs(_ context.Context, ids []string) ([]Agent, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	matched := make([]Agent, 0, len(ids))
	for _, item := range r.items {
		if _, ok := wanted[item.ID]; ok {
			matched = append(matched, item)
		}
	}
	return matched, nil
}
