// Package registry implements the seen-URL sets used to deduplicate
// harvesting runs. Record ids, not raw URLs, are the set members, so
// equivalent URL spellings collapse to a single entry.
package registry

import (
	"context"
)

// Memory is the in-process registry used by default. It is scoped to one
// run and owned exclusively by the collection loop, so it carries no locks.
type Memory struct {
	ids map[string]struct{}
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{ids: make(map[string]struct{})}
}

// Contains reports whether the id has been registered.
func (m *Memory) Contains(_ context.Context, id string) (bool, error) {
	_, ok := m.ids[id]
	return ok, nil
}

// Add registers the id.
func (m *Memory) Add(_ context.Context, id string) error {
	m.ids[id] = struct{}{}
	return nil
}

// Len reports how many ids have been registered.
func (m *Memory) Len(_ context.Context) (int, error) {
	return len(m.ids), nil
}

// Reset drops all registered ids.
func (m *Memory) Reset(_ context.Context) error {
	m.ids = make(map[string]struct{})
	return nil
}

// Close drops the set. The registry must not be used afterwards.
func (m *Memory) Close(_ context.Context) error {
	m.ids = nil
	return nil
}
