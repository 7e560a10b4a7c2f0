package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/jugmac00/revindex/internal/types"
)

// Memory is an in-memory RepositoryOracle fake. It is the only concrete
// oracle shipped with this repository (spec.md §1 puts a real VCS
// backend out of scope) and backs both the test suite and
// cmd/revindexctl's bootstrap subcommand, which loads one from a small
// JSON ancestry document.
type Memory struct {
	mu      sync.RWMutex
	tip     types.RevID
	parents map[types.RevID][]types.RevID
}

// NewMemory creates an empty fake oracle with the given tip. The tip
// itself must still be added via AddRevision before it can be resolved.
func NewMemory(tip types.RevID) *Memory {
	return &Memory{
		tip:     tip,
		parents: make(map[types.RevID][]types.RevID),
	}
}

// AddRevision registers a known revision and its ordered parent list.
// Pass no parents to record a root. Parents that are never themselves
// added via AddRevision are ghosts: they will appear as values here but
// never as a key, exactly matching RepositoryOracle.GetParentMap's
// "ghosts are omitted" contract.
func (m *Memory) AddRevision(id types.RevID, parents ...types.RevID) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]types.RevID, len(parents))
	copy(cp, parents)
	m.parents[id] = cp
	return m
}

// SetTip updates the tip returned by TipRevisionID.
func (m *Memory) SetTip(tip types.RevID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tip = tip
}

// TipRevisionID implements RepositoryOracle.
func (m *Memory) TipRevisionID(ctx context.Context) (types.RevID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tip == "" {
		return "", fmt.Errorf("revindex: memory oracle has no tip set")
	}
	return m.tip, nil
}

// GetParentMap implements RepositoryOracle.
func (m *Memory) GetParentMap(ctx context.Context, ids []types.RevID) (map[types.RevID][]types.RevID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.RevID][]types.RevID, len(ids))
	for _, id := range ids {
		if parents, ok := m.parents[id]; ok {
			out[id] = parents
		}
		// Unknown ids are ghosts: omitted from the result, per contract.
	}
	return out, nil
}

// GetKnownGraph implements KnownGraphOracle by walking the in-memory
// parent map from tip until every reachable known ancestor has been
// visited.
func (m *Memory) GetKnownGraph(ctx context.Context, tip types.RevID) (map[types.RevID][]types.RevID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	graph := make(map[types.RevID][]types.RevID)
	stack := []types.RevID{tip}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := graph[id]; seen {
			continue
		}
		parents, known := m.parents[id]
		if !known {
			continue // ghost: not part of the known graph
		}
		graph[id] = parents
		stack = append(stack, parents...)
	}
	return graph, nil
}
