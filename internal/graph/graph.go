// Package graph provides a dependency graph for work unit scheduling.
package graph

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCycleDetected indicates a circular dependency was found in the graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// Node is anything that can be placed in the graph.
type Node interface {
	NodeID() string
	Dependencies() []string
}

// DependencyGraph represents a directed acyclic graph of unit dependencies.
// Units are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// order records node IDs in the order they were added.
	order []string
	// index maps node ID to its position in order.
	index map[string]int
	// edges maps node ID to IDs of nodes it depends on.
	edges map[string][]string
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		index: make(map[string]int),
		edges: make(map[string][]string),
	}
}

// Build constructs the graph from nodes.
// Returns an error on duplicate IDs, unknown dependencies, or a cycle.
func (g *DependencyGraph) Build(nodes []Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// First pass: register all nodes.
	for _, n := range nodes {
		id := n.NodeID()
		if _, exists := g.index[id]; exists {
			return fmt.Errorf("duplicate node %s", id)
		}
		g.index[id] = len(g.order)
		g.order = append(g.order, id)
		g.edges[id] = nil
	}

	// Second pass: build edges.
	for _, n := range nodes {
		for _, depID := range n.Dependencies() {
			if _, exists := g.index[depID]; !exists {
				return fmt.Errorf("node %s depends on unknown node %s", n.NodeID(), depID)
			}
			if depID == n.NodeID() {
				return fmt.Errorf("node %s depends on itself: %w", depID, ErrCycleDetected)
			}
			g.edges[n.NodeID()] = append(g.edges[n.NodeID()], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}

	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked assumes the lock is held.
// Depth-first search with coloring to detect back edges.
func (g *DependencyGraph) hasCycleLocked() bool {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.order))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns node IDs so that every dependency comes before its
// dependents. Among nodes that are ready at the same time the one added first
// wins, so an insertion order that is already valid is returned unchanged.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	remaining := make(map[string]int, len(g.order))
	dependents := make(map[string][]string, len(g.order))
	for _, id := range g.order {
		remaining[id] = len(g.edges[id])
		for _, depID := range g.edges[id] {
			dependents[depID] = append(dependents[depID], id)
		}
	}

	done := make(map[string]bool, len(g.order))
	result := make([]string, 0, len(g.order))
	for len(result) < len(g.order) {
		// Pick the earliest-added ready node.
		next := ""
		for _, id := range g.order {
			if !done[id] && remaining[id] == 0 {
				next = id
				break
			}
		}
		if next == "" {
			return nil, ErrCycleDetected
		}
		done[next] = true
		result = append(result, next)
		for _, dependent := range dependents[next] {
			remaining[dependent]--
		}
	}

	return result, nil
}

// Dependencies returns the direct dependencies of id.
func (g *DependencyGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[id]...)
}

// Size returns the number of nodes in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}
