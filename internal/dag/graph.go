// Package dag builds the component dependency graph of a pipeline and orders
// it into waves of components that can run side by side.
package dag

import (
	"fmt"
	"sort"
	"strings"
)

// Node is a component in the dependency graph.
type Node struct {
	ID           string   // Component name
	Dependencies []string // Components this one consumes from or waits on
	Dependents   []string // Components that consume from or wait on this one
	Depth        int      // Longest distance from any root; determines the wave
}

// Graph is a directed graph of component dependencies.
type Graph struct {
	nodes map[string]*Node
	order []string // insertion order, for stable output
	roots []string
	waves []Wave
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
	}
}

// AddNode adds a component with its dependencies.
// Dependencies are checked when the graph is built.
func (g *Graph) AddNode(id string, deps []string) error {
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("adding component: duplicate component name %q", id)
	}

	g.nodes[id] = &Node{
		ID:           id,
		Dependencies: dedupe(deps),
		Dependents:   []string{},
	}
	g.order = append(g.order, id)
	return nil
}

// Build links dependents to their dependencies and finds the roots.
// It fails on a dependency that names an unknown component or on a cycle.
func (g *Graph) Build() error {
	if err := g.buildDependentsAndValidate(); err != nil {
		return err
	}
	g.identifyRoots()
	return g.DetectCycle()
}

func (g *Graph) buildDependentsAndValidate() error {
	for _, id := range g.order {
		node := g.nodes[id]
		node.Dependents = node.Dependents[:0]
	}
	for _, id := range g.order {
		for _, depID := range g.nodes[id].Dependencies {
			depNode, exists := g.nodes[depID]
			if !exists {
				return fmt.Errorf("component %q depends on unknown component %q", id, depID)
			}
			if depID == id {
				return fmt.Errorf("component %q depends on itself", id)
			}
			depNode.Dependents = append(depNode.Dependents, id)
		}
	}
	return nil
}

func (g *Graph) identifyRoots() {
	g.roots = []string{}
	for _, id := range g.order {
		if len(g.nodes[id].Dependencies) == 0 {
			g.roots = append(g.roots, id)
		}
	}
}

// Node returns the node for id, or nil.
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// Roots returns the components with no dependencies, in insertion order.
func (g *Graph) Roots() []string {
	return g.roots
}

// Size returns the number of components.
func (g *Graph) Size() int {
	return len(g.nodes)
}

// DetectCycle returns an error naming the cycle path if the graph has one.
func (g *Graph) DetectCycle() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, id := range g.order {
		if !visited[id] {
			if cycle := g.detectCycleDFS(id, visited, recStack, nil); cycle != nil {
				return fmt.Errorf("circular dependency detected: %s", strings.Join(cycle, " -> "))
			}
		}
	}
	return nil
}

func (g *Graph) detectCycleDFS(id string, visited, recStack map[string]bool, path []string) []string {
	visited[id] = true
	recStack[id] = true
	path = append(path, id)

	for _, depID := range g.nodes[id].Dependencies {
		if _, ok := g.nodes[depID]; !ok {
			continue
		}
		if !visited[depID] {
			if cycle := g.detectCycleDFS(depID, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[depID] {
			return buildCyclePath(path, depID)
		}
	}

	recStack[id] = false
	return nil
}

func buildCyclePath(path []string, cycleStart string) []string {
	for i, id := range path {
		if id == cycleStart {
			cycle := append([]string{}, path[i:]...)
			return append(cycle, cycleStart)
		}
	}
	return append(append([]string{}, path...), cycleStart)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
