package dag

import (
	"fmt"
	"sort"
)

// Wave is a set of components whose dependencies all live in earlier waves.
type Wave struct {
	Number     int      // 1-indexed
	Components []string // sorted
}

// Size returns the number of components in the wave.
func (w Wave) Size() int {
	return len(w.Components)
}

// ComputeWaves groups components by their longest dependency chain.
// Wave N holds every component whose longest chain to a root has length N-1.
// Build must have succeeded first.
func (g *Graph) ComputeWaves() ([]Wave, error) {
	if len(g.nodes) == 0 {
		g.waves = []Wave{}
		return g.waves, nil
	}
	if len(g.roots) == 0 {
		return nil, fmt.Errorf("computing waves: no root component (every component has dependencies)")
	}

	visited := g.computeDepths()
	if visited != len(g.nodes) {
		return nil, fmt.Errorf("computing waves: %d of %d components unreachable from roots", len(g.nodes)-visited, len(g.nodes))
	}

	groups := make(map[int][]string)
	for id, node := range g.nodes {
		groups[node.Depth] = append(groups[node.Depth], id)
	}

	depths := make([]int, 0, len(groups))
	for depth := range groups {
		depths = append(depths, depth)
	}
	sort.Ints(depths)

	g.waves = make([]Wave, 0, len(depths))
	for i, depth := range depths {
		ids := groups[depth]
		sort.Strings(ids)
		g.waves = append(g.waves, Wave{Number: i + 1, Components: ids})
	}
	return g.waves, nil
}

// computeDepths runs Kahn's algorithm from the roots and returns how many
// nodes were reached.
func (g *Graph) computeDepths() int {
	inDegree := make(map[string]int, len(g.nodes))
	for id, node := range g.nodes {
		node.Depth = 0
		inDegree[id] = len(node.Dependencies)
	}

	queue := append([]string{}, g.roots...)
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		node := g.nodes[id]

		for _, depID := range node.Dependents {
			depNode := g.nodes[depID]
			if node.Depth+1 > depNode.Depth {
				depNode.Depth = node.Depth + 1
			}
			inDegree[depID]--
			if inDegree[depID] == 0 {
				queue = append(queue, depID)
			}
		}
	}
	return visited
}

// TopologicalOrder returns every component with dependencies before
// dependents, wave by wave.
func (g *Graph) TopologicalOrder() ([]string, error) {
	waves, err := g.ComputeWaves()
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, len(g.nodes))
	for _, w := range waves {
		order = append(order, w.Components...)
	}
	return order, nil
}
