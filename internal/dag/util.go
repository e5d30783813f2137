// Copyright 2024 rg0now. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dag

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		byLabel:   map[string]int{},
		edges:     map[string]map[string]string{},
		nodeAttrs: map[string]string{},
	}
}

// Roots returns the roots of the DAG, i.e., the nodes without an incoming edge.
func (g *Graph) Roots() []string {
	roots := make([]string, 0, len(g.Nodes))

	for _, j := range g.Nodes {
		isRoot := true
		for _, i := range g.Nodes {
			if g.HasEdge(i, j) {
				isRoot = false
				break
			}
		}
		if isRoot {
			roots = append(roots, j)
		}
	}
	return roots
}

// Leaves returns the nodes without an outgoing edge.
func (g *Graph) Leaves() []string {
	leaves := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if len(g.edges[n]) == 0 {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// Upstream returns every node from which label is reachable, in construction order.
func (g *Graph) Upstream(label string) []string {
	reach := map[string]bool{label: true}
	// construction order is topological, so a single reverse sweep suffices
	for i := len(g.Nodes) - 1; i >= 0; i-- {
		n := g.Nodes[i]
		for to := range g.edges[n] {
			if reach[to] {
				reach[n] = true
				break
			}
		}
	}

	up := []string{}
	for _, n := range g.Nodes {
		if n != label && reach[n] {
			up = append(up, n)
		}
	}
	return up
}
