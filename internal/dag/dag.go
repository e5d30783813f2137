// Copyright 2024 rg0now. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dag records the operator graph of a dataflow: labelled nodes in construction order and
// labelled edges between them.
//
// Operators are added in the order they are built, and an operator can only consume the output
// of an operator built before it, so the construction order is always a topological order. The
// graph checks that invariant when an edge is added.
package dag

import (
	"fmt"
	"sort"
)

type Graph struct {
	Nodes     []string
	byLabel   map[string]int
	edges     map[string]map[string]string // from -> to -> edge label
	nodeAttrs map[string]string
}

// AddNode adds a node with an attribute (e.g., the kind of the operator). It returns false if
// the node already exists.
func (g *Graph) AddNode(label, attr string) bool {
	if _, ok := g.byLabel[label]; ok {
		return false
	}
	g.byLabel[label] = len(g.Nodes)
	g.Nodes = append(g.Nodes, label)
	g.edges[label] = map[string]string{}
	g.nodeAttrs[label] = attr
	return true
}

func (g *Graph) HasNode(label string) bool {
	_, ok := g.byLabel[label]
	return ok
}

// NodeAttr returns the attribute of a node.
func (g *Graph) NodeAttr(label string) string { return g.nodeAttrs[label] }

// AddEdge adds a labelled edge. Both nodes must exist and from must precede to.
func (g *Graph) AddEdge(from, to, label string) error {
	i, ok := g.byLabel[from]
	if !ok {
		return fmt.Errorf("unknown node %q", from)
	}
	j, ok := g.byLabel[to]
	if !ok {
		return fmt.Errorf("unknown node %q", to)
	}
	if i >= j {
		return fmt.Errorf("edge %q -> %q goes against construction order", from, to)
	}
	g.edges[from][to] = label
	return nil
}

func (g *Graph) HasEdge(from, to string) bool {
	_, ok := g.edges[from][to]
	return ok
}

// EdgeLabel returns the label of an edge.
func (g *Graph) EdgeLabel(from, to string) string { return g.edges[from][to] }

// Edges returns the successors of a node in construction order.
func (g *Graph) Edges(from string) []string {
	edges := make([]string, 0, 16)
	for k := range g.edges[from] {
		edges = append(edges, k)
	}
	sort.Slice(edges, func(i, j int) bool { return g.byLabel[edges[i]] < g.byLabel[edges[j]] })
	return edges
}
