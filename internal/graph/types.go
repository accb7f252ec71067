// Package graph orders collections so that a collection is synced after the
// collections it depends on.
package graph

import "sort"

// Edge is a dependency: To depends on From, so From syncs first.
type Edge struct {
	From string
	To   string
}

// Graph is a directed dependency graph over collection names.
type Graph struct {
	Nodes    map[string]bool
	Children map[string][]string // collection -> collections that depend on it
	Parents  map[string][]string // collection -> collections it depends on
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:    make(map[string]bool),
		Children: make(map[string][]string),
		Parents:  make(map[string][]string),
	}
}

// AddNode adds a collection.
func (g *Graph) AddNode(name string) {
	g.Nodes[name] = true
}

// AddEdge records that child depends on parent. Both become nodes.
func (g *Graph) AddEdge(parent, child string) {
	g.AddNode(parent)
	g.AddNode(child)
	g.Children[parent] = append(g.Children[parent], child)
	g.Parents[child] = append(g.Parents[child], parent)
}

// HasNode reports whether name is in the graph.
func (g *Graph) HasNode(name string) bool {
	return g.Nodes[name]
}

// NodeCount returns the number of collections.
func (g *Graph) NodeCount() int {
	return len(g.Nodes)
}

// AllNodes returns every collection name, sorted.
func (g *Graph) AllNodes() []string {
	nodes := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		nodes = append(nodes, name)
	}
	sort.Strings(nodes)
	return nodes
}

// AllEdges returns every edge, sorted by From then To.
func (g *Graph) AllEdges() []Edge {
	var edges []Edge
	for parent, children := range g.Children {
		for _, child := range children {
			edges = append(edges, Edge{From: parent, To: child})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

// Dependencies returns the direct dependencies of a collection.
func (g *Graph) Dependencies(name string) []string {
	return g.Parents[name]
}
