package graph

import (
	"fmt"
	"sort"

	"pybundle/internal/shared/observability"
)

// Node is a definition in the dependency graph. Index is the discovery
// order, which breaks every ordering tie.
type Node struct {
	ID    string
	Index int
}

// Graph holds "depends on" edges between definitions: an edge a -> b means
// a references b, so b is emitted first unless a cycle prevents it. A
// load-time edge means a uses b while the module loads, so b must come
// first even inside a cycle.
type Graph struct {
	nodes []*Node
	byID  map[string]int
	deps  map[int]map[int]bool // from -> to -> load time
}

func NewGraph() *Graph {
	return &Graph{
		byID: make(map[string]int),
		deps: make(map[int]map[int]bool),
	}
}

// AddNode registers a definition; adding an existing ID returns its index.
func (g *Graph) AddNode(id string) int {
	if idx, ok := g.byID[id]; ok {
		return idx
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, &Node{ID: id, Index: idx})
	g.byID[id] = idx
	return idx
}

// AddEdge records that from references to when it runs.
func (g *Graph) AddEdge(from, to string) error {
	return g.addEdge(from, to, false)
}

// AddLoadEdge records that from uses to while the module loads. A plain
// edge between the same nodes is upgraded.
func (g *Graph) AddLoadEdge(from, to string) error {
	return g.addEdge(from, to, true)
}

func (g *Graph) addEdge(from, to string, loadTime bool) error {
	f, ok := g.byID[from]
	if !ok {
		return fmt.Errorf("unknown node %s", from)
	}
	t, ok := g.byID[to]
	if !ok {
		return fmt.Errorf("unknown node %s", to)
	}
	if g.deps[f] == nil {
		g.deps[f] = make(map[int]bool)
	}
	g.deps[f][t] = g.deps[f][t] || loadTime
	return nil
}

func (g *Graph) Node(idx int) *Node { return g.nodes[idx] }

func (g *Graph) Lookup(id string) (*Node, bool) {
	idx, ok := g.byID[id]
	if !ok {
		return nil, false
	}
	return g.nodes[idx], true
}

func (g *Graph) NodeCount() int { return len(g.nodes) }

func (g *Graph) EdgeCount() int {
	count := 0
	for _, targets := range g.deps {
		count += len(targets)
	}
	return count
}

// Dependencies returns the indexes idx depends on, in discovery order.
func (g *Graph) Dependencies(idx int) []int {
	out := make([]int, 0, len(g.deps[idx]))
	for t := range g.deps[idx] {
		out = append(out, t)
	}
	sort.Ints(out)
	return out
}

// LoadDependencies returns the indexes idx uses while the module loads, in
// discovery order.
func (g *Graph) LoadDependencies(idx int) []int {
	var out []int
	for t, loadTime := range g.deps[idx] {
		if loadTime {
			out = append(out, t)
		}
	}
	sort.Ints(out)
	return out
}

func (g *Graph) HasEdge(from, to int) bool {
	_, ok := g.deps[from][to]
	return ok
}

func (g *Graph) IsLoadEdge(from, to int) bool {
	return g.deps[from][to]
}

// RecordMetrics publishes the graph size.
func (g *Graph) RecordMetrics() {
	observability.GraphNodes.Set(float64(g.NodeCount()))
	observability.GraphEdges.Set(float64(g.EdgeCount()))
}
