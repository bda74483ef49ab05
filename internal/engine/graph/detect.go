package graph

import "sort"

// Cycle is a strongly connected component that needs an ordering fallback:
// more than one member, or a single member referencing itself.
type Cycle struct {
	Members  []int // discovery order
	SelfLoop bool
	// Stuck lists the members no order can load: they sit on, or wait for,
	// a cycle of load-time edges.
	Stuck []int
}

// IDs returns the member IDs in discovery order.
func (c Cycle) IDs(g *Graph) []string {
	ids := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		ids = append(ids, g.nodes[m].ID)
	}
	return ids
}

// StronglyConnected returns the components of the graph (Tarjan), each with
// its members in discovery order.
func (g *Graph) StronglyConnected() [][]int {
	index := 0
	indexes := make([]int, len(g.nodes))
	lowlink := make([]int, len(g.nodes))
	onStack := make([]bool, len(g.nodes))
	for i := range indexes {
		indexes[i] = -1
	}
	var stack []int
	var components [][]int

	var connect func(v int)
	connect = func(v int) {
		indexes[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.Dependencies(v) {
			if indexes[w] == -1 {
				connect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && indexes[w] < lowlink[v] {
				lowlink[v] = indexes[w]
			}
		}

		if lowlink[v] == indexes[v] {
			var component []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			sort.Ints(component)
			components = append(components, component)
		}
	}

	for v := range g.nodes {
		if indexes[v] == -1 {
			connect(v)
		}
	}
	return components
}

// DetectCycles returns every component that is a cycle, ordered by its
// first member.
func (g *Graph) DetectCycles() []Cycle {
	return g.cycles(g.StronglyConnected())
}

func (g *Graph) cycles(components [][]int) []Cycle {
	var cycles []Cycle
	for _, component := range components {
		self := len(component) == 1 && g.HasEdge(component[0], component[0])
		if len(component) == 1 && !self {
			continue
		}
		_, stuck := g.arrange(component)
		cycles = append(cycles, Cycle{Members: component, SelfLoop: self, Stuck: stuck})
	}
	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].Members[0] < cycles[j].Members[0]
	})
	return cycles
}

// FindChain returns a shortest dependency path from one node to another,
// used to explain a cycle. With from == to it finds the shortest cycle
// through the node.
func (g *Graph) FindChain(from, to int) ([]int, bool) {
	return g.findChain(from, to, g.Dependencies)
}

// FindLoadChain is FindChain over load-time edges only.
func (g *Graph) FindLoadChain(from, to int) ([]int, bool) {
	return g.findChain(from, to, g.LoadDependencies)
}

func (g *Graph) findChain(from, to int, next func(int) []int) ([]int, bool) {
	queue := []int{from}
	visited := map[int]bool{from: true}
	prev := make(map[int]int)

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		for _, n := range next(curr) {
			if n == to {
				path := []int{to, curr}
				for node := curr; node != from; {
					node = prev[node]
					path = append(path, node)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path, true
			}
			if visited[n] {
				continue
			}
			visited[n] = true
			prev[n] = curr
			queue = append(queue, n)
		}
	}
	return nil, false
}
