package graph

import "container/heap"

// Order is a dependency-respecting emission order.
type Order struct {
	Nodes  []int
	Cycles []Cycle
}

// componentHeap pops the ready component whose earliest member was
// discovered first.
type componentHeap struct {
	keys []int
	ids  []int
}

func (h componentHeap) Len() int           { return len(h.ids) }
func (h componentHeap) Less(i, j int) bool { return h.keys[h.ids[i]] < h.keys[h.ids[j]] }
func (h componentHeap) Swap(i, j int)      { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }
func (h *componentHeap) Push(x any)        { h.ids = append(h.ids, x.(int)) }
func (h *componentHeap) Pop() any {
	old := h.ids
	n := len(old)
	x := old[n-1]
	h.ids = old[:n-1]
	return x
}

// nodeHeap pops the ready node discovered first.
type nodeHeap struct {
	ids []int
}

func (h nodeHeap) Len() int           { return len(h.ids) }
func (h nodeHeap) Less(i, j int) bool { return h.ids[i] < h.ids[j] }
func (h nodeHeap) Swap(i, j int)      { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }
func (h *nodeHeap) Push(x any)        { h.ids = append(h.ids, x.(int)) }
func (h *nodeHeap) Pop() any {
	old := h.ids
	n := len(old)
	x := old[n-1]
	h.ids = old[:n-1]
	return x
}

// TopoOrder emits every node after the nodes it depends on. Cycles are
// collapsed into their components; members of a component are emitted
// together, load-time dependencies first and otherwise in discovery order.
// Among ready components the one discovered first wins, so the result is
// deterministic.
func (g *Graph) TopoOrder() Order {
	components := g.StronglyConnected()
	owner := make([]int, len(g.nodes))
	for c, members := range components {
		for _, m := range members {
			owner[m] = c
		}
	}

	// pending[c] counts the distinct components c still waits on.
	pending := make([]int, len(components))
	dependents := make([][]int, len(components))
	seen := make(map[[2]int]bool)
	for from := range g.nodes {
		for _, to := range g.Dependencies(from) {
			cf, ct := owner[from], owner[to]
			if cf == ct || seen[[2]int{cf, ct}] {
				continue
			}
			seen[[2]int{cf, ct}] = true
			pending[cf]++
			dependents[ct] = append(dependents[ct], cf)
		}
	}

	keys := make([]int, len(components))
	for c, members := range components {
		keys[c] = members[0]
	}
	ready := &componentHeap{keys: keys}
	for c := range components {
		if pending[c] == 0 {
			ready.ids = append(ready.ids, c)
		}
	}
	heap.Init(ready)

	order := Order{Nodes: make([]int, 0, len(g.nodes))}
	for ready.Len() > 0 {
		c := heap.Pop(ready).(int)
		arranged, stuck := g.arrange(components[c])
		order.Nodes = append(order.Nodes, arranged...)
		order.Nodes = append(order.Nodes, stuck...)
		for _, d := range dependents[c] {
			pending[d]--
			if pending[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}
	order.Cycles = g.cycles(components)
	return order
}

// arrange orders the members of one component so that load-time
// dependencies come first, breaking ties by discovery order. Members
// waiting on a load-time cycle cannot be placed and are returned as stuck,
// in discovery order.
func (g *Graph) arrange(members []int) (ordered, stuck []int) {
	if len(members) == 1 {
		if g.IsLoadEdge(members[0], members[0]) {
			return nil, members
		}
		return members, nil
	}

	in := make(map[int]bool, len(members))
	for _, m := range members {
		in[m] = true
	}
	pending := make(map[int]int, len(members))
	dependents := make(map[int][]int, len(members))
	for _, m := range members {
		for _, d := range g.LoadDependencies(m) {
			if in[d] {
				pending[m]++
				dependents[d] = append(dependents[d], m)
			}
		}
	}

	ready := &nodeHeap{}
	for _, m := range members {
		if pending[m] == 0 {
			ready.ids = append(ready.ids, m)
		}
	}
	heap.Init(ready)
	placed := make(map[int]bool, len(members))
	for ready.Len() > 0 {
		m := heap.Pop(ready).(int)
		ordered = append(ordered, m)
		placed[m] = true
		for _, d := range dependents[m] {
			pending[d]--
			if pending[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}
	for _, m := range members {
		if !placed[m] {
			stuck = append(stuck, m)
		}
	}
	return ordered, stuck
}

// IDs maps node indexes to their IDs.
func (g *Graph) IDs(nodes []int) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, g.nodes[n].ID)
	}
	return ids
}
