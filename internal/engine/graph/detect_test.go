package graph

import (
	"fmt"
	"reflect"
	"testing"
)

func TestDetectCycles(t *testing.T) {
	// A -> B -> C -> A, D -> D, E standalone.
	g := build(t,
		[]string{"A", "B", "C", "D", "E"},
		[][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}, {"E", "A"}},
	)
	addLoadEdges(t, g, [][2]string{{"D", "D"}})
	cycles := g.DetectCycles()
	if len(cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(cycles))
	}
	if got := cycles[0].IDs(g); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("unexpected first cycle %v", got)
	}
	if cycles[0].SelfLoop || len(cycles[0].Stuck) != 0 {
		t.Errorf("expected the first cycle to be a loadable loop, got %+v", cycles[0])
	}
	if !cycles[1].SelfLoop || len(cycles[1].Stuck) != 1 {
		t.Errorf("expected D to be a stuck self-loop, got %+v", cycles[1])
	}
}

func TestDetectCycles_Deep(t *testing.T) {
	g := NewGraph()
	count := 5000
	for i := 0; i < count; i++ {
		g.AddNode(fmt.Sprintf("m:f%d", i))
	}
	for i := 0; i < count; i++ {
		if err := g.AddEdge(fmt.Sprintf("m:f%d", i), fmt.Sprintf("m:f%d", (i+1)%count)); err != nil {
			t.Fatal(err)
		}
	}
	cycles := g.DetectCycles()
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d", len(cycles))
	}
	if len(cycles[0].Members) != count {
		t.Errorf("expected %d members, got %d", count, len(cycles[0].Members))
	}
	if order := g.TopoOrder(); len(order.Nodes) != count {
		t.Errorf("expected all %d nodes ordered, got %d", count, len(order.Nodes))
	}
}

func TestFindChain(t *testing.T) {
	g := build(t,
		[]string{"A", "B", "C", "D"},
		[][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}, {"A", "D"}},
	)
	a, _ := g.Lookup("A")
	c, _ := g.Lookup("C")
	chain, ok := g.FindChain(a.Index, c.Index)
	if !ok {
		t.Fatal("expected a chain from A to C")
	}
	if got := g.IDs(chain); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("unexpected chain %v", got)
	}

	d, _ := g.Lookup("D")
	if _, ok := g.FindChain(d.Index, a.Index); ok {
		t.Error("expected no chain from D to A")
	}
}

func TestFindLoadChain(t *testing.T) {
	g := build(t,
		[]string{"A", "B", "C"},
		[][2]string{{"A", "C"}, {"C", "A"}},
	)
	addLoadEdges(t, g, [][2]string{{"A", "B"}, {"B", "A"}})

	a, _ := g.Lookup("A")
	chain, ok := g.FindLoadChain(a.Index, a.Index)
	if !ok {
		t.Fatal("expected a load-time loop through A")
	}
	if got := g.IDs(chain); !reflect.DeepEqual(got, []string{"A", "B", "A"}) {
		t.Errorf("unexpected chain %v", got)
	}

	c, _ := g.Lookup("C")
	if _, ok := g.FindLoadChain(c.Index, c.Index); ok {
		t.Error("expected no load-time loop through C")
	}
}
