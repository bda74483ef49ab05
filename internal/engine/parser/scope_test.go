package parser

import (
	"reflect"
	"testing"
)

func freeNames(t *testing.T, code, name string) *References {
	t.Helper()
	mod := parseSource(t, "scope_test", code)
	def, ok := mod.Definition(name)
	if !ok {
		t.Fatalf("definition %s not found", name)
	}
	return def.References()
}

func TestFreeNames(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		def    string
		expect []string
	}{
		{
			name: "parameters and locals are bound",
			code: `def f(a, b=DEFAULT, *args, c: Kind = 1, **kw):
    total = a + b
    for item in args:
        total += item
    return helper(total, c, kw)
`,
			def:    "f",
			expect: []string{"DEFAULT", "Kind", "helper"},
		},
		{
			name: "recursion is a free name",
			code: `def fact(n):
    return 1 if n == 0 else n * fact(n - 1)
`,
			def:    "fact",
			expect: []string{"fact"},
		},
		{
			name: "class scope is invisible to methods",
			code: `class A(Base, metaclass=Meta):
    size = 3
    doubled = size * 2

    def m(self):
        return size + len(self.items)
`,
			def:    "A",
			expect: []string{"Base", "Meta", "size", "len"},
		},
		{
			name: "comprehension targets are local",
			code: `def f(rows):
    return [transform(r) for r in rows if r not in SKIP]
`,
			def:    "f",
			expect: []string{"transform", "SKIP"},
		},
		{
			name: "global declaration makes a name free",
			code: `def bump():
    global COUNT
    COUNT = COUNT + 1
`,
			def:    "bump",
			expect: []string{"COUNT"},
		},
		{
			name: "nonlocal resolves to the enclosing function",
			code: `def outer():
    n = 0
    def inner():
        nonlocal n
        n = n + 1
    return inner
`,
			def:    "outer",
			expect: nil,
		},
		{
			name: "walrus binds in the enclosing function",
			code: `def f(values):
    if (n := len(values)) > LIMIT:
        return n
    return [y for v in values if (y := v)]
`,
			def:    "f",
			expect: []string{"len", "LIMIT"},
		},
		{
			name: "lambda and with and except",
			code: `def f(path):
    key = lambda item: item.name or FALLBACK
    with open(path) as fh:
        try:
            return sorted(fh, key=key)
        except ValueError as exc:
            raise Wrapped(exc)
`,
			def:    "f",
			expect: []string{"FALLBACK", "open", "sorted", "ValueError", "Wrapped"},
		},
		{
			name: "nested import binds locally",
			code: `def f():
    import json
    from pkg import tool as t
    return json.dumps(t())
`,
			def:    "f",
			expect: nil,
		},
		{
			name: "decorators and annotations",
			code: `@decorator_factory(cli_group)
def command(cfg: "Config") -> Result:
    return cfg
`,
			def:    "command",
			expect: []string{"decorator_factory", "cli_group", "Config", "Result"},
		},
		{
			name: "match capture patterns",
			code: `def f(event):
    match event:
        case Click(x=px):
            return px
        case Color.RED:
            return 1
        case other:
            return other
`,
			def:    "f",
			expect: []string{"Click", "Color"},
		},
		{
			name: "binding right-hand side",
			code: `cli_group = CliGroup(name=NAME)
`,
			def:    "cli_group",
			expect: []string{"CliGroup", "NAME"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := freeNames(t, tt.code, tt.def)
			if !reflect.DeepEqual(refs.Names, tt.expect) {
				t.Errorf("expected free names %v, got %v", tt.expect, refs.Names)
			}
		})
	}
}

func TestOccurrenceDetails(t *testing.T) {
	code := `def f():
    return am.util.run(CONST)

class Node:
    edge: "graph.Edge"
    def link(self) -> "Edge":
        return Edge()
`
	mod := parseSource(t, "occ", code)

	f, _ := mod.Definition("f")
	occs := f.References().Occurrences
	if len(occs) != 2 {
		t.Fatalf("expected 2 occurrences, got %+v", occs)
	}
	am := occs[0]
	if am.Name != "am" || !reflect.DeepEqual(am.Attrs, []string{"util", "run"}) {
		t.Fatalf("expected chain am.util.run, got %+v", am)
	}
	if got := string(mod.Source[am.Span.Start:am.ChainEnd(2)]); got != "am.util.run" {
		t.Errorf("expected chain text am.util.run, got %q", got)
	}
	if got := string(mod.Source[am.Span.Start:am.ChainEnd(1)]); got != "am.util" {
		t.Errorf("expected chain prefix am.util, got %q", got)
	}
	if am.Eager || am.Depth != 1 || !am.RunsOnCall() {
		t.Errorf("expected a deferred reference that runs when f is called, got %+v", am)
	}
	if !am.Called {
		t.Error("expected am.util.run to be marked as called")
	}
	if occs[1].Called {
		t.Error("expected the CONST argument not to be marked as called")
	}

	node, _ := mod.Definition("Node")
	byName := map[string]Occurrence{}
	for _, occ := range node.References().Occurrences {
		if _, ok := byName[occ.Name]; !ok {
			byName[occ.Name] = occ
		}
	}
	graph, ok := byName["graph"]
	if !ok || !graph.Quoted || graph.Eager || !reflect.DeepEqual(graph.Attrs, []string{"Edge"}) {
		t.Fatalf("expected a quoted graph.Edge reference that never runs, got %+v", graph)
	}
	if got := string(mod.Source[graph.Span.Start:graph.ChainEnd(1)]); got != "graph.Edge" {
		t.Errorf("expected quoted chain text graph.Edge, got %q", got)
	}
	edge := byName["Edge"]
	if !edge.Quoted || edge.Eager || edge.RunsOnCall() {
		t.Errorf("expected the first Edge occurrence to be the quoted return annotation, got %+v", edge)
	}
}

func TestOccurrenceLoadTiming(t *testing.T) {
	code := `@register
@options(DEFAULTS)
def handler(x: Kind, y=fallback()) -> Result:
    inner = lambda: later()
    return helper(x)
`
	mod := parseSource(t, "timing", code)
	def, _ := mod.Definition("handler")

	byName := map[string]Occurrence{}
	for _, occ := range def.References().Occurrences {
		byName[occ.Name] = occ
	}
	tests := []struct {
		name   string
		eager  bool
		called bool
		depth  int
	}{
		{name: "register", eager: true, called: true},
		{name: "options", eager: true, called: true},
		{name: "DEFAULTS", eager: true},
		{name: "Kind", eager: true},
		{name: "fallback", eager: true, called: true},
		{name: "Result", eager: true},
		{name: "later", called: true, depth: 2},
		{name: "helper", called: true, depth: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ, ok := byName[tt.name]
			if !ok {
				t.Fatalf("no occurrence of %s", tt.name)
			}
			if occ.Eager != tt.eager || occ.Called != tt.called || occ.Depth != tt.depth {
				t.Errorf("expected eager=%v called=%v depth=%d, got %+v", tt.eager, tt.called, tt.depth, occ)
			}
		})
	}
}

func TestLazyAnnotationsNeverRun(t *testing.T) {
	code := `from __future__ import annotations


def f(x: Kind = DEFAULT) -> Result:
    return x
`
	mod := parseSource(t, "lazy", code)
	def, _ := mod.Definition("f")
	for _, occ := range def.References().Occurrences {
		want := occ.Name == "DEFAULT"
		if occ.Eager != want {
			t.Errorf("expected %s eager=%v, got %+v", occ.Name, want, occ)
		}
	}
}

func TestGlobalStoresAreOccurrences(t *testing.T) {
	code := `def bump():
    global counter, created
    counter += 1
    created = True
`
	mod := parseSource(t, "glob", code)
	def, _ := mod.Definition("bump")
	occs := def.References().Occurrences

	var got []string
	for _, occ := range occs {
		got = append(got, string(mod.Source[occ.Span.Start:occ.Span.End]))
		if !occ.Store {
			t.Errorf("expected %s at %d to be a store", occ.Name, occ.Span.Start)
		}
	}
	want := []string{"counter", "created", "counter", "created"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected occurrences %v, got %v", want, got)
	}
	if !reflect.DeepEqual(def.References().Names, []string{"counter", "created"}) {
		t.Errorf("unexpected free names %v", def.References().Names)
	}
}

func TestNestedImportsReported(t *testing.T) {
	refs := freeNames(t, "def f():\n    from .sibling import thing\n    return thing\n", "f")
	if len(refs.NestedImports) != 1 {
		t.Fatalf("expected one nested import, got %d", len(refs.NestedImports))
	}
	imp := refs.NestedImports[0]
	if imp.Level != 1 || imp.Module != "sibling" || imp.Name != "thing" {
		t.Errorf("unexpected nested import %+v", imp)
	}
}
