package bundler

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"pybundle/internal/core/errors"
	"pybundle/internal/engine/graph"
	"pybundle/internal/engine/parser"
	"pybundle/internal/engine/resolver"
	"pybundle/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
)

// Rename records a name that had to change to avoid a collision.
type Rename struct {
	Module string
	From   string
	To     string
}

// Advisory is a tolerated definition cycle. Its members are emitted
// together, load-time dependencies first.
type Advisory struct {
	Members []string
}

// ImportLine is one statement of the preamble.
type ImportLine struct {
	Import    *resolver.PreservedImport
	Name      string
	Statement string
}

// Placed is a definition in its final position with its rewritten text.
type Placed struct {
	Entry *resolver.Entry
	Text  string
}

func (p Placed) Name() string { return p.Entry.Def.Name }

// Unit is a bundle ready to be rendered.
type Unit struct {
	Entry       resolver.DefKey
	Imports     []ImportLine
	Definitions []Placed
	Renames     []Rename
	Advisories  []Advisory
	Unresolved  []resolver.UnresolvedReference
	Warnings    []string
}

// Bundle orders the closure, settles final names and rewrites each
// definition's text.
func Bundle(ctx context.Context, closure *resolver.Closure) (*Unit, error) {
	_, span := observability.Tracer.Start(ctx, "bundler.Bundle")
	defer span.End()
	started := time.Now()
	defer func() {
		observability.PhaseDuration.WithLabelValues("bundle").Observe(time.Since(started).Seconds())
	}()

	g, via, err := buildGraph(closure)
	if err != nil {
		return nil, err
	}
	g.RecordMetrics()

	order := g.TopoOrder()
	advisories, err := checkCycles(g, via, order.Cycles)
	if err != nil {
		return nil, err
	}

	names, err := assignNames(closure)
	if err != nil {
		return nil, err
	}

	unit := &Unit{
		Entry:      closure.Entry,
		Renames:    names.renames,
		Advisories: advisories,
		Unresolved: closure.Unresolved,
		Warnings:   closure.Warnings,
	}
	unit.Imports = preamble(closure.Imports, names)
	for _, idx := range order.Nodes {
		e := closure.Entries[idx]
		unit.Definitions = append(unit.Definitions, Placed{Entry: e, Text: rewrite(e, names)})
	}

	observability.PreservedImports.Set(float64(len(unit.Imports)))
	observability.RenamedNamesTotal.Add(float64(len(unit.Renames)))
	observability.CycleAdvisoriesTotal.Add(float64(len(unit.Advisories)))
	span.SetAttributes(
		attribute.Int("bundle.definitions", len(unit.Definitions)),
		attribute.Int("bundle.imports", len(unit.Imports)),
		attribute.Int("bundle.renames", len(unit.Renames)),
	)
	return unit, nil
}

// callPaths maps a load-time edge added through a call to the functions the
// call runs through.
type callPaths map[[2]int][]string

// buildGraph adds a node per closure entry, in discovery order, and an edge
// for every reference. An edge is load-time when the reference runs while
// the module loads: directly, inside a function called at load time, or
// because a rebinding of the same name has to wait for it. A function may
// call itself, so lazy self references add no edge.
func buildGraph(closure *resolver.Closure) (*graph.Graph, callPaths, error) {
	g := graph.NewGraph()
	for _, e := range closure.Entries {
		g.AddNode(e.Key().String())
	}
	b := &graphBuilder{closure: closure, g: g, via: make(callPaths)}
	for _, e := range closure.Entries {
		for _, ref := range e.Refs {
			if ref.Kind != resolver.RefDefinition {
				continue
			}
			if ref.Target == e.Key() && !ref.Occurrence.Eager {
				continue
			}
			if err := b.edge(e, ref.Target, ref.Occurrence.Eager); err != nil {
				return nil, nil, err
			}
		}
	}
	for _, e := range closure.Entries {
		for _, ref := range e.Refs {
			if !ref.Occurrence.Eager || !calls(ref) {
				continue
			}
			if err := b.followCall(e, ref.Target, nil, make(map[resolver.DefKey]bool)); err != nil {
				return nil, nil, err
			}
		}
	}
	if err := b.rebindings(); err != nil {
		return nil, nil, err
	}
	return g, b.via, nil
}

type graphBuilder struct {
	closure *resolver.Closure
	g       *graph.Graph
	via     callPaths
}

func (b *graphBuilder) edge(from *resolver.Entry, to resolver.DefKey, loadTime bool) error {
	add := b.g.AddEdge
	if loadTime {
		add = b.g.AddLoadEdge
	}
	if err := add(from.Key().String(), to.String()); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "build definition graph")
	}
	return nil
}

// calls reports whether the reference is the callee of a call and names the
// called definition itself, not an attribute of it.
func calls(ref resolver.ResolvedRef) bool {
	return ref.Kind == resolver.RefDefinition && ref.Occurrence.Called && ref.Consumed == len(ref.Occurrence.Attrs)
}

// followCall makes what the body of a function called by from at load time
// references a load-time dependency of from, following further calls.
// Calling a class runs methods this pass does not follow.
func (b *graphBuilder) followCall(from *resolver.Entry, callee resolver.DefKey, path []string, visited map[resolver.DefKey]bool) error {
	fn, ok := b.closure.Lookup(callee)
	if !ok || fn.Def.Kind != parser.KindFunction || visited[callee] {
		return nil
	}
	visited[callee] = true
	path = append(path[:len(path):len(path)], callee.String())

	for _, ref := range fn.Refs {
		if ref.Kind != resolver.RefDefinition || !ref.Occurrence.RunsOnCall() {
			continue
		}
		target, _ := b.closure.Lookup(ref.Target)
		if !b.g.IsLoadEdge(from.Index, target.Index) {
			if err := b.edge(from, ref.Target, true); err != nil {
				return err
			}
			b.via[[2]int{from.Index, target.Index}] = path
		}
		if calls(ref) {
			if err := b.followCall(from, ref.Target, path, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// rebindings orders statements that bind the same module-level name: each
// comes after the binding it replaces, and after every definition that
// still uses the binding it replaces while the module loads.
func (b *graphBuilder) rebindings() error {
	bound := make(map[resolver.NameKey][]*resolver.Entry)
	for _, e := range b.closure.Entries {
		for _, name := range e.Def.Names {
			key := resolver.NameKey{Module: e.Module.Ref.Name, Name: name}
			bound[key] = append(bound[key], e)
		}
	}
	for _, entries := range bound {
		if len(entries) < 2 {
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Def.Span.Start < entries[j].Def.Span.Start })
		for i := 1; i < len(entries); i++ {
			if err := b.edge(entries[i], entries[i-1].Key(), true); err != nil {
				return err
			}
		}
	}

	for _, e := range b.closure.Entries {
		for _, ref := range e.Refs {
			if ref.Kind != resolver.RefDefinition || !ref.Occurrence.Eager {
				continue
			}
			old, _ := b.closure.Lookup(ref.Target)
			key := resolver.NameKey{Module: ref.Target.Module, Name: ref.TargetName}
			for _, later := range bound[key] {
				if later == e || later.Def.Span.Start <= old.Def.Span.Start {
					continue
				}
				if err := b.edge(later, e.Key(), true); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// checkCycles tolerates a cycle as long as its members can be ordered by
// their load-time dependencies. A cycle of load-time dependencies means
// some definition would run before a name it needs exists.
func checkCycles(g *graph.Graph, via callPaths, cycles []graph.Cycle) ([]Advisory, error) {
	var advisories []Advisory
	for _, c := range cycles {
		ids := c.IDs(g)
		if len(c.Stuck) > 0 {
			chain := g.IDs(c.Stuck)
			for _, m := range c.Stuck {
				if path, ok := g.FindLoadChain(m, m); ok {
					chain = explain(g, via, path)
					break
				}
			}
			return nil, errors.Newf(errors.CodeCyclicDefinitionOrder,
				"definitions need each other while the module loads: %s", strings.Join(chain, " -> ")).
				WithContext(errors.CtxSymbol, chain[0])
		}
		slog.Info("definition cycle ordered by load-time dependencies", "members", strings.Join(ids, ", "))
		advisories = append(advisories, Advisory{Members: ids})
	}
	return advisories, nil
}

// explain renders a load-time chain, spelling out the calls behind each
// step.
func explain(g *graph.Graph, via callPaths, path []int) []string {
	var out []string
	for i, n := range path {
		out = append(out, g.Node(n).ID)
		if i+1 < len(path) {
			out = append(out, via[[2]int{n, path[i+1]}]...)
		}
	}
	return out
}

type names struct {
	*namer
	defs    map[resolver.NameKey]string
	imports map[*resolver.PreservedImport]string
}

// assignNames claims names in a fixed order: the entry definition keeps its
// name, then the preserved imports, then every other definition by
// discovery order. Builtins, unresolved names and globals created by
// functions are reserved right after the entry since they cannot be
// renamed.
func assignNames(closure *resolver.Closure) (*names, error) {
	n := &names{
		namer:   newNamer(),
		defs:    make(map[resolver.NameKey]string),
		imports: make(map[*resolver.PreservedImport]string),
	}

	claimDef := func(e *resolver.Entry) error {
		for _, name := range e.Def.Names {
			key := resolver.NameKey{Module: e.Module.Ref.Name, Name: name}
			final, err := n.claim(name, definitionOwner(key), key.Module, true)
			if err != nil {
				return errors.AddContext(err, errors.CtxPath, e.Module.Ref.Path)
			}
			n.defs[key] = final
		}
		return nil
	}

	entries := closure.Entries
	if len(entries) > 0 {
		if err := claimDef(entries[0]); err != nil {
			return nil, err
		}
	}
	for _, e := range entries {
		for _, ref := range e.Refs {
			var err error
			switch ref.Kind {
			case resolver.RefBuiltin:
				err = n.reserve(ref.Occurrence.Name, "builtin "+ref.Occurrence.Name)
			case resolver.RefUnresolved:
				err = n.reserve(ref.Occurrence.Name, "unresolved "+ref.Occurrence.Name)
			case resolver.RefGlobal:
				err = n.reserve(ref.Occurrence.Name, "global "+e.Module.Ref.Name+"."+ref.Occurrence.Name)
			}
			if err != nil {
				return nil, errors.AddContext(err, errors.CtxModule, e.Module.Ref.Name)
			}
		}
	}
	for _, imp := range closure.Imports {
		local := imp.LocalName()
		if local == "" || imp.Future {
			continue
		}
		final, err := n.claim(local, importOwner(imp), imp.Module, imp.Aliasable())
		if err != nil {
			return nil, err
		}
		n.imports[imp] = final
	}
	for i := 1; i < len(entries); i++ {
		if err := claimDef(entries[i]); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// final returns the bundle name a reference resolves to, or "" when the
// reference text stays as written.
func (n *names) final(ref resolver.ResolvedRef) string {
	switch ref.Kind {
	case resolver.RefDefinition:
		return n.defs[resolver.NameKey{Module: ref.Target.Module, Name: ref.TargetName}]
	case resolver.RefImport:
		return n.imports[ref.Import]
	}
	return ""
}

// preamble lists __future__ imports first, then the others in the order they
// were encountered.
func preamble(imports []*resolver.PreservedImport, n *names) []ImportLine {
	ordered := make([]*resolver.PreservedImport, 0, len(imports))
	for _, imp := range imports {
		if imp.Future {
			ordered = append(ordered, imp)
		}
	}
	for _, imp := range imports {
		if !imp.Future {
			ordered = append(ordered, imp)
		}
	}

	var lines []ImportLine
	seen := make(map[string]bool)
	for _, imp := range ordered {
		name := imp.LocalName()
		if final, ok := n.imports[imp]; ok {
			name = final
		}
		stmt := imp.Statement(name)
		if seen[stmt] {
			continue
		}
		seen[stmt] = true
		lines = append(lines, ImportLine{Import: imp, Name: name, Statement: stmt})
	}
	return lines
}

type edit struct {
	start, end uint
	text       string
}

// rewrite returns the definition's verbatim text with references and bound
// names replaced by their bundle names. Consumed module attribute chains
// (util.helper) collapse into the target name.
func rewrite(e *resolver.Entry, n *names) string {
	def := e.Def
	source := e.Module.Source
	var edits []edit

	for _, ref := range e.Refs {
		final := n.final(ref)
		if final == "" {
			continue
		}
		occ := ref.Occurrence
		end := occ.ChainEnd(ref.Consumed)
		if string(source[occ.Span.Start:end]) == final {
			continue
		}
		edits = append(edits, edit{start: occ.Span.Start, end: end, text: final})
	}
	for name, sites := range def.NameSites {
		final := n.defs[resolver.NameKey{Module: e.Module.Ref.Name, Name: name}]
		if final == "" || final == name {
			continue
		}
		for _, site := range sites {
			edits = append(edits, edit{start: site.Start, end: site.End, text: final})
		}
	}

	text := def.Text()
	if len(edits) == 0 {
		return string(text)
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var b strings.Builder
	cursor := def.Span.Start
	for _, ed := range edits {
		if ed.start < cursor || ed.end > def.Span.End {
			continue
		}
		b.Write(source[cursor:ed.start])
		b.WriteString(ed.text)
		cursor = ed.end
	}
	b.Write(source[cursor:def.Span.End])
	return b.String()
}

// DefinitionNames returns the emitted definition names, in order.
func (u *Unit) DefinitionNames() []string {
	out := make([]string, 0, len(u.Definitions))
	for _, d := range u.Definitions {
		out = append(out, d.Name())
	}
	return out
}

// ImportStatements returns the preamble statements, in order.
func (u *Unit) ImportStatements() []string {
	out := make([]string, 0, len(u.Imports))
	for _, l := range u.Imports {
		out = append(out, l.Statement)
	}
	return out
}
