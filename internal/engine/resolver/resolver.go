package resolver

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pybundle/internal/core/errors"
	"pybundle/internal/engine/parser"
	"pybundle/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxSuggestedNames caps the module names listed when the entry symbol is
// missing.
const maxSuggestedNames = 20

type Options struct {
	// Strict turns unresolved free names into errors; otherwise they are
	// reported as warnings and left untouched in the bundle.
	Strict bool
	// Builtins extends the builtin allow-list.
	Builtins []string
}

// Resolver computes the local closure of an entry definition.
type Resolver struct {
	loader     *ModuleLoader
	finder     *PythonResolver
	classifier *Classifier
	strict     bool
	builtins   map[string]bool
}

func NewResolver(loader *ModuleLoader, finder *PythonResolver, classifier *Classifier, opts Options) *Resolver {
	builtins := make(map[string]bool, len(opts.Builtins))
	for _, name := range opts.Builtins {
		builtins[name] = true
	}
	return &Resolver{
		loader:     loader,
		finder:     finder,
		classifier: classifier,
		strict:     opts.Strict,
		builtins:   builtins,
	}
}

type target struct {
	kind     RefKind
	module   *parser.Module
	def      *parser.Definition
	name     string
	imp      *PreservedImport
	consumed int
}

// Resolve walks free names breadth-first from the entry symbol. Each
// definition is marked when it is queued, so mutually recursive
// definitions are processed once.
func (r *Resolver) Resolve(ctx context.Context, entry parser.ModuleRef, symbol string) (*Closure, error) {
	ctx, span := observability.Tracer.Start(ctx, "resolver.Resolve", trace.WithAttributes(
		attribute.String("entry.module", entry.Name),
		attribute.String("entry.symbol", symbol),
	))
	defer span.End()
	started := time.Now()
	defer func() {
		observability.PhaseDuration.WithLabelValues("resolve").Observe(time.Since(started).Seconds())
	}()

	mod, err := r.loader.Load(entry)
	if err != nil {
		return nil, err
	}
	start, err := r.lookupEntry(mod, symbol)
	if err != nil {
		return nil, err
	}

	closure := newClosure()
	first, _ := closure.add(start.module, start.def)
	closure.Entry = first.Key()

	queue := []*Entry{first}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := queue[0]
		queue = queue[1:]

		discovered, err := r.process(closure, e)
		if err != nil {
			return nil, err
		}
		queue = append(queue, discovered...)
	}

	r.preserveFutureImports(closure)
	span.SetAttributes(
		attribute.Int("closure.definitions", len(closure.Entries)),
		attribute.Int("closure.imports", len(closure.Imports)),
	)
	slog.Debug("closure resolved",
		"entry", closure.Entry.String(),
		"definitions", len(closure.Entries),
		"imports", len(closure.Imports),
		"modules", r.loader.Len(),
	)
	return closure, nil
}

func (r *Resolver) lookupEntry(mod *parser.Module, symbol string) (target, error) {
	notFound := func() error {
		de := errors.Newf(errors.CodeEntryNotFound, "symbol %q not found", symbol).
			WithContext(errors.CtxModule, mod.Ref.Name).
			WithContext(errors.CtxSymbol, symbol)
		if names := mod.Names(); len(names) > 0 && len(names) <= maxSuggestedNames {
			de.WithContext("defined", strings.Join(names, ","))
		}
		return de
	}
	b, ok := mod.Lookup(symbol)
	if !ok {
		return target{}, notFound()
	}
	t := target{kind: RefDefinition, module: mod, def: b.Def, name: symbol}
	if b.Def == nil {
		// The entry may be re-exported from another local module.
		var err error
		t, err = r.resolveImport(mod, b.Import, nil, make(map[string]bool))
		if err != nil || t.kind != RefDefinition || t.consumed != 0 {
			return target{}, notFound()
		}
	}
	if t.def.Kind == parser.KindBinding {
		return target{}, errors.Newf(errors.CodeEntryNotFound,
			"%q is a module-level binding; the entry must be a function or class", symbol).
			WithContext(errors.CtxModule, t.module.Ref.Name).
			WithContext(errors.CtxSymbol, symbol)
	}
	return t, nil
}

func (r *Resolver) process(closure *Closure, e *Entry) ([]*Entry, error) {
	refs := e.Def.References()
	for _, imp := range refs.NestedImports {
		if err := r.checkNestedImport(closure, e, imp); err != nil {
			return nil, err
		}
	}

	var discovered []*Entry
	deps := make(map[DefKey]bool)
	for _, occ := range refs.Occurrences {
		t, err := r.resolveOccurrence(e, occ)
		if err != nil {
			err = errors.AddContextIfAbsent(err, errors.CtxPath, e.Module.Ref.Path)
			return nil, errors.AddContextIfAbsent(err, errors.CtxLine, lineOf(e.Module.Source, occ.Span.Start))
		}

		ref := ResolvedRef{Occurrence: occ, Kind: t.kind, Consumed: t.consumed}
		switch t.kind {
		case RefDefinition:
			key := keyOf(t.module, t.def)
			ref.Target = key
			ref.TargetName = t.name
			if added, isNew := closure.add(t.module, t.def); isNew {
				discovered = append(discovered, added)
			}
			if !deps[key] {
				deps[key] = true
				e.Deps = append(e.Deps, key)
			}
		case RefImport:
			ref.Import = closure.preserve(t.imp)
		case RefUnresolved:
			closure.Unresolved = append(closure.Unresolved, UnresolvedReference{
				Name:   occ.Name,
				Module: e.Module.Ref.Name,
				Location: parser.Location{
					File: e.Module.Ref.Path,
					Line: lineOf(e.Module.Source, occ.Span.Start),
				},
			})
		}
		e.Refs = append(e.Refs, ref)
	}
	return discovered, nil
}

func (r *Resolver) resolveOccurrence(e *Entry, occ parser.Occurrence) (target, error) {
	mod := e.Module
	var t target
	var err error
	if b, ok := bindingAtLoad(e, occ); ok {
		visited := map[string]bool{mod.Ref.Name + ":" + occ.Name: true}
		t, err = r.resolveBinding(mod, b, occ.Name, occ.Attrs, visited)
	} else {
		t, err = r.resolveName(mod, occ.Name, occ.Attrs, make(map[string]bool))
	}
	if err != nil || t.kind != RefUnresolved {
		return t, err
	}

	if occ.Store {
		return target{kind: RefGlobal}, nil
	}
	if IsBuiltin(occ.Name) || r.builtins[occ.Name] {
		return target{kind: RefBuiltin}, nil
	}
	if t.imp != nil {
		// Provided by an external star import; keep the star import.
		return target{kind: RefImport, imp: t.imp}, nil
	}
	if r.strict {
		return target{}, errors.Newf(errors.CodeUnresolvedReference, "name %q is not bound", occ.Name).
			WithContext(errors.CtxModule, mod.Ref.Name).
			WithContext(errors.CtxSymbol, occ.Name)
	}
	slog.Warn("unresolved reference left as is",
		"module", mod.Ref.Name,
		"name", occ.Name,
		"line", lineOf(mod.Source, occ.Span.Start),
	)
	return target{kind: RefUnresolved}, nil
}

// bindingAtLoad returns the binding an occurrence sees when it runs while
// the module loads: the statement binding the name last before the
// definition, not a later rebinding. Occurrences that run later, or that no
// earlier statement binds, see the module's final binding.
func bindingAtLoad(e *Entry, occ parser.Occurrence) (parser.Binding, bool) {
	if !occ.Eager {
		return parser.Binding{}, false
	}
	return e.Module.LookupBefore(occ.Name, e.Def.Span.Start)
}

// resolveName looks a name up in a module's own namespace: its bindings,
// then its star imports, latest first. An unbound name yields RefUnresolved,
// carrying an external star import that may provide it.
func (r *Resolver) resolveName(mod *parser.Module, name string, attrs []string, visited map[string]bool) (target, error) {
	visitKey := mod.Ref.Name + ":" + name
	if visited[visitKey] {
		return target{}, unresolved(mod, name, "circular re-export of %q", name)
	}
	visited[visitKey] = true

	if b, ok := mod.Lookup(name); ok {
		return r.resolveBinding(mod, b, name, attrs, visited)
	}

	var external *PreservedImport
	stars := mod.StarImports()
	for i := len(stars) - 1; i >= 0; i-- {
		star := stars[i]
		modName, err := r.finder.ResolveRelative(mod.Ref, star.Level, star.Module)
		if err != nil {
			return target{}, unresolved(mod, name, "%v", err)
		}
		origin, ref, found := r.classifier.Classify(modName)
		if origin != OriginLocal {
			if external == nil {
				external = newPreservedImport(star, modName, origin)
			}
			continue
		}
		if !found || strings.HasPrefix(name, "_") {
			continue
		}
		starMod, err := r.loader.Load(ref)
		if err != nil {
			return target{}, err
		}
		if _, ok := starMod.Lookup(name); ok {
			return r.resolveName(starMod, name, attrs, visited)
		}
	}
	return target{kind: RefUnresolved, imp: external}, nil
}

func (r *Resolver) resolveBinding(mod *parser.Module, b parser.Binding, name string, attrs []string, visited map[string]bool) (target, error) {
	if b.Def != nil {
		return target{kind: RefDefinition, module: mod, def: b.Def, name: name}, nil
	}
	return r.resolveImport(mod, b.Import, attrs, visited)
}

func (r *Resolver) resolveImport(mod *parser.Module, imp *parser.ImportBinding, attrs []string, visited map[string]bool) (target, error) {
	absName, err := r.finder.ResolveRelative(mod.Ref, imp.Level, imp.Module)
	if err != nil {
		return target{}, unresolved(mod, imp.LocalName, "%v", err)
	}

	switch imp.Kind {
	case parser.ImportModule:
		origin, _, _ := r.classifier.Classify(absName)
		if origin != OriginLocal {
			return target{kind: RefImport, imp: newPreservedImport(imp, absName, origin)}, nil
		}
		value := absName
		if imp.Alias == "" {
			value = topLevel(absName)
		}
		targetMod, err := r.loadLocal(mod, value, imp)
		if err != nil {
			return target{}, err
		}
		return r.moduleChain(targetMod, attrs, visited)

	case parser.ImportFrom:
		origin, _, _ := r.classifier.Classify(absName)
		if origin != OriginLocal {
			return target{kind: RefImport, imp: newPreservedImport(imp, absName, origin)}, nil
		}
		targetMod, err := r.loadLocal(mod, absName, imp)
		if err != nil {
			return target{}, err
		}
		return r.lookupExport(targetMod, imp.Name, attrs, visited)
	}
	return target{}, unresolved(mod, imp.LocalName, "unsupported import of %s", absName)
}

// loadLocal loads a local import target. A module that imports a
// standard library name and finds itself is shadowing that module.
func (r *Resolver) loadLocal(from *parser.Module, name string, imp *parser.ImportBinding) (*parser.Module, error) {
	_, ref, found := r.classifier.Classify(name)
	if !found {
		return nil, errors.Newf(errors.CodeSourceUnavailable, "local module %s not found", name).
			WithContext(errors.CtxModule, from.Ref.Name)
	}
	mod, err := r.loader.Load(ref)
	if err != nil {
		return nil, err
	}
	if mod == from && imp.Level == 0 && IsStdlibModule(name) {
		return nil, errors.Newf(errors.CodeCyclicStdlibShadow,
			"module %s imports %s and resolves to itself, shadowing the standard library", from.Ref.Name, name).
			WithContext(errors.CtxModule, from.Ref.Name).
			WithContext(errors.CtxPath, from.Ref.Path)
	}
	return mod, nil
}

// lookupExport resolves "from mod import name": a name bound in mod, then a
// submodule mod.name, then a name from an external star import.
func (r *Resolver) lookupExport(mod *parser.Module, name string, attrs []string, visited map[string]bool) (target, error) {
	t, err := r.resolveName(mod, name, attrs, visited)
	if err != nil || t.kind != RefUnresolved {
		return t, err
	}

	sub := mod.Ref.Name + "." + name
	if origin, ref, found := r.classifier.Classify(sub); origin == OriginLocal && found {
		subMod, err := r.loader.Load(ref)
		if err != nil {
			return target{}, err
		}
		return r.moduleChain(subMod, attrs, visited)
	}
	if t.imp != nil {
		return target{kind: RefImport, imp: t.imp}, nil
	}
	return target{}, unresolved(mod, name, "module %s has no name %q", mod.Ref.Name, name)
}

// moduleChain follows attribute access on a local module object until it
// reaches a definition or an external import.
func (r *Resolver) moduleChain(mod *parser.Module, attrs []string, visited map[string]bool) (target, error) {
	cur := mod
	for i, attr := range attrs {
		if _, bound := cur.Lookup(attr); !bound {
			sub := cur.Ref.Name + "." + attr
			if origin, ref, found := r.classifier.Classify(sub); origin == OriginLocal && found {
				next, err := r.loader.Load(ref)
				if err != nil {
					return target{}, err
				}
				cur = next
				continue
			}
		}
		t, err := r.lookupExport(cur, attr, attrs[i+1:], visited)
		if err != nil {
			return target{}, err
		}
		t.consumed += i + 1
		return t, nil
	}
	return target{}, unresolved(cur, cur.Ref.Name,
		"local module %s is used as a value; only its definitions can be bundled", cur.Ref.Name)
}

// checkNestedImport vets an import inside a definition body. It stays in
// the bundled text, so a relative one has no package to resolve against
// once bundled.
func (r *Resolver) checkNestedImport(closure *Closure, e *Entry, imp *parser.ImportBinding) error {
	name, err := r.finder.ResolveRelative(e.Module.Ref, imp.Level, imp.Module)
	origin := OriginLocal
	if err == nil {
		origin, _, _ = r.classifier.Classify(name)
	}
	if origin != OriginLocal {
		return nil
	}
	if imp.IsRelative() && r.strict {
		return errors.Newf(errors.CodeUnresolvedReference,
			"relative import inside %s cannot run from a bundle", e.Def.Name).
			WithContext(errors.CtxModule, e.Module.Ref.Name).
			WithContext(errors.CtxSymbol, e.Def.Name).
			WithContext(errors.CtxPath, e.Module.Ref.Path).
			WithContext(errors.CtxLine, imp.Location.Line)
	}
	msg := fmt.Sprintf("%s: local import inside %s is kept verbatim (line %d)",
		e.Module.Ref.Name, e.Def.Name, imp.Location.Line)
	closure.Warnings = append(closure.Warnings, msg)
	slog.Warn("local import inside a definition body is not inlined",
		"module", e.Module.Ref.Name,
		"definition", e.Def.Name,
		"import", name,
	)
	return nil
}

// preserveFutureImports keeps the __future__ imports of every module that
// contributes definitions; they change how those definitions compile.
func (r *Resolver) preserveFutureImports(closure *Closure) {
	seen := make(map[*parser.Module]bool)
	for _, e := range closure.Entries {
		if seen[e.Module] {
			continue
		}
		seen[e.Module] = true
		for _, imp := range e.Module.Imports {
			if imp.Future {
				closure.preserve(newPreservedImport(imp, "__future__", OriginStdlib))
			}
		}
	}
}

func unresolved(mod *parser.Module, name, format string, args ...interface{}) error {
	return errors.Newf(errors.CodeUnresolvedReference, format, args...).
		WithContext(errors.CtxModule, mod.Ref.Name).
		WithContext(errors.CtxSymbol, name)
}

func lineOf(source []byte, offset uint) int {
	if int(offset) > len(source) {
		offset = uint(len(source))
	}
	return bytes.Count(source[:offset], []byte("\n")) + 1
}
