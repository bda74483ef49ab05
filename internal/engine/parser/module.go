package parser

import (
	"pybundle/internal/shared/util"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Module is a parsed source module with its symbol table.
type Module struct {
	Ref    ModuleRef
	Source []byte

	// Definitions in source order.
	Definitions []*Definition
	// Imports in source order, including imports nested in top-level
	// if/try/with blocks.
	Imports []*ImportBinding

	bindings map[string]Binding
	// history keeps every binding of a name in source order.
	history map[string][]Binding
	primary map[string]int
	stars   []*ImportBinding
	tree    *sitter.Tree
}

func newModule(ref ModuleRef, source []byte) *Module {
	return &Module{
		Ref:      ref,
		Source:   source,
		bindings: make(map[string]Binding),
		history:  make(map[string][]Binding),
		primary:  make(map[string]int),
	}
}

// Lookup returns what a top-level name refers to. A later statement binding
// the same name replaces an earlier one.
func (m *Module) Lookup(name string) (Binding, bool) {
	b, ok := m.bindings[name]
	return b, ok
}

// LookupBefore returns the binding a name has while the module loads, just
// before offset: the latest statement binding it that ends at or before
// offset.
func (m *Module) LookupBefore(name string, offset uint) (Binding, bool) {
	bindings := m.history[name]
	for i := len(bindings) - 1; i >= 0; i-- {
		if bindings[i].span().End <= offset {
			return bindings[i], true
		}
	}
	return Binding{}, false
}

// LazyAnnotations reports whether the module defers annotation evaluation
// with "from __future__ import annotations".
func (m *Module) LazyAnnotations() bool {
	for _, imp := range m.Imports {
		if imp.Future && imp.Name == "annotations" {
			return true
		}
	}
	return false
}

// Definition returns the definition bound to name, if the name is bound to a
// definition rather than an import.
func (m *Module) Definition(name string) (*Definition, bool) {
	b, ok := m.bindings[name]
	if !ok || b.Def == nil {
		return nil, false
	}
	return b.Def, true
}

// StarImports returns the "from m import *" statements of the module.
func (m *Module) StarImports() []*ImportBinding {
	return m.stars
}

// Names returns every top-level bound name, sorted.
func (m *Module) Names() []string {
	return util.SortedStringKeys(m.bindings)
}

// Close releases the syntax tree. Definitions must not compute references
// after Close.
func (m *Module) Close() {
	if m.tree != nil {
		m.tree.Close()
		m.tree = nil
	}
}

func (m *Module) bindDefinition(name string, def *Definition) {
	m.bindings[name] = Binding{Def: def}
	m.history[name] = append(m.history[name], Binding{Def: def})
}

// addDefinition appends def and numbers it among the definitions sharing
// its primary name.
func (m *Module) addDefinition(def *Definition) {
	def.Rebind = m.primary[def.Name]
	m.primary[def.Name]++
	for _, name := range def.Names {
		m.bindDefinition(name, def)
	}
	m.Definitions = append(m.Definitions, def)
}

func (m *Module) bindImport(imp *ImportBinding) {
	m.Imports = append(m.Imports, imp)
	switch {
	case imp.Kind == ImportStar:
		m.stars = append(m.stars, imp)
	case imp.LocalName != "":
		m.bindings[imp.LocalName] = Binding{Import: imp}
		m.history[imp.LocalName] = append(m.history[imp.LocalName], Binding{Import: imp})
	}
}
