package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ModuleRef locates a source module. Two refs are the same module when their
// Name matches.
type ModuleRef struct {
	Name      string // dotted logical path, e.g. "pkg.util"
	Path      string // absolute file path
	IsPackage bool   // Path is a package __init__.py
	Namespace bool   // Path is a directory without __init__.py
}

func (r ModuleRef) Equal(other ModuleRef) bool {
	return r.Name == other.Name
}

// Package returns the package a relative import inside this module is
// anchored at.
func (r ModuleRef) Package() string {
	if r.IsPackage || r.Namespace {
		return r.Name
	}
	if idx := lastDot(r.Name); idx >= 0 {
		return r.Name[:idx]
	}
	return ""
}

type DefinitionKind int

const (
	KindFunction DefinitionKind = iota
	KindClass
	KindBinding
)

func (k DefinitionKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	case KindBinding:
		return "binding"
	default:
		return "unknown"
	}
}

// Span is a half-open byte range into a module's source.
type Span struct {
	Start uint
	End   uint
}

func (s Span) Len() uint { return s.End - s.Start }

type Location struct {
	File   string
	Line   int
	Column int
}

// Definition is a top-level function, class or module-level binding.
type Definition struct {
	Name     string   // primary bound name
	Names    []string // every name the statement binds, Name first
	Kind     DefinitionKind
	Span     Span // verbatim text, decorators included
	Location Location
	// NameSites maps each bound name to the ranges where the statement binds it.
	NameSites map[string][]Span
	// Rebind counts the earlier top-level definitions of the module with
	// the same primary name.
	Rebind int

	module *Module
	node   *sitter.Node
	refs   *References
}

// Module returns the owning module.
func (d *Definition) Module() *Module { return d.module }

// Text returns the verbatim source of the definition.
func (d *Definition) Text() []byte {
	return d.module.Source[d.Span.Start:d.Span.End]
}

// Binds reports whether the definition binds name.
func (d *Definition) Binds(name string) bool {
	for _, n := range d.Names {
		if n == name {
			return true
		}
	}
	return false
}

// References returns the free names of the definition. The first call walks
// the syntax tree; later calls return the cached result.
func (d *Definition) References() *References {
	if d.refs == nil {
		d.refs = extractReferences(d)
	}
	return d.refs
}

// FreeNames returns the distinct free names in first-occurrence order.
func (d *Definition) FreeNames() []string {
	return d.References().Names
}

// Occurrence is one use of a free name inside a definition.
type Occurrence struct {
	Name string
	Span Span // the name itself
	// Attrs is the attribute chain following the name (a.b.c -> [b c]) and
	// AttrEnds the end offset of each chain prefix.
	Attrs    []string
	AttrEnds []uint
	// Eager is set when the expression runs while the module loads rather
	// than when a function body executes. String annotations and
	// annotations postponed by a __future__ import never run.
	Eager bool
	// Depth counts the function and lambda bodies around the occurrence
	// inside its definition; 1 is the body of a top-level function.
	Depth int
	// Called marks the callee of a call or a decorator.
	Called bool
	// Store marks a name a function binds in the module namespace through
	// a global statement.
	Store bool
	// Quoted marks a forward reference inside a string annotation.
	Quoted bool
}

// RunsOnCall reports whether the occurrence is evaluated when the top-level
// function holding it is called.
func (o Occurrence) RunsOnCall() bool {
	return o.Depth == 1 && !o.Quoted
}

// ChainEnd returns the end offset of the name followed by the first n attributes.
func (o Occurrence) ChainEnd(n int) uint {
	if n <= 0 || len(o.AttrEnds) == 0 {
		return o.Span.End
	}
	if n > len(o.AttrEnds) {
		n = len(o.AttrEnds)
	}
	return o.AttrEnds[n-1]
}

type References struct {
	Names       []string
	Occurrences []Occurrence
	// NestedImports are imports executed inside function or class bodies.
	// They bind local names and are kept verbatim in the definition text.
	NestedImports []*ImportBinding
}

type ImportKind int

const (
	ImportModule ImportKind = iota // import a.b [as c]
	ImportFrom                     // from m import n [as a]
	ImportStar                     // from m import *
)

// ImportBinding maps a name visible in a module to where it comes from.
type ImportBinding struct {
	Kind ImportKind
	// Module is the module path as written, without leading dots.
	Module string
	// Level is the number of leading dots of a relative import.
	Level int
	// Name is the imported name for from-imports.
	Name  string
	Alias string
	// LocalName is the name bound in the importing module; for
	// "import a.b.c" it is "a".
	LocalName string
	Future    bool
	Span      Span
	Location  Location
}

func (b *ImportBinding) IsRelative() bool { return b.Level > 0 }

// Binding is whatever a top-level name refers to: a definition or an import.
type Binding struct {
	Def    *Definition
	Import *ImportBinding
}

func (b Binding) span() Span {
	if b.Def != nil {
		return b.Def.Span
	}
	return b.Import.Span
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}
