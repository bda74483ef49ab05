package resolver

import (
	"fmt"
	"strings"

	"pybundle/internal/engine/parser"
)

// DefKey identifies a definition by its module and primary name. Rebind
// tells apart statements binding the same primary name again.
type DefKey struct {
	Module string
	Name   string
	Rebind int
}

func keyOf(mod *parser.Module, def *parser.Definition) DefKey {
	return DefKey{Module: mod.Ref.Name, Name: def.Name, Rebind: def.Rebind}
}

func (k DefKey) String() string {
	if k.Rebind > 0 {
		return fmt.Sprintf("%s:%s#%d", k.Module, k.Name, k.Rebind+1)
	}
	return k.Module + ":" + k.Name
}

// NameKey identifies one name bound by a definition. Tuple bindings bind
// several names under one DefKey.
type NameKey struct {
	Module string
	Name   string
}

type RefKind int

const (
	RefDefinition RefKind = iota
	RefImport
	RefBuiltin
	RefUnresolved
	// RefGlobal is a module global created at run time by a function
	// through a global statement.
	RefGlobal
)

// ResolvedRef is an occurrence together with what it refers to.
type ResolvedRef struct {
	Occurrence parser.Occurrence
	Kind       RefKind
	// Consumed is the number of attributes of the occurrence's chain that
	// were used to reach the target (am.func reaching func consumes 1).
	Consumed int
	Target   DefKey
	// TargetName is the name the target definition binds; it differs from
	// Target.Name only for tuple bindings.
	TargetName string
	Import     *PreservedImport
}

// Entry is one definition of the closure.
type Entry struct {
	Index  int
	Module *parser.Module
	Def    *parser.Definition
	Refs   []ResolvedRef
	// Deps are the distinct definitions this one references, in textual
	// order of first reference.
	Deps []DefKey
}

func (e *Entry) Key() DefKey {
	return keyOf(e.Module, e.Def)
}

// PreservedImport is an external import statement kept verbatim in the bundle.
type PreservedImport struct {
	Kind     parser.ImportKind
	Module   string
	Name     string
	Alias    string
	Future   bool
	Origin   Origin
	Location parser.Location
}

func newPreservedImport(imp *parser.ImportBinding, module string, origin Origin) *PreservedImport {
	return &PreservedImport{
		Kind:     imp.Kind,
		Module:   module,
		Name:     imp.Name,
		Alias:    imp.Alias,
		Future:   imp.Future,
		Origin:   origin,
		Location: imp.Location,
	}
}

// Key is the statement identity used to deduplicate the preamble.
func (p *PreservedImport) Key() string {
	return fmt.Sprintf("%d|%s|%s|%s", p.Kind, p.Module, p.Name, p.Alias)
}

// LocalName is the name the statement binds; star imports bind none.
func (p *PreservedImport) LocalName() string {
	switch {
	case p.Kind == parser.ImportStar:
		return ""
	case p.Alias != "":
		return p.Alias
	case p.Kind == parser.ImportModule:
		return topLevel(p.Module)
	default:
		return p.Name
	}
}

// Value identifies the object the bound name refers to. Two imports with
// the same value may share a name in the bundle.
func (p *PreservedImport) Value() string {
	switch p.Kind {
	case parser.ImportModule:
		if p.Alias != "" {
			return "module:" + p.Module
		}
		return "module:" + topLevel(p.Module)
	case parser.ImportStar:
		return "star:" + p.Module
	default:
		return "from:" + p.Module + ":" + p.Name
	}
}

// Statement renders the import bound to localName, which differs from
// LocalName when the bundler had to alias it.
func (p *PreservedImport) Statement(localName string) string {
	switch p.Kind {
	case parser.ImportStar:
		return "from " + p.Module + " import *"
	case parser.ImportModule:
		if localName == "" || (p.Alias == "" && localName == p.LocalName()) {
			return "import " + p.Module
		}
		return "import " + p.Module + " as " + localName
	default:
		if localName == "" || localName == p.Name {
			return "from " + p.Module + " import " + p.Name
		}
		return "from " + p.Module + " import " + p.Name + " as " + localName
	}
}

// Aliasable reports whether the statement can bind a different name. A
// plain "import a.b" binds "a" and cannot be renamed without changing what
// the name refers to.
func (p *PreservedImport) Aliasable() bool {
	if p.Kind == parser.ImportStar {
		return false
	}
	return !(p.Kind == parser.ImportModule && p.Alias == "" && strings.Contains(p.Module, "."))
}

// UnresolvedReference is a free name tolerated in non-strict mode.
type UnresolvedReference struct {
	Name     string
	Module   string
	Location parser.Location
}

// Closure is the result of one resolution: definitions in discovery order
// and the preserved imports in first-encountered order.
type Closure struct {
	Entry      DefKey
	Entries    []*Entry
	Imports    []*PreservedImport
	Unresolved []UnresolvedReference
	Warnings   []string

	byKey   map[DefKey]*Entry
	imports map[string]*PreservedImport
}

func newClosure() *Closure {
	return &Closure{
		byKey:   make(map[DefKey]*Entry),
		imports: make(map[string]*PreservedImport),
	}
}

func (c *Closure) Lookup(key DefKey) (*Entry, bool) {
	e, ok := c.byKey[key]
	return e, ok
}

func (c *Closure) Len() int { return len(c.Entries) }

func (c *Closure) add(mod *parser.Module, def *parser.Definition) (*Entry, bool) {
	key := keyOf(mod, def)
	if e, ok := c.byKey[key]; ok {
		return e, false
	}
	e := &Entry{Index: len(c.Entries), Module: mod, Def: def}
	c.Entries = append(c.Entries, e)
	c.byKey[key] = e
	return e, true
}

func (c *Closure) preserve(imp *PreservedImport) *PreservedImport {
	if existing, ok := c.imports[imp.Key()]; ok {
		return existing
	}
	c.imports[imp.Key()] = imp
	c.Imports = append(c.Imports, imp)
	return imp
}
