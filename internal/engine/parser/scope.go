package parser

import (
	"sort"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

type scopeKind int

const (
	scopeModule scopeKind = iota
	scopeFunction
	scopeClass
	scopeLambda
	scopeComprehension
)

type scope struct {
	kind      scopeKind
	parent    *scope
	bound     map[string]bool
	globals   map[string]bool
	nonlocals map[string]bool
}

func newScope(kind scopeKind, parent *scope) *scope {
	return &scope{
		kind:      kind,
		parent:    parent,
		bound:     make(map[string]bool),
		globals:   make(map[string]bool),
		nonlocals: make(map[string]bool),
	}
}

func (s *scope) bind(name string) {
	// Module names are owned by the symbol table, not by a definition.
	if s.kind == scopeModule || s.globals[name] || s.nonlocals[name] {
		return
	}
	s.bound[name] = true
}

type pendingLoad struct {
	occ   Occurrence
	scope *scope
}

// referenceWalker collects name loads and bindings per scope in one pass;
// free names are decided afterwards, once every scope has all its bindings.
type referenceWalker struct {
	source   []byte
	path     string
	cur      *scope
	deferred int
	// unevaluated counts enclosing annotations that never run at load time.
	unevaluated     int
	lazyAnnotations bool
	loads           []pendingLoad
	nested          []*ImportBinding
}

func extractReferences(d *Definition) *References {
	if d.node == nil {
		return &References{}
	}
	w := &referenceWalker{
		source:          d.module.Source,
		path:            d.module.Ref.Path,
		cur:             newScope(scopeModule, nil),
		lazyAnnotations: d.module.LazyAnnotations(),
	}
	w.walk(d.node)

	var free []Occurrence
	for _, load := range w.loads {
		if isFree(load) {
			free = append(free, load.occ)
		}
	}
	sort.SliceStable(free, func(i, j int) bool {
		return free[i].Span.Start < free[j].Span.Start
	})

	// counter += 1 under a global statement is a load and a store of the
	// same span; keep one occurrence that is both.
	refs := &References{NestedImports: w.nested}
	for i, occ := range free {
		if i > 0 && occ.Span == free[i-1].Span {
			last := &refs.Occurrences[len(refs.Occurrences)-1]
			last.Store = last.Store || occ.Store
			continue
		}
		refs.Occurrences = append(refs.Occurrences, occ)
	}
	seen := make(map[string]bool)
	for _, occ := range refs.Occurrences {
		if !seen[occ.Name] {
			seen[occ.Name] = true
			refs.Names = append(refs.Names, occ.Name)
		}
	}
	return refs
}

// isFree resolves a load the way the interpreter does: enclosing class
// scopes are invisible to nested functions, and the module scope is never
// a local binding.
func isFree(load pendingLoad) bool {
	name := load.occ.Name
	first := true
	for sc := load.scope; sc != nil; sc = sc.parent {
		if sc.kind == scopeModule || sc.globals[name] {
			return true
		}
		skip := (sc.kind == scopeClass && !first) || sc.nonlocals[name]
		first = false
		if skip {
			continue
		}
		if sc.bound[name] {
			return false
		}
	}
	return true
}

func (w *referenceWalker) push(kind scopeKind) *scope {
	w.cur = newScope(kind, w.cur)
	return w.cur
}

func (w *referenceWalker) pop() {
	w.cur = w.cur.parent
}

func (w *referenceWalker) text(node *sitter.Node) string {
	return nodeText(w.source, node)
}

func (w *referenceWalker) walkChildren(node *sitter.Node) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		w.walk(node.NamedChild(i))
	}
}

func (w *referenceWalker) walk(node *sitter.Node) {
	if node == nil {
		return
	}
	switch node.Kind() {
	case "identifier":
		w.load(node, nil)
	case "attribute":
		w.attribute(node)
	case "call":
		w.callee(node.ChildByFieldName("function"))
		w.walk(node.ChildByFieldName("arguments"))
	case "decorator":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			w.callee(node.NamedChild(i))
		}
	case "dotted_name":
		w.dottedLoad(node)
	case "function_definition":
		w.function(node)
	case "class_definition":
		w.class(node)
	case "lambda":
		w.lambda(node)
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		w.comprehension(node)
	case "assignment":
		w.bindTargets(node.ChildByFieldName("left"), w.cur)
		w.annotation(node.ChildByFieldName("type"))
		w.walk(node.ChildByFieldName("right"))
	case "augmented_assignment":
		left := node.ChildByFieldName("left")
		w.walk(left)
		w.bindTargets(left, w.cur)
		w.walk(node.ChildByFieldName("right"))
	case "for_statement":
		w.bindTargets(node.ChildByFieldName("left"), w.cur)
		w.walk(node.ChildByFieldName("right"))
		w.walk(node.ChildByFieldName("body"))
		w.walk(node.ChildByFieldName("alternative"))
	case "named_expression":
		target := w.cur
		for target.kind == scopeComprehension && target.parent != nil {
			target = target.parent
		}
		w.bindTargets(node.ChildByFieldName("name"), target)
		w.walk(node.ChildByFieldName("value"))
	case "as_pattern":
		alias := node.ChildByFieldName("alias")
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if sameNode(child, alias) {
				continue
			}
			w.walk(child)
		}
		w.bindTargets(alias, w.cur)
	case "except_clause":
		w.exceptClause(node)
	case "global_statement":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			name := node.NamedChild(i)
			w.cur.globals[w.text(name)] = true
			w.store(name)
		}
	case "nonlocal_statement":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			w.cur.nonlocals[w.text(node.NamedChild(i))] = true
		}
	case "import_statement", "import_from_statement", "future_import_statement":
		for _, imp := range parseImports(node, w.source, w.path) {
			w.nested = append(w.nested, imp)
			if imp.LocalName != "" {
				w.cur.bind(imp.LocalName)
			}
		}
	case "keyword_argument":
		w.walk(node.ChildByFieldName("value"))
	case "type":
		w.annotation(node)
	case "case_pattern":
		w.casePattern(node)
	case "comment":
	default:
		w.walkChildren(node)
	}
}

func (w *referenceWalker) load(node *sitter.Node, chain []*sitter.Node) {
	occ := Occurrence{
		Name:  w.text(node),
		Span:  nodeSpan(node),
		Eager: w.deferred == 0 && w.unevaluated == 0,
		Depth: w.deferred,
	}
	for _, attr := range chain {
		occ.Attrs = append(occ.Attrs, w.text(attr))
		occ.AttrEnds = append(occ.AttrEnds, attr.EndByte())
	}
	w.loads = append(w.loads, pendingLoad{occ: occ, scope: w.cur})
}

// store records a name bound in the module namespace from inside a
// function, so renaming the module binding renames the store too.
func (w *referenceWalker) store(node *sitter.Node) {
	w.loads = append(w.loads, pendingLoad{
		occ: Occurrence{
			Name:  w.text(node),
			Span:  nodeSpan(node),
			Depth: w.deferred,
			Store: true,
		},
		scope: w.cur,
	})
}

// callee walks the function part of a call or a decorator. A plain name or
// attribute chain there is marked as called.
func (w *referenceWalker) callee(node *sitter.Node) {
	if node == nil {
		return
	}
	base := node
	for base.Kind() == "attribute" {
		base = base.ChildByFieldName("object")
		if base == nil {
			w.walk(node)
			return
		}
	}
	start := len(w.loads)
	w.walk(node)
	if base.Kind() == "identifier" && len(w.loads) > start {
		w.loads[start].occ.Called = true
	}
}

// attribute flattens a.b.c into one occurrence of a with chain [b c].
func (w *referenceWalker) attribute(node *sitter.Node) {
	var chain []*sitter.Node
	cur := node
	for cur != nil && cur.Kind() == "attribute" {
		chain = append(chain, cur.ChildByFieldName("attribute"))
		cur = cur.ChildByFieldName("object")
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	if cur != nil && cur.Kind() == "identifier" {
		w.load(cur, chain)
		return
	}
	w.walk(cur)
}

func (w *referenceWalker) dottedLoad(node *sitter.Node) {
	count := node.NamedChildCount()
	if count == 0 {
		return
	}
	chain := make([]*sitter.Node, 0, count-1)
	for i := uint(1); i < count; i++ {
		chain = append(chain, node.NamedChild(i))
	}
	w.load(node.NamedChild(0), chain)
}

func (w *referenceWalker) bindTargets(node *sitter.Node, sc *scope) {
	if node == nil {
		return
	}
	switch node.Kind() {
	case "identifier":
		if sc.globals[w.text(node)] {
			w.store(node)
		}
		sc.bind(w.text(node))
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list",
		"parenthesized_expression", "list_splat_pattern", "list_splat",
		"dictionary_splat_pattern", "as_pattern_target", "expression_list":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			w.bindTargets(node.NamedChild(i), sc)
		}
	default:
		w.walk(node)
	}
}

func (w *referenceWalker) function(node *sitter.Node) {
	w.bindName(node.ChildByFieldName("name"))

	fn := newScope(scopeFunction, w.cur)
	w.typeParameters(node.ChildByFieldName("type_parameters"), fn)
	w.parameters(node.ChildByFieldName("parameters"), fn)
	w.annotation(node.ChildByFieldName("return_type"))

	w.cur = fn
	w.deferred++
	w.walk(node.ChildByFieldName("body"))
	w.deferred--
	w.pop()
}

func (w *referenceWalker) class(node *sitter.Node) {
	w.bindName(node.ChildByFieldName("name"))
	w.walk(node.ChildByFieldName("superclasses"))

	cls := newScope(scopeClass, w.cur)
	w.typeParameters(node.ChildByFieldName("type_parameters"), cls)
	w.cur = cls
	w.walk(node.ChildByFieldName("body"))
	w.pop()
}

// bindName binds a nested def or class name in the current scope.
func (w *referenceWalker) bindName(node *sitter.Node) {
	if node == nil {
		return
	}
	w.bindTargets(node, w.cur)
}

func (w *referenceWalker) lambda(node *sitter.Node) {
	fn := newScope(scopeLambda, w.cur)
	w.parameters(node.ChildByFieldName("parameters"), fn)

	w.cur = fn
	w.deferred++
	w.walk(node.ChildByFieldName("body"))
	w.deferred--
	w.pop()
}

// parameters binds parameter names in fn; defaults and annotations are
// evaluated in the enclosing scope when the def statement runs.
func (w *referenceWalker) parameters(params *sitter.Node, fn *scope) {
	if params == nil {
		return
	}
	for i := uint(0); i < params.NamedChildCount(); i++ {
		param := params.NamedChild(i)
		switch param.Kind() {
		case "identifier", "list_splat_pattern", "dictionary_splat_pattern", "tuple_pattern":
			w.bindTargets(param, fn)
		case "typed_parameter":
			typ := param.ChildByFieldName("type")
			for j := uint(0); j < param.NamedChildCount(); j++ {
				child := param.NamedChild(j)
				if sameNode(child, typ) {
					continue
				}
				w.bindTargets(child, fn)
			}
			w.annotation(typ)
		case "default_parameter", "typed_default_parameter":
			w.bindTargets(param.ChildByFieldName("name"), fn)
			w.annotation(param.ChildByFieldName("type"))
			w.walk(param.ChildByFieldName("value"))
		}
	}
}

func (w *referenceWalker) typeParameters(node *sitter.Node, sc *scope) {
	if node == nil {
		return
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		for child != nil && child.Kind() != "identifier" && child.NamedChildCount() > 0 {
			child = child.NamedChild(0)
		}
		if child != nil && child.Kind() == "identifier" {
			sc.bind(w.text(child))
		}
	}
}

// comprehension evaluates the first iterable in the enclosing scope and
// everything else in a scope of its own.
func (w *referenceWalker) comprehension(node *sitter.Node) {
	var clauses []*sitter.Node
	var rest []*sitter.Node
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "for_in_clause", "if_clause":
			clauses = append(clauses, child)
		default:
			rest = append(rest, child)
		}
	}

	outer := w.cur
	comp := w.push(scopeComprehension)
	for idx, clause := range clauses {
		if clause.Kind() == "if_clause" {
			w.walkChildren(clause)
			continue
		}
		w.bindTargets(clause.ChildByFieldName("left"), comp)
		right := clause.ChildByFieldName("right")
		if idx == 0 {
			w.cur = outer
			w.walk(right)
			w.cur = comp
			continue
		}
		w.walk(right)
	}
	for _, child := range rest {
		w.walk(child)
	}
	w.pop()
}

func (w *referenceWalker) exceptClause(node *sitter.Node) {
	afterAs := false
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch {
		case child.Kind() == "as":
			afterAs = true
		case !child.IsNamed():
		case afterAs:
			w.bindTargets(child, w.cur)
			afterAs = false
		default:
			w.walk(child)
		}
	}
}

// annotation walks a type annotation; string literals holding a dotted name
// are forward references and count as loads.
func (w *referenceWalker) annotation(node *sitter.Node) {
	if node == nil {
		return
	}
	if w.lazyAnnotations {
		w.unevaluated++
		defer func() { w.unevaluated-- }()
	}
	switch node.Kind() {
	case "string":
		w.quoted(node)
	case "identifier", "attribute", "dotted_name":
		w.walk(node)
	default:
		for i := uint(0); i < node.NamedChildCount(); i++ {
			w.annotation(node.NamedChild(i))
		}
	}
}

func (w *referenceWalker) quoted(node *sitter.Node) {
	var content *sitter.Node
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "string_start", "string_end":
		case "string_content":
			if content != nil {
				return
			}
			content = child
		default:
			return
		}
	}
	if content == nil {
		return
	}
	start := node.ChildByFieldName("string_start")
	if start == nil && node.NamedChildCount() > 0 {
		start = node.NamedChild(0)
	}
	if start != nil && strings.ContainsAny(strings.ToLower(w.text(start)), "fb") {
		return
	}

	text := w.text(content)
	parts := strings.Split(text, ".")
	for _, part := range parts {
		if !isIdentifier(part) {
			return
		}
	}

	offset := content.StartByte()
	occ := Occurrence{
		Name:   parts[0],
		Span:   Span{Start: offset, End: offset + uint(len(parts[0]))},
		Depth:  w.deferred,
		Quoted: true,
	}
	end := occ.Span.End
	for _, part := range parts[1:] {
		end += uint(len(part)) + 1
		occ.Attrs = append(occ.Attrs, part)
		occ.AttrEnds = append(occ.AttrEnds, end)
	}
	w.loads = append(w.loads, pendingLoad{occ: occ, scope: w.cur})
}

// casePattern binds capture names of a match-case pattern and loads value
// patterns (dotted names) and class patterns.
func (w *referenceWalker) casePattern(node *sitter.Node) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		w.pattern(node.NamedChild(i))
	}
}

func (w *referenceWalker) pattern(node *sitter.Node) {
	switch node.Kind() {
	case "dotted_name":
		if node.NamedChildCount() == 1 {
			w.capture(node)
			return
		}
		w.dottedLoad(node)
	case "identifier":
		w.capture(node)
	case "class_pattern":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			sub := node.NamedChild(i)
			if i == 0 && sub.Kind() == "dotted_name" {
				w.dottedLoad(sub)
				continue
			}
			w.pattern(sub)
		}
	case "keyword_pattern":
		for i := uint(1); i < node.NamedChildCount(); i++ {
			w.pattern(node.NamedChild(i))
		}
	case "as_pattern":
		w.walk(node)
	case "string", "integer", "float", "true", "false", "none", "concatenated_string":
	default:
		w.casePattern(node)
	}
}

func (w *referenceWalker) capture(node *sitter.Node) {
	if name := w.text(node); name != "_" {
		w.cur.bind(name)
	}
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		case r > 127:
		default:
			return false
		}
	}
	return true
}
