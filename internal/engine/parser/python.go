package parser

import (
	"log/slog"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// PythonExtractor builds the symbol table of a module: its top-level
// definitions and every import the module executes while loading.
type PythonExtractor struct{}

func (e *PythonExtractor) Extract(ref ModuleRef, root *sitter.Node, source []byte) *Module {
	mod := newModule(ref, source)
	ctx := &ExtractionContext{Source: source, Module: mod}
	engine := NewExtractorEngine(map[string]NodeHandler{
		"import_statement":        e.extractImport,
		"import_from_statement":   e.extractImport,
		"future_import_statement": e.extractImport,
		"function_definition":     e.extractDefinition,
		"class_definition":        e.extractDefinition,
		"decorated_definition":    e.extractDefinition,
		"expression_statement":    e.extractBinding,
	})
	engine.Walk(ctx, root)
	return mod
}

func (e *PythonExtractor) extractImport(ctx *ExtractionContext, node *sitter.Node) bool {
	for _, imp := range parseImports(node, ctx.Source, ctx.Module.Ref.Path) {
		ctx.Module.bindImport(imp)
	}
	return true
}

// extractDefinition records top-level functions and classes. Definitions
// nested in blocks or bodies are skipped along with their children, so
// imports inside functions never reach the module table.
func (e *PythonExtractor) extractDefinition(ctx *ExtractionContext, node *sitter.Node) bool {
	if !ctx.TopLevel(node) {
		return true
	}

	inner := node
	if node.Kind() == "decorated_definition" {
		inner = node.ChildByFieldName("definition")
		if inner == nil {
			return true
		}
	}

	nameNode := inner.ChildByFieldName("name")
	if nameNode == nil {
		return true
	}
	name := ctx.Text(nameNode)
	kind := KindFunction
	if inner.Kind() == "class_definition" {
		kind = KindClass
	}

	def := &Definition{
		Name:      name,
		Names:     []string{name},
		Kind:      kind,
		Span:      nodeSpan(node),
		Location:  ctx.Location(node),
		NameSites: map[string][]Span{name: {nodeSpan(nameNode)}},
		module:    ctx.Module,
		node:      node,
	}
	e.addDefinition(ctx, def)
	return true
}

// extractBinding records module-level assignments, including chained
// (a = b = 1) and unpacking (a, b = pair) forms. Annotation-only statements
// and augmented assignments do not create a definition.
func (e *PythonExtractor) extractBinding(ctx *ExtractionContext, node *sitter.Node) bool {
	if !ctx.TopLevel(node) {
		return true
	}
	assign := node.NamedChild(0)
	if assign == nil {
		return true
	}
	if assign.Kind() == "augmented_assignment" {
		slog.Debug("augmented assignment does not rebind",
			"module", ctx.Module.Ref.Name,
			"line", ctx.Location(node).Line,
		)
		return true
	}
	if assign.Kind() != "assignment" {
		return true
	}

	var names []string
	sites := make(map[string][]Span)
	for cur := assign; cur != nil && cur.Kind() == "assignment"; cur = cur.ChildByFieldName("right") {
		if cur.ChildByFieldName("right") == nil {
			break
		}
		collectTargetNames(ctx.Source, cur.ChildByFieldName("left"), func(name string, span Span) {
			if _, seen := sites[name]; !seen {
				names = append(names, name)
			}
			sites[name] = append(sites[name], span)
		})
	}
	if len(names) == 0 {
		return true
	}

	def := &Definition{
		Name:      names[0],
		Names:     names,
		Kind:      KindBinding,
		Span:      nodeSpan(node),
		Location:  ctx.Location(node),
		NameSites: sites,
		module:    ctx.Module,
		node:      node,
	}
	e.addDefinition(ctx, def)
	return true
}

func (e *PythonExtractor) addDefinition(ctx *ExtractionContext, def *Definition) {
	mod := ctx.Module
	for _, name := range def.Names {
		if prev, ok := mod.Lookup(name); ok && prev.Def != nil {
			slog.Debug("name rebound at top level",
				"module", mod.Ref.Name,
				"name", name,
				"line", def.Location.Line,
			)
		}
	}
	mod.addDefinition(def)
}

// collectTargetNames reports every identifier an assignment target binds.
// Attribute and subscript targets bind nothing.
func collectTargetNames(source []byte, node *sitter.Node, fn func(name string, span Span)) {
	if node == nil {
		return
	}
	switch node.Kind() {
	case "identifier":
		fn(nodeText(source, node), nodeSpan(node))
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list",
		"parenthesized_expression", "list_splat_pattern", "list_splat":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			collectTargetNames(source, node.NamedChild(i), fn)
		}
	}
}

// parseImports turns one import statement into its bindings, one per
// imported name.
func parseImports(node *sitter.Node, source []byte, path string) []*ImportBinding {
	span := nodeSpan(node)
	loc := nodeLocation(node, path)

	switch node.Kind() {
	case "import_statement":
		var out []*ImportBinding
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			switch child.Kind() {
			case "dotted_name":
				module := nodeText(source, child)
				out = append(out, &ImportBinding{
					Kind:      ImportModule,
					Module:    module,
					LocalName: strings.SplitN(module, ".", 2)[0],
					Span:      span,
					Location:  loc,
				})
			case "aliased_import":
				module := nodeText(source, child.ChildByFieldName("name"))
				alias := nodeText(source, child.ChildByFieldName("alias"))
				out = append(out, &ImportBinding{
					Kind:      ImportModule,
					Module:    module,
					Alias:     alias,
					LocalName: alias,
					Span:      span,
					Location:  loc,
				})
			}
		}
		return out

	case "import_from_statement", "future_import_statement":
		module, level := "__future__", 0
		moduleNode := node.ChildByFieldName("module_name")
		if node.Kind() == "import_from_statement" {
			module, level = parseModuleName(source, moduleNode)
		}
		future := level == 0 && module == "__future__"

		var out []*ImportBinding
		var collect func(n *sitter.Node)
		collect = func(n *sitter.Node) {
			for i := uint(0); i < n.NamedChildCount(); i++ {
				child := n.NamedChild(i)
				if sameNode(child, moduleNode) {
					continue
				}
				imp := &ImportBinding{
					Kind:     ImportFrom,
					Module:   module,
					Level:    level,
					Future:   future,
					Span:     span,
					Location: loc,
				}
				switch child.Kind() {
				case "wildcard_import":
					imp.Kind = ImportStar
				case "dotted_name", "identifier":
					imp.Name = nodeText(source, child)
					imp.LocalName = imp.Name
				case "aliased_import":
					imp.Name = nodeText(source, child.ChildByFieldName("name"))
					imp.Alias = nodeText(source, child.ChildByFieldName("alias"))
					imp.LocalName = imp.Alias
				case "import_list":
					collect(child)
					continue
				default:
					continue
				}
				out = append(out, imp)
			}
		}
		collect(node)
		return out
	}
	return nil
}

func parseModuleName(source []byte, node *sitter.Node) (string, int) {
	if node == nil {
		return "", 0
	}
	if node.Kind() != "relative_import" {
		return nodeText(source, node), 0
	}
	text := nodeText(source, node)
	module := strings.TrimLeft(text, ".")
	return strings.TrimSpace(module), len(text) - len(module)
}
