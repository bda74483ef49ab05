package parser

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pybundle/internal/core/errors"
	"pybundle/internal/shared/observability"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// idleParsers bounds the tree-sitter parsers a Parser keeps between parses.
const idleParsers = 4

// Parser is safe for concurrent use; modules it returns are not.
type Parser struct {
	loader    *GrammarLoader
	extractor *PythonExtractor

	poolOnce sync.Once
	pool     *parserPool
	poolErr  error
}

func NewParser(loader *GrammarLoader) *Parser {
	if loader == nil {
		loader = NewGrammarLoader()
	}
	return &Parser{
		loader:    loader,
		extractor: &PythonExtractor{},
	}
}

func (p *Parser) parsers() (*parserPool, error) {
	p.poolOnce.Do(func() {
		grammar, err := p.loader.Language(LanguagePython)
		if err != nil {
			p.poolErr = err
			return
		}
		p.pool = newParserPool(grammar, idleParsers)
	})
	return p.pool, p.poolErr
}

// Close releases the idle tree-sitter parsers.
func (p *Parser) Close() {
	if pool, err := p.parsers(); err == nil {
		pool.close()
	}
}

// ParseModule parses source and builds the module's symbol table. The
// returned module keeps its syntax tree until Close is called.
func (p *Parser) ParseModule(ref ModuleRef, source []byte) (*Module, error) {
	started := time.Now()
	defer func() {
		observability.ParsingDuration.WithLabelValues(LanguagePython).Observe(time.Since(started).Seconds())
	}()

	pool, err := p.parsers()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "load grammar")
	}
	parser, err := pool.get()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "set parser language")
	}
	defer pool.put(parser)

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, parseError(ref, "parse failed", Location{File: ref.Path})
	}

	root := tree.RootNode()
	if root.HasError() {
		loc := firstErrorLocation(root, ref.Path)
		tree.Close()
		return nil, parseError(ref, fmt.Sprintf("syntax error at line %d", loc.Line), loc)
	}

	mod := p.extractor.Extract(ref, root, source)
	mod.tree = tree
	slog.Debug("parsed module",
		"module", ref.Name,
		"definitions", len(mod.Definitions),
		"imports", len(mod.Imports),
	)
	return mod, nil
}

func parseError(ref ModuleRef, msg string, loc Location) error {
	return errors.Newf(errors.CodeParseFailed, "%s", msg).
		WithContext(errors.CtxModule, ref.Name).
		WithContext(errors.CtxPath, loc.File)
}

func firstErrorLocation(node *sitter.Node, path string) Location {
	if node.IsError() || node.IsMissing() {
		return nodeLocation(node, path)
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.HasError() {
			return firstErrorLocation(child, path)
		}
	}
	return nodeLocation(node, path)
}

func nodeLocation(node *sitter.Node, path string) Location {
	return Location{
		File:   path,
		Line:   int(node.StartPosition().Row) + 1,
		Column: int(node.StartPosition().Column) + 1,
	}
}
