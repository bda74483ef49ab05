package resolver

import (
	"path/filepath"
	"sort"

	"pybundle/internal/core/errors"
	"pybundle/internal/engine/parser"
	"pybundle/internal/shared/observability"
)

// ModuleLoader reads and parses modules once per run. A file reachable
// under two dotted names is parsed once and keeps the first name.
type ModuleLoader struct {
	source SourceProvider
	parser *parser.Parser
	byName map[string]*parser.Module
	byPath map[string]*parser.Module
}

func NewModuleLoader(source SourceProvider, p *parser.Parser) *ModuleLoader {
	if source == nil {
		source = OSSource{}
	}
	if p == nil {
		p = parser.NewParser(nil)
	}
	return &ModuleLoader{
		source: source,
		parser: p,
		byName: make(map[string]*parser.Module),
		byPath: make(map[string]*parser.Module),
	}
}

func (l *ModuleLoader) Load(ref parser.ModuleRef) (*parser.Module, error) {
	if mod, ok := l.byName[ref.Name]; ok {
		observability.ModuleCacheHitsTotal.Inc()
		return mod, nil
	}
	key := canonicalPath(ref.Path)
	if mod, ok := l.byPath[key]; ok {
		observability.ModuleCacheHitsTotal.Inc()
		l.byName[ref.Name] = mod
		return mod, nil
	}

	src := []byte{}
	if !ref.Namespace {
		data, err := l.source.ReadFile(ref.Path)
		if err != nil {
			de := &errors.DomainError{Code: errors.CodeSourceUnavailable, Message: "read module source", Err: err}
			return nil, de.WithContext(errors.CtxModule, ref.Name).WithContext(errors.CtxPath, ref.Path)
		}
		src = data
	}

	mod, err := l.parser.ParseModule(ref, src)
	if err != nil {
		return nil, err
	}
	observability.ModulesLoadedTotal.Inc()
	l.byName[ref.Name] = mod
	l.byPath[key] = mod
	return mod, nil
}

// Paths returns the files of every loaded module, sorted.
func (l *ModuleLoader) Paths() []string {
	paths := make([]string, 0, len(l.byPath))
	for _, mod := range l.byPath {
		if !mod.Ref.Namespace {
			paths = append(paths, mod.Ref.Path)
		}
	}
	sort.Strings(paths)
	return paths
}

func (l *ModuleLoader) Len() int {
	return len(l.byPath)
}

// Close releases every syntax tree. The loader must not be used afterwards.
func (l *ModuleLoader) Close() {
	for _, mod := range l.byPath {
		mod.Close()
	}
	l.byName = make(map[string]*parser.Module)
	l.byPath = make(map[string]*parser.Module)
}

func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
