package resolver

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"pybundle/internal/engine/parser"

	"github.com/gobwas/glob"
)

type Origin int

const (
	OriginStdlib Origin = iota
	OriginThirdParty
	OriginLocal
)

func (o Origin) String() string {
	switch o {
	case OriginStdlib:
		return "stdlib"
	case OriginThirdParty:
		return "third_party"
	case OriginLocal:
		return "local"
	default:
		return "unknown"
	}
}

// ClassifierOptions configures origin overrides. Module patterns use '.' as
// the glob separator ("vendor.*"); directory patterns match single path
// segments (".venv", "site-packages").
type ClassifierOptions struct {
	ThirdParty  []string
	Local       []string
	ExcludeDirs []string
}

type classification struct {
	origin Origin
	ref    parser.ModuleRef
	found  bool
}

// Classifier assigns exactly one origin to every module name. Results are
// memoized, so an origin never changes within a run.
type Classifier struct {
	finder      *PythonResolver
	thirdParty  []glob.Glob
	local       []glob.Glob
	excludeDirs []glob.Glob
	cache       map[string]classification
}

func NewClassifier(finder *PythonResolver, opts ClassifierOptions) (*Classifier, error) {
	thirdParty, err := compileGlobs(opts.ThirdParty, '.')
	if err != nil {
		return nil, err
	}
	local, err := compileGlobs(opts.Local, '.')
	if err != nil {
		return nil, err
	}
	excludeDirs, err := compileGlobs(opts.ExcludeDirs)
	if err != nil {
		return nil, err
	}
	return &Classifier{
		finder:      finder,
		thirdParty:  thirdParty,
		local:       local,
		excludeDirs: excludeDirs,
		cache:       make(map[string]classification),
	}, nil
}

func compileGlobs(patterns []string, separators ...rune) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, separators...)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Classify returns the origin of a module name, and the module's ref when
// it was found under the search roots.
func (c *Classifier) Classify(name string) (Origin, parser.ModuleRef, bool) {
	if cached, ok := c.cache[name]; ok {
		return cached.origin, cached.ref, cached.found
	}
	result := c.classify(name)
	c.cache[name] = result
	slog.Debug("classified module", "module", name, "origin", result.origin.String())
	return result.origin, result.ref, result.found
}

func (c *Classifier) classify(name string) classification {
	if matchAny(c.thirdParty, name) {
		return classification{origin: OriginThirdParty}
	}
	if name == "__future__" {
		return classification{origin: OriginStdlib}
	}

	ref, found := c.finder.Find(name)
	if matchAny(c.local, name) {
		return classification{origin: OriginLocal, ref: ref, found: found}
	}
	if found && c.finder.Within(ref.Path) && !c.excluded(ref.Path) {
		return classification{origin: OriginLocal, ref: ref, found: true}
	}
	if IsStdlibModule(name) {
		return classification{origin: OriginStdlib}
	}
	return classification{origin: OriginThirdParty}
}

func (c *Classifier) excluded(path string) bool {
	rel, err := filepath.Rel(c.finder.projectRoot, path)
	if err != nil {
		return true
	}
	for _, segment := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if segment == "site-packages" || segment == "dist-packages" {
			return true
		}
		if matchAny(c.excludeDirs, segment) {
			return true
		}
	}
	return false
}

func matchAny(globs []glob.Glob, value string) bool {
	for _, g := range globs {
		if g.Match(value) {
			return true
		}
	}
	return false
}
