package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pybundle/internal/engine/parser"
)

// SourceProvider is the file system the resolver reads modules from.
type SourceProvider interface {
	ReadFile(path string) ([]byte, error)
	IsFile(path string) bool
	IsDir(path string) bool
}

// OSSource reads from the local file system.
type OSSource struct{}

func (OSSource) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (OSSource) IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (OSSource) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// PythonResolver maps dotted module names to files under a list of search
// roots, in the order the interpreter would try them.
type PythonResolver struct {
	projectRoot string
	roots       []string
	source      SourceProvider
}

func NewPythonResolver(projectRoot string, roots []string, source SourceProvider) *PythonResolver {
	if source == nil {
		source = OSSource{}
	}
	seen := make(map[string]bool)
	var unique []string
	for _, root := range roots {
		root = filepath.Clean(root)
		if root == "" || seen[root] {
			continue
		}
		seen[root] = true
		unique = append(unique, root)
	}
	return &PythonResolver{
		projectRoot: filepath.Clean(projectRoot),
		roots:       unique,
		source:      source,
	}
}

// Find locates name under the search roots. Within one root a regular
// package wins over a module file, and a module file over a namespace
// directory.
func (r *PythonResolver) Find(name string) (parser.ModuleRef, bool) {
	if name == "" {
		return parser.ModuleRef{}, false
	}
	parts := strings.Split(name, ".")
	var namespace *parser.ModuleRef
	for _, root := range r.roots {
		base := filepath.Join(append([]string{root}, parts...)...)
		if init := filepath.Join(base, "__init__.py"); r.source.IsFile(init) {
			return parser.ModuleRef{Name: name, Path: init, IsPackage: true}, true
		}
		if file := base + ".py"; r.source.IsFile(file) {
			return parser.ModuleRef{Name: name, Path: file}, true
		}
		if namespace == nil && r.source.IsDir(base) {
			namespace = &parser.ModuleRef{Name: name, Path: base, Namespace: true}
		}
	}
	if namespace != nil {
		return *namespace, true
	}
	return parser.ModuleRef{}, false
}

// ModuleName derives the dotted name of a file relative to the project root.
// Files outside the project root are named by their file stem.
func (r *PythonResolver) ModuleName(filePath string) string {
	filePath = filepath.Clean(filePath)
	rel, err := filepath.Rel(r.projectRoot, filePath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return strings.TrimSuffix(filepath.Base(filePath), ".py")
	}

	parts := strings.Split(rel, string(os.PathSeparator))
	parts[len(parts)-1] = strings.TrimSuffix(parts[len(parts)-1], ".py")
	if parts[len(parts)-1] == "__init__" && len(parts) > 1 {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, ".")
}

// RefForFile builds the module ref of an entry file.
func (r *PythonResolver) RefForFile(filePath string) parser.ModuleRef {
	return parser.ModuleRef{
		Name:      r.ModuleName(filePath),
		Path:      filepath.Clean(filePath),
		IsPackage: filepath.Base(filePath) == "__init__.py",
	}
}

// ResolveRelative turns a relative import inside from into an absolute
// module name. Level 1 is the package containing from.
func (r *PythonResolver) ResolveRelative(from parser.ModuleRef, level int, module string) (string, error) {
	if level == 0 {
		return module, nil
	}

	pkg := from.Package()
	var parts []string
	if pkg != "" {
		parts = strings.Split(pkg, ".")
	}
	if level-1 > len(parts) || (level-1 == len(parts) && module == "") {
		return "", fmt.Errorf("relative import beyond top-level package in %s", from.Name)
	}

	base := strings.Join(parts[:len(parts)-(level-1)], ".")
	switch {
	case module == "":
		return base, nil
	case base == "":
		return module, nil
	default:
		return base + "." + module, nil
	}
}

// Within reports whether path lies inside the project root.
func (r *PythonResolver) Within(path string) bool {
	rel, err := filepath.Rel(r.projectRoot, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
