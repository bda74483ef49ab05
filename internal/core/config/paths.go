package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type ResolvedPaths struct {
	ProjectRoot string
	// SearchRoots are the directories absolute imports are looked up in,
	// highest priority first.
	SearchRoots []string
	HistoryPath string
	OutputPath  string // "-" for stdout
}

// ResolvePaths anchors the configured paths. entryFile is the bundled file;
// its directory is searched first, like a script's directory on sys.path.
func ResolvePaths(cfg *Config, cwd, entryFile string) (ResolvedPaths, error) {
	if strings.TrimSpace(cwd) == "" {
		return ResolvedPaths{}, fmt.Errorf("cwd must not be empty")
	}

	projectRoot := strings.TrimSpace(cfg.Project.Root)
	if projectRoot != "" {
		projectRoot = ResolveRelative(cwd, projectRoot)
	} else {
		candidates := []string{cwd}
		if entryFile != "" {
			candidates = []string{ResolveRelative(cwd, entryFile), cwd}
		}
		root, err := DetectProjectRoot(candidates)
		if err != nil {
			return ResolvedPaths{}, err
		}
		projectRoot = root
	}

	var roots []string
	if entryFile != "" {
		roots = append(roots, filepath.Dir(ResolveRelative(cwd, entryFile)))
	}
	roots = append(roots, projectRoot)
	for _, p := range cfg.Project.SearchPaths {
		roots = append(roots, ResolveRelative(projectRoot, p))
	}

	output := cfg.Bundle.Output
	if output != "-" {
		output = ResolveRelative(cwd, output)
	}

	return ResolvedPaths{
		ProjectRoot: filepath.Clean(projectRoot),
		SearchRoots: roots,
		HistoryPath: ResolveRelative(projectRoot, cfg.History.Path),
		OutputPath:  output,
	}, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// DetectProjectRoot walks up from each candidate to the first directory
// holding a project marker. Without one it falls back to the directory
// above the first candidate's outermost package.
func DetectProjectRoot(candidates []string) (string, error) {
	markers := []string{
		"pyproject.toml",
		"setup.py",
		"setup.cfg",
		".git",
		DefaultFile,
	}

	fallback := ""
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}

		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		root := abs
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			root = filepath.Dir(abs)
		} else if err != nil && filepath.Ext(abs) == ".py" {
			root = filepath.Dir(abs)
		}
		if fallback == "" {
			fallback = packageRoot(root)
		}

		for {
			for _, marker := range markers {
				if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
					return filepath.Clean(root), nil
				}
			}
			parent := filepath.Dir(root)
			if parent == root {
				break
			}
			root = parent
		}
	}

	if fallback != "" {
		return filepath.Clean(fallback), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Clean(cwd), nil
}

// packageRoot climbs out of nested packages: the parent of the topmost
// directory holding an __init__.py.
func packageRoot(dir string) string {
	for {
		if _, err := os.Stat(filepath.Join(dir, "__init__.py")); err != nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
