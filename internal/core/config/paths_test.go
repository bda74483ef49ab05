package config

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolvePaths_DetectsMarker(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "pyproject.toml"))
	touch(t, filepath.Join(root, "src", "app", "main.py"))

	cfg := Default()
	cfg.Project.SearchPaths = []string{"lib"}
	got, err := ResolvePaths(cfg, root, "src/app/main.py")
	if err != nil {
		t.Fatal(err)
	}
	if got.ProjectRoot != filepath.Clean(root) {
		t.Fatalf("expected project root %q, got %q", root, got.ProjectRoot)
	}
	want := []string{filepath.Join(root, "src", "app"), root, filepath.Join(root, "lib")}
	if len(got.SearchRoots) != len(want) {
		t.Fatalf("expected roots %v, got %v", want, got.SearchRoots)
	}
	for i := range want {
		if got.SearchRoots[i] != want[i] {
			t.Fatalf("expected roots %v, got %v", want, got.SearchRoots)
		}
	}
	if got.HistoryPath != filepath.Join(root, "data", "state", "history.db") {
		t.Errorf("unexpected history path: %q", got.HistoryPath)
	}
	if got.OutputPath != filepath.Join(root, "bundler_output.py") {
		t.Errorf("unexpected output path: %q", got.OutputPath)
	}
}

func TestResolvePaths_PackageFallback(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "mypkg", "__init__.py"))
	touch(t, filepath.Join(root, "mypkg", "sub", "__init__.py"))
	touch(t, filepath.Join(root, "mypkg", "sub", "main.py"))

	got, err := ResolvePaths(Default(), root, filepath.Join(root, "mypkg", "sub", "main.py"))
	if err != nil {
		t.Fatal(err)
	}
	if got.ProjectRoot != filepath.Clean(root) {
		t.Fatalf("expected the directory above mypkg, got %q", got.ProjectRoot)
	}
}

func TestResolvePaths_ExplicitRoot(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Project.Root = filepath.Join(root, "project")
	cfg.Bundle.Output = "-"

	got, err := ResolvePaths(cfg, root, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.ProjectRoot != filepath.Join(root, "project") {
		t.Errorf("unexpected project root %q", got.ProjectRoot)
	}
	if got.OutputPath != "-" {
		t.Errorf("expected stdout output, got %q", got.OutputPath)
	}
	if len(got.SearchRoots) != 1 {
		t.Errorf("expected only the project root as search root, got %v", got.SearchRoots)
	}
}
