package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `
[project]
root = "./src"
search_paths = ["lib", " vendor "]
exclude_dirs = [".tox"]

[origin]
third_party = ["vendored.*"]
local = ["generated"]

[resolve]
strict = false
builtins = ["__version__"]

[bundle]
output = "dist/app.py"
header = false
source_comments = true

[history]
enabled = true

[watch]
debounce = "1s"
exclude_files = ["*_test.py"]

[observability]
metrics_file = "pybundle.prom"
`
	path := filepath.Join(t.TempDir(), "pybundle.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Project.Root != "./src" {
		t.Errorf("Expected project root ./src, got %s", cfg.Project.Root)
	}
	if len(cfg.Project.SearchPaths) != 2 || cfg.Project.SearchPaths[1] != "vendor" {
		t.Errorf("Unexpected search paths: %v", cfg.Project.SearchPaths)
	}
	if len(cfg.Project.ExcludeDirs) != 1 || cfg.Project.ExcludeDirs[0] != ".tox" {
		t.Errorf("Expected configured exclude dirs to replace the defaults, got %v", cfg.Project.ExcludeDirs)
	}
	if cfg.StrictEnabled() {
		t.Error("Expected strict mode to be disabled")
	}
	if cfg.HeaderEnabled() {
		t.Error("Expected the header to be disabled")
	}
	if !cfg.Bundle.SourceComments {
		t.Error("Expected source comments")
	}
	if cfg.Watch.Debounce != time.Second {
		t.Errorf("Expected debounce 1s, got %v", cfg.Watch.Debounce)
	}
	if cfg.Watch.MaxRebuildsPerSecond != 2 {
		t.Errorf("Expected default rebuild rate 2, got %v", cfg.Watch.MaxRebuildsPerSecond)
	}
	if cfg.History.Path != "data/state/history.db" {
		t.Errorf("Expected default history path, got %s", cfg.History.Path)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Version != 1 {
		t.Errorf("Expected version 1, got %d", cfg.Version)
	}
	if cfg.Bundle.Output != "bundler_output.py" {
		t.Errorf("Expected default output bundler_output.py, got %s", cfg.Bundle.Output)
	}
	if !cfg.StrictEnabled() || !cfg.HeaderEnabled() {
		t.Error("Expected strict mode and the header by default")
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("Expected debounce 500ms, got %v", cfg.Watch.Debounce)
	}
	if len(cfg.Project.ExcludeDirs) == 0 {
		t.Error("Expected default exclude dirs")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Expected no error for a missing file, got %v", err)
	}
	if cfg.Bundle.Output != "bundler_output.py" {
		t.Errorf("Expected defaults, got %+v", cfg.Bundle)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse("[bundle]\noutptu = \"x.py\"\n")
	if err == nil || !strings.Contains(err.Error(), "bundle.outptu") {
		t.Fatalf("Expected an unknown key error, got %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PYBUNDLE_RESOLVE_STRICT", "false")
	t.Setenv("PYBUNDLE_RESOLVE_BUILTINS", "app, request")
	t.Setenv("PYBUNDLE_BUNDLE_OUTPUT", "-")
	t.Setenv("PYBUNDLE_WATCH_DEBOUNCE", "2s")
	t.Setenv("PYBUNDLE_HISTORY_ENABLED", "not-a-bool")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	if cfg.StrictEnabled() {
		t.Error("Expected strict mode to be disabled by env")
	}
	if len(cfg.Resolve.Builtins) != 2 || cfg.Resolve.Builtins[1] != "request" {
		t.Errorf("Unexpected builtins: %v", cfg.Resolve.Builtins)
	}
	if cfg.Bundle.Output != "-" {
		t.Errorf("Expected output -, got %s", cfg.Bundle.Output)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("Expected debounce 2s, got %v", cfg.Watch.Debounce)
	}
	if cfg.History.Enabled {
		t.Error("Expected an invalid bool to be ignored")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected overridden config to validate, got %v", err)
	}
}
