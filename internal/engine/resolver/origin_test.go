package resolver

import (
	"path/filepath"
	"testing"

	"pybundle/internal/engine/parser"
)

func TestClassifier(t *testing.T) {
	root := writeTree(t, map[string]string{
		"app/__init__.py":                          "",
		"app/util.py":                              "",
		"vendored/__init__.py":                     "",
		".venv/lib/python3.12/site-packages/x.py": "",
		"nsdir/mod.py":                             "",
	})
	venv := filepath.Join(root, ".venv", "lib", "python3.12", "site-packages")
	finder := NewPythonResolver(root, []string{root, venv}, nil)
	c, err := NewClassifier(finder, ClassifierOptions{
		ThirdParty:  []string{"vendored", "vendored.*"},
		Local:       []string{"generated.*"},
		ExcludeDirs: []string{".venv"},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		module string
		origin Origin
		found  bool
	}{
		{"app", OriginLocal, true},
		{"app.util", OriginLocal, true},
		{"nsdir", OriginLocal, true},
		{"os.path", OriginStdlib, false},
		{"__future__", OriginStdlib, false},
		{"requests", OriginThirdParty, false},
		{"x", OriginThirdParty, false},
		{"vendored", OriginThirdParty, false},
		{"generated.models", OriginLocal, false},
	}
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			origin, _, found := c.Classify(tt.module)
			if origin != tt.origin {
				t.Errorf("expected %s, got %s", tt.origin, origin)
			}
			if found != tt.found {
				t.Errorf("expected found=%v, got %v", tt.found, found)
			}
		})
	}
}

func TestClassifierInvalidPattern(t *testing.T) {
	finder := NewPythonResolver(t.TempDir(), nil, nil)
	if _, err := NewClassifier(finder, ClassifierOptions{ThirdParty: []string{"[unclosed"}}); err == nil {
		t.Fatal("expected an error for an invalid glob")
	}
}

func TestLocalModuleShadowsStdlib(t *testing.T) {
	root := writeTree(t, map[string]string{"json.py": ""})
	finder := NewPythonResolver(root, []string{root}, nil)
	c, err := NewClassifier(finder, ClassifierOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if origin, _, _ := c.Classify("json"); origin != OriginLocal {
		t.Errorf("expected a project json.py to be local, got %s", origin)
	}
}

func TestPythonResolver(t *testing.T) {
	root := writeTree(t, map[string]string{
		"pkg/__init__.py":     "",
		"pkg/sub/__init__.py": "",
		"pkg/sub/leaf.py":     "",
		"pkg.py":              "",
		"lone.py":             "",
	})
	r := NewPythonResolver(root, []string{root}, nil)

	t.Run("PackageWinsOverModule", func(t *testing.T) {
		ref, ok := r.Find("pkg")
		if !ok || !ref.IsPackage {
			t.Fatalf("expected the pkg package, got %+v", ref)
		}
	})

	t.Run("ModuleName", func(t *testing.T) {
		cases := map[string]string{
			filepath.Join(root, "pkg", "sub", "leaf.py"):     "pkg.sub.leaf",
			filepath.Join(root, "pkg", "sub", "__init__.py"): "pkg.sub",
			filepath.Join(root, "lone.py"):                   "lone",
			filepath.Join(t.TempDir(), "outside.py"):         "outside",
		}
		for path, want := range cases {
			if got := r.ModuleName(path); got != want {
				t.Errorf("ModuleName(%s) = %q, want %q", path, got, want)
			}
		}
	})

	t.Run("ResolveRelative", func(t *testing.T) {
		leaf := parser.ModuleRef{Name: "pkg.sub.leaf"}
		init := parser.ModuleRef{Name: "pkg.sub", IsPackage: true}
		cases := []struct {
			from   parser.ModuleRef
			level  int
			module string
			want   string
		}{
			{leaf, 1, "", "pkg.sub"},
			{leaf, 1, "other", "pkg.sub.other"},
			{leaf, 2, "tools", "pkg.tools"},
			{init, 1, "leaf", "pkg.sub.leaf"},
			{init, 2, "", "pkg"},
			{leaf, 0, "json", "json"},
		}
		for _, c := range cases {
			got, err := r.ResolveRelative(c.from, c.level, c.module)
			if err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Errorf("ResolveRelative(%s, %d, %q) = %q, want %q", c.from.Name, c.level, c.module, got, c.want)
			}
		}
		if _, err := r.ResolveRelative(leaf, 4, "x"); err == nil {
			t.Error("expected an error for a relative import beyond the top-level package")
		}
	})
}
