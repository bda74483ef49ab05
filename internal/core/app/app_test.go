package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pybundle/internal/core/config"
	"pybundle/internal/core/errors"
	"pybundle/internal/core/ports"
	"pybundle/internal/data/history"
	"pybundle/internal/shared/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryHistory struct {
	mu   sync.Mutex
	runs []history.Run
}

func (m *memoryHistory) SaveRun(run history.Run) (history.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = "run-" + string(rune('a'+len(m.runs)))
	m.runs = append(m.runs, run)
	return run, nil
}

func (m *memoryHistory) ListRuns(target string, limit int) ([]history.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Run(nil), m.runs...), nil
}

func (m *memoryHistory) Close() error { return nil }

func writeProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"pyproject.toml":    "",
		"mypkg/__init__.py": "",
		"mypkg/config.py":   "class Config:\n    scale = 2\n",
		"mypkg/main.py": `import math
from mypkg.config import Config


def helper(x):
    cfg = Config()
    return math.sqrt(x) * cfg.scale


def main():
    return helper(4)
`,
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

const wantBundle = `# Bundled from mypkg/main.py:main
import math


class Config:
    scale = 2


def helper(x):
    cfg = Config()
    return math.sqrt(x) * cfg.scale


def main():
    return helper(4)
`

func newTestApp(t *testing.T, root string, opts ...Option) (*App, *memoryHistory) {
	t.Helper()
	store := &memoryHistory{}
	opts = append([]Option{WithWorkingDir(root), WithHistory(store)}, opts...)
	a, err := New(config.Default(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, store
}

func TestBundleWritesOutputFile(t *testing.T) {
	root := writeProject(t)
	a, store := newTestApp(t, root)

	result, err := a.Bundle(context.Background(), ports.BundleRequest{Target: "mypkg/main.py:main"})
	require.NoError(t, err)

	out := filepath.Join(root, "bundler_output.py")
	assert.Equal(t, out, result.OutputPath)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, wantBundle, string(data))
	assert.Equal(t, util.Digest(data), result.Digest)
	assert.GreaterOrEqual(t, result.Modules, 2)

	require.Len(t, store.runs, 1)
	run := store.runs[0]
	assert.Equal(t, history.StatusOK, run.Status)
	assert.Equal(t, 3, run.Definitions)
	assert.Equal(t, 1, run.Imports)
	assert.Equal(t, root, run.ProjectRoot)
	assert.Equal(t, run.ID, result.RunID)
}

func TestBundleIsByteIdentical(t *testing.T) {
	root := writeProject(t)
	a, _ := newTestApp(t, root)

	first, err := a.Bundle(context.Background(), ports.BundleRequest{Target: "mypkg/main.py:main", DryRun: true})
	require.NoError(t, err)
	second, err := a.Bundle(context.Background(), ports.BundleRequest{Target: "mypkg/main.py:main", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, first.Digest, second.Digest)
}

func TestBundleToStdout(t *testing.T) {
	root := writeProject(t)
	var stdout bytes.Buffer
	a, _ := newTestApp(t, root, WithStdout(&stdout))

	_, err := a.Bundle(context.Background(), ports.BundleRequest{Target: "mypkg/main.py:main", Output: "-"})
	require.NoError(t, err)
	assert.Equal(t, wantBundle, stdout.String())
	assert.NoFileExists(t, filepath.Join(root, "bundler_output.py"))
}

func TestBundleDryRunWritesNothing(t *testing.T) {
	root := writeProject(t)
	a, _ := newTestApp(t, root)

	result, err := a.Bundle(context.Background(), ports.BundleRequest{Target: "mypkg/main.py:main", Output: "out/bundle.py", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, wantBundle, string(result.Output))
	assert.NoFileExists(t, filepath.Join(root, "out", "bundle.py"))
}

func TestBundleDottedModuleTarget(t *testing.T) {
	root := writeProject(t)
	a, _ := newTestApp(t, root)

	result, err := a.Bundle(context.Background(), ports.BundleRequest{Target: "mypkg.main:main", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Config", "helper", "main"}, result.Unit.DefinitionNames())
}

func TestBundleFailuresAreRecorded(t *testing.T) {
	root := writeProject(t)
	a, store := newTestApp(t, root)

	_, err := a.Bundle(context.Background(), ports.BundleRequest{Target: "mypkg/main.py:missing"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeEntryNotFound), "got %v", err)
	assert.NoFileExists(t, filepath.Join(root, "bundler_output.py"))

	require.Len(t, store.runs, 1)
	assert.Equal(t, history.StatusFailed, store.runs[0].Status)
	assert.Equal(t, string(errors.CodeEntryNotFound), store.runs[0].ErrorCode)
}

func TestBundleErrors(t *testing.T) {
	root := writeProject(t)
	a, _ := newTestApp(t, root)

	tests := []struct {
		name string
		req  ports.BundleRequest
		code errors.ErrorCode
	}{
		{"missing symbol separator", ports.BundleRequest{Target: "mypkg/main.py"}, errors.CodeValidationError},
		{"missing entry file", ports.BundleRequest{Target: "mypkg/nope.py:main"}, errors.CodeSourceUnavailable},
		{"unknown module", ports.BundleRequest{Target: "nope.mod:main"}, errors.CodeSourceUnavailable},
		{"output over a module", ports.BundleRequest{Target: "mypkg/main.py:main", Output: "mypkg/config.py"}, errors.CodeValidationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Bundle(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err), "got %v", err)
		})
	}

	data, err := os.ReadFile(filepath.Join(root, "mypkg", "config.py"))
	require.NoError(t, err)
	assert.Equal(t, "class Config:\n    scale = 2\n", string(data))
}

func TestBundleOpensConfiguredHistory(t *testing.T) {
	root := writeProject(t)
	cfg := config.Default()
	cfg.History.Enabled = true

	a, err := New(cfg, WithWorkingDir(root))
	require.NoError(t, err)
	_, err = a.Bundle(context.Background(), ports.BundleRequest{Target: "mypkg/main.py:main", DryRun: true})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	store, err := history.Open(filepath.Join(root, "data", "state", "history.db"))
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns("mypkg/main.py:main", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, history.StatusOK, runs[0].Status)
}

func TestWatchRebundlesOnChange(t *testing.T) {
	root := writeProject(t)
	cfg := config.Default()
	cfg.Watch.Debounce = 20 * time.Millisecond
	cfg.Watch.MaxRebuildsPerSecond = 0

	a, err := New(cfg, WithWorkingDir(root), WithHistory(&memoryHistory{}))
	require.NoError(t, err)

	runs := make(chan ports.BundleResult, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Watch(ctx, ports.BundleRequest{Target: "mypkg/main.py:main"}, "", func(r ports.BundleResult, err error) {
			if err == nil {
				runs <- r
			}
		})
	}()

	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("initial run did not complete")
	}

	// Give the watcher a moment to register the module directories.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "mypkg", "config.py"), []byte("class Config:\n    scale = 3\n"), 0o644))

	select {
	case r := <-runs:
		assert.Contains(t, string(r.Output), "scale = 3")
	case <-time.After(5 * time.Second):
		t.Fatal("expected a rebuild after the source changed")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestWatchRejectsMalformedTarget(t *testing.T) {
	a, _ := newTestApp(t, t.TempDir())
	err := a.Watch(context.Background(), ports.BundleRequest{Target: "main"}, "", nil)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}
