package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWatcher_RejectsNilCallback(t *testing.T) {
	w, err := NewWatcher(100*time.Millisecond, nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for nil callback")
	}
	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("expected os.ErrInvalid, got %v", err)
	}
	if w != nil {
		t.Fatal("expected nil watcher when callback is invalid")
	}
}

func TestNewWatcher_RejectsInvalidPattern(t *testing.T) {
	if _, err := NewWatcher(time.Millisecond, nil, []string{"[unclosed"}, func([]string) {}); err == nil {
		t.Fatal("expected error for an invalid file pattern")
	}
}

func TestWatcher(t *testing.T) {
	tmpDir := t.TempDir()

	changedFiles := make(chan []string, 4)
	w, err := NewWatcher(100*time.Millisecond, nil, []string{"*_test.py"}, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	testFile := filepath.Join(tmpDir, "module.py")
	if err := os.WriteFile(testFile, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-changedFiles:
		found := false
		for _, p := range paths {
			if p == testFile {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected to find %s in changed files %v", testFile, paths)
		}
	case <-time.After(2 * time.Second):
		t.Error("Timed out waiting for file change event")
	}

	// Non-Python and excluded files never trigger a rebuild.
	for _, name := range []string{"notes.txt", "module_test.py"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case paths := <-changedFiles:
		t.Errorf("Excluded files triggered event: %v", paths)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_DebounceBatches(t *testing.T) {
	tmpDir := t.TempDir()

	changedFiles := make(chan []string, 8)
	w, err := NewWatcher(200*time.Millisecond, nil, nil, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	a := filepath.Join(tmpDir, "a.py")
	b := filepath.Join(tmpDir, "b.py")
	if err := os.WriteFile(a, []byte("a = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("b = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	timeout := time.After(2 * time.Second)
	for !seen[a] || !seen[b] {
		select {
		case paths := <-changedFiles:
			for _, p := range paths {
				seen[p] = true
			}
		case <-timeout:
			t.Fatalf("timed out waiting for both files, saw %v", seen)
		}
	}
}

func TestWatcher_Sync(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	excluded := filepath.Join(t.TempDir(), ".venv")
	if err := os.MkdirAll(excluded, 0o755); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(10*time.Millisecond, []string{".venv"}, nil, func([]string) {})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Sync([]string{first, excluded}); err != nil {
		t.Fatal(err)
	}
	if got := w.Watched(); len(got) != 1 || got[0] != filepath.Clean(first) {
		t.Fatalf("expected only %s watched, got %v", first, got)
	}

	if err := w.Sync([]string{second}); err != nil {
		t.Fatal(err)
	}
	if got := w.Watched(); len(got) != 1 || got[0] != filepath.Clean(second) {
		t.Fatalf("expected only %s watched after sync, got %v", second, got)
	}
}

func TestWatcher_ShouldExcludeFile(t *testing.T) {
	w, err := NewWatcher(10*time.Millisecond, nil, []string{"conftest.py"}, func([]string) {})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if w.shouldExcludeFile("/src/app/main.py") {
		t.Fatal("expected .py sources to be watched")
	}
	if !w.shouldExcludeFile("/src/app/main.pyc") {
		t.Fatal("expected compiled files to be ignored")
	}
	if !w.shouldExcludeFile("/src/conftest.py") {
		t.Fatal("expected configured exclusions to apply")
	}
}
