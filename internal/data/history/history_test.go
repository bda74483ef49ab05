package history

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestStore_OpenInitializesSchemaAndSaveList(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	first, err := store.SaveRun(Run{
		Timestamp:   base,
		Target:      "mypkg/main.py:main",
		Modules:     2,
		Definitions: 3,
		Imports:     1,
		Duration:    40 * time.Millisecond,
		Digest:      "abc",
	})
	if err != nil {
		t.Fatalf("save first run: %v", err)
	}
	if _, err := uuid.Parse(first.ID); err != nil {
		t.Fatalf("expected a uuid run id, got %q", first.ID)
	}
	if first.Status != StatusOK {
		t.Fatalf("expected default status ok, got %q", first.Status)
	}

	if _, err := store.SaveRun(Run{
		Timestamp: base.Add(time.Hour),
		Target:    "mypkg/main.py:main",
		Status:    StatusFailed,
		ErrorCode: "UNRESOLVED_REFERENCE",
		Error:     "name \"x\" is not bound",
	}); err != nil {
		t.Fatalf("save second run: %v", err)
	}
	if _, err := store.SaveRun(Run{Timestamp: base.Add(2 * time.Hour), Target: "other.py:run"}); err != nil {
		t.Fatalf("save third run: %v", err)
	}

	runs, err := store.ListRuns("mypkg/main.py:main", 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs for the target, got %d", len(runs))
	}
	if runs[0].Status != StatusFailed || runs[0].ErrorCode != "UNRESOLVED_REFERENCE" {
		t.Fatalf("expected the failed run first, got %+v", runs[0])
	}
	if runs[1].ID != first.ID || runs[1].Definitions != 3 || runs[1].Duration != 40*time.Millisecond {
		t.Fatalf("expected the first run to roundtrip, got %+v", runs[1])
	}
	if !runs[1].Timestamp.Equal(base) {
		t.Fatalf("expected timestamp %v, got %v", base, runs[1].Timestamp)
	}

	latest, err := store.ListRuns("", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 1 || latest[0].Target != "other.py:run" {
		t.Fatalf("unexpected latest run: %+v", latest)
	}
}

func TestStore_OpenRejectsDirectoryPath(t *testing.T) {
	_, err := Open(t.TempDir())
	if err == nil {
		t.Fatal("expected open error for directory path")
	}
	if !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_OpenCorruptDBPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	if err := os.WriteFile(path, []byte("this is not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if err == nil {
		t.Fatal("expected sqlite open error")
	}
	lower := strings.ToLower(err.Error())
	if !strings.Contains(lower, "not a database") && !strings.Contains(lower, "schema") {
		t.Fatalf("expected schema/open error, got: %v", err)
	}
}

func TestEnsureSchema_DetectsNewerVersionDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.db.Exec(`INSERT OR REPLACE INTO schema_migrations(version) VALUES (?)`, SchemaVersion+1); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open(driverName, "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	err = EnsureSchema(db)
	if err == nil {
		t.Fatal("expected drift error")
	}
	if !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIsCorruptError(t *testing.T) {
	if !IsCorruptError(errors.New("database disk image is malformed")) {
		t.Fatal("expected malformed sqlite message to be treated as corrupt")
	}
	if IsCorruptError(nil) {
		t.Fatal("expected nil not to be corrupt")
	}
}
