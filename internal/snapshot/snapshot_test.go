package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTake_MissingDirectory(t *testing.T) {
	snap, err := Take(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Take on missing dir should not error, got: %v", err)
	}
	if len(snap.Files) != 0 {
		t.Errorf("Expected empty snapshot, got %d files", len(snap.Files))
	}
	if snap.Timestamp.IsZero() {
		t.Error("Snapshot timestamp should be set even for missing dir")
	}
}

func TestTake_ListsFilesWithStat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	if err := os.WriteFile(path, []byte("hello\n"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	// Subdirectories are not files and must be skipped.
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatalf("Failed to create subdir: %v", err)
	}

	snap, err := Take(dir)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if len(snap.Files) != 1 {
		t.Fatalf("Expected 1 file, got %d", len(snap.Files))
	}

	f := snap.Files[0]
	if f.Path != path {
		t.Errorf("Path = %q, want %q", f.Path, path)
	}
	if f.Size != 6 {
		t.Errorf("Size = %d, want 6", f.Size)
	}
	if f.ModifiedAt.IsZero() {
		t.Error("ModifiedAt should be set")
	}
}

func TestDiff_NewFileOnly(t *testing.T) {
	dir := t.TempDir()
	write := func(name string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	write("a.log")
	before, err := Take(dir)
	if err != nil {
		t.Fatalf("Take before: %v", err)
	}

	write("b.log")
	after, err := Take(dir)
	if err != nil {
		t.Fatalf("Take after: %v", err)
	}

	created := Diff(before, after)
	if len(created) != 1 {
		t.Fatalf("Expected 1 new file, got %d", len(created))
	}
	if filepath.Base(created[0].Path) != "b.log" {
		t.Errorf("Expected b.log, got %s", created[0].Path)
	}
}

func TestDiff_ReportsGrownFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	before, _ := Take(dir)
	if err := os.WriteFile(path, []byte("grown content"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	after, _ := Take(dir)

	changed := Diff(before, after)
	if len(changed) != 1 {
		t.Fatalf("Grown pre-existing file must appear in diff, got %d entries", len(changed))
	}
	if changed[0].Path != path {
		t.Errorf("Expected %s, got %s", path, changed[0].Path)
	}
}

func TestDiff_ReportsRewrittenFileByModTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs.json")
	if err := os.WriteFile(path, []byte("[1,2,3]"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	before, _ := Take(dir)

	// Same length but a later mtime, as when a log array is rewritten whole.
	if err := os.WriteFile(path, []byte("[4,5,6]"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	later := before.Files[0].ModifiedAt.Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	after, _ := Take(dir)

	if changed := Diff(before, after); len(changed) != 1 {
		t.Fatalf("Rewritten pre-existing file must appear in diff, got %d entries", len(changed))
	}
}

func TestDiff_IgnoresUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.log"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	before, _ := Take(dir)
	after, _ := Take(dir)

	if changed := Diff(before, after); len(changed) != 0 {
		t.Errorf("Untouched file must not appear in diff, got %d entries", len(changed))
	}
}

func TestTakeAll_CombinesDirectories(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	if err := os.WriteFile(filepath.Join(dirA, "one.jsonl"), []byte("1"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dirB, "two.jsonl"), []byte("2"), 0644); err != nil {
		t.Fatal(err)
	}

	snap, err := TakeAll([]string{dirA, dirB, filepath.Join(dirA, "missing")})
	if err != nil {
		t.Fatalf("TakeAll failed: %v", err)
	}
	if len(snap.Files) != 2 {
		t.Errorf("Expected 2 files across dirs, got %d", len(snap.Files))
	}
}
