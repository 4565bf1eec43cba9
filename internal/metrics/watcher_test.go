package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()
}

func TestWatcherCoalescesWriteBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	appendLine(t, path, "init")

	w, err := NewWatcher(path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	// A burst of rapid writes, all inside the debounce window.
	for i := 0; i < 5; i++ {
		appendLine(t, path, "data")
		time.Sleep(5 * time.Millisecond)
	}

	count := 0
	timeout := time.After(500 * time.Millisecond)
	for done := false; !done; {
		select {
		case <-w.Triggers():
			count++
		case <-timeout:
			done = true
		}
	}
	if count != 1 {
		t.Fatalf("got %d triggers for one burst, want 1", count)
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	appendLine(t, path, "init")

	w, err := NewWatcher(path, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	appendLine(t, filepath.Join(dir, "other.jsonl"), "noise")

	select {
	case <-w.Triggers():
		t.Fatal("trigger fired for an unrelated file")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcherDropsTriggerWhilePending(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	appendLine(t, path, "init")

	w, err := NewWatcher(path, time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	// With nobody consuming, repeated fires collapse into one pending slot.
	w.fire()
	w.fire()
	w.fire()

	<-w.Triggers()
	select {
	case <-w.Triggers():
		t.Fatal("second trigger should have been dropped")
	case <-time.After(50 * time.Millisecond):
	}
}
