package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentlens/cli/internal/schema"
)

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	store, err := NewSessionStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSessionStore: %v", err)
	}
	return store
}

func testSession(id string, start time.Time) *schema.Session {
	return &schema.Session{
		SessionID:        id,
		AgentName:        schema.AgentClaudeCode,
		Project:          "demo",
		StartTime:        start,
		WorkingDirectory: "/tmp/demo",
		Status:           schema.SessionActive,
		Correlation:      schema.CorrelationResult{Status: schema.CorrelationPending},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	sess := testSession("s-1", start)
	if err := store.Save(sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("s-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SessionID != "s-1" || got.AgentName != schema.AgentClaudeCode {
		t.Errorf("loaded session mismatch: %+v", got)
	}
	if !got.StartTime.Equal(start) {
		t.Errorf("start time = %v, want %v", got.StartTime, start)
	}
	if got.Correlation.Status != schema.CorrelationPending {
		t.Errorf("correlation status = %q", got.Correlation.Status)
	}
}

func TestLoadMissingSession(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Load("nope"); err == nil {
		t.Fatal("expected error for missing session")
	}
}

func TestListSortsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		if err := store.Save(testSession(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].SessionID != "new" || entries[2].SessionID != "old" {
		t.Errorf("wrong order: %s, %s, %s", entries[0].SessionID, entries[1].SessionID, entries[2].SessionID)
	}
}

func TestSaveOverwritesIndexRow(t *testing.T) {
	store := newTestStore(t)
	sess := testSession("s-1", time.Now().UTC())
	if err := store.Save(sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	end := time.Now().UTC()
	sess.EndTime = &end
	sess.Status = schema.SessionCompleted
	if err := store.Save(sess); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Status != schema.SessionCompleted {
		t.Errorf("status = %q, want completed", entries[0].Status)
	}
}

func TestAtomicWriteLeavesOldContentOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := atomicWriteFile(path, []byte(`{"v":1}`), 0644); err != nil {
		t.Fatalf("atomicWriteFile: %v", err)
	}

	// Simulate a crash mid-write: a stray temp file next to the target
	// must not affect what readers see.
	if err := os.WriteFile(filepath.Join(dir, "state.json.tmp-crashed"), []byte(`{"v`), 0644); err != nil {
		t.Fatalf("writing stray temp: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != `{"v":1}` {
		t.Errorf("content = %q, want old content intact", data)
	}

	if err := atomicWriteFile(path, []byte(`{"v":2}`), 0644); err != nil {
		t.Fatalf("second atomicWriteFile: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != `{"v":2}` {
		t.Errorf("content = %q after rewrite", data)
	}
}

func TestCorruptIndexIsRecoverable(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(testSession("s-1", time.Now().UTC())); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := os.WriteFile(store.indexPath(), []byte("{garbage"), 0644); err != nil {
		t.Fatalf("corrupting index: %v", err)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List on corrupt index: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries from corrupt index", len(entries))
	}

	// The next Save rebuilds the row.
	if err := store.Save(testSession("s-1", time.Now().UTC())); err != nil {
		t.Fatalf("Save after corruption: %v", err)
	}
	entries, _ = store.List()
	if len(entries) != 1 {
		t.Fatalf("got %d entries after rebuild, want 1", len(entries))
	}
}

func TestSyncStateManagerIdempotentInit(t *testing.T) {
	store := newTestStore(t)
	sess := testSession("s-1", time.Now().UTC())

	m := NewSyncStateManager(store, sess, StreamMetrics)
	m.Initialize()
	m.AddProcessedRecords([]string{"r1", "r2", ""})
	m.Initialize()

	st := m.State()
	if len(st.ProcessedRecordIDs) != 2 {
		t.Errorf("got %d processed IDs, want 2", len(st.ProcessedRecordIDs))
	}
	if !m.IsProcessed("r1") || m.IsProcessed("r3") {
		t.Error("IsProcessed gave wrong answers")
	}
}

func TestSyncStateManagerStreamsAreIndependent(t *testing.T) {
	store := newTestStore(t)
	sess := testSession("s-1", time.Now().UTC())

	metrics := NewSyncStateManager(store, sess, StreamMetrics)
	conv := NewSyncStateManager(store, sess, StreamConversations)

	metrics.AddProcessedRecords([]string{"m1"})
	conv.AddProcessedRecords([]string{"c1"})
	conv.AdvanceHistoryIndex(5)

	if metrics.IsProcessed("c1") || conv.IsProcessed("m1") {
		t.Error("streams share record IDs")
	}
	if metrics.State().NextHistoryIndex != 0 {
		t.Error("metrics stream picked up conversation history index")
	}
	if conv.State().NextHistoryIndex != 5 {
		t.Errorf("NextHistoryIndex = %d, want 5", conv.State().NextHistoryIndex)
	}
}

func TestSyncStateManagerCommitPersists(t *testing.T) {
	store := newTestStore(t)
	sess := testSession("s-1", time.Now().UTC())

	m := NewSyncStateManager(store, sess, StreamMetrics)
	m.AddProcessedRecords([]string{"r1"})
	m.UpdateLastProcessed(42, "2026-02-10T09:00:00Z")
	m.IncrementDeltas(3)
	if err := m.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := store.Load("s-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	st := got.Sync.Metrics
	if st == nil {
		t.Fatal("metrics sync state not persisted")
	}
	if !st.ProcessedRecordIDs["r1"] {
		t.Error("processed record ID lost")
	}
	if st.LastProcessedLine != 42 || st.TotalDeltas != 3 {
		t.Errorf("cursor/counters wrong: line=%d deltas=%d", st.LastProcessedLine, st.TotalDeltas)
	}
}

func TestUpdateLastProcessedNeverRewinds(t *testing.T) {
	store := newTestStore(t)
	m := NewSyncStateManager(store, testSession("s-1", time.Now().UTC()), StreamMetrics)

	m.UpdateLastProcessed(10, "t1")
	m.UpdateLastProcessed(4, "t2")

	st := m.State()
	if st.LastProcessedLine != 10 {
		t.Errorf("LastProcessedLine = %d, want 10", st.LastProcessedLine)
	}
	if st.LastProcessedTimestamp != "t2" {
		t.Errorf("LastProcessedTimestamp = %q, want t2", st.LastProcessedTimestamp)
	}
}
