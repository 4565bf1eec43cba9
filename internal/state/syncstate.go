package state

import (
	"time"

	"github.com/agentlens/cli/internal/schema"
)

// Stream selects which per-session sync state a manager operates on
type Stream string

const (
	StreamMetrics       Stream = "metrics"
	StreamConversations Stream = "conversations"
)

// SyncStateManager mutates one stream's sync state inside a session record.
// Mutations happen in memory; the orchestrator calls Commit once per parse
// pass so a crash between passes loses at most the pass in flight, which the
// idempotent record IDs absorb on the next run.
type SyncStateManager struct {
	store   *SessionStore
	session *schema.Session
	stream  Stream
}

// NewSyncStateManager wraps a loaded session for one stream
func NewSyncStateManager(store *SessionStore, session *schema.Session, stream Stream) *SyncStateManager {
	return &SyncStateManager{store: store, session: session, stream: stream}
}

// Initialize ensures the stream's sync state exists. Safe to call on every
// pass; an existing state is never reset.
func (m *SyncStateManager) Initialize() {
	if m.session.Sync == nil {
		m.session.Sync = &schema.SessionSync{}
	}
	if m.current() == nil {
		m.set(schema.NewSyncState())
	}
}

// State returns the stream's sync state, initializing it if needed
func (m *SyncStateManager) State() *schema.SyncState {
	m.Initialize()
	return m.current()
}

func (m *SyncStateManager) current() *schema.SyncState {
	if m.session.Sync == nil {
		return nil
	}
	switch m.stream {
	case StreamConversations:
		return m.session.Sync.Conversations
	default:
		return m.session.Sync.Metrics
	}
}

func (m *SyncStateManager) set(st *schema.SyncState) {
	switch m.stream {
	case StreamConversations:
		m.session.Sync.Conversations = st
	default:
		m.session.Sync.Metrics = st
	}
}

// IsProcessed reports whether a record ID has already produced output
func (m *SyncStateManager) IsProcessed(recordID string) bool {
	st := m.State()
	return st.ProcessedRecordIDs[recordID]
}

// AddProcessedRecords marks record IDs as handled. The set only grows.
func (m *SyncStateManager) AddProcessedRecords(recordIDs []string) {
	st := m.State()
	if st.ProcessedRecordIDs == nil {
		st.ProcessedRecordIDs = make(map[string]bool)
	}
	for _, id := range recordIDs {
		if id != "" {
			st.ProcessedRecordIDs[id] = true
		}
	}
}

// AddAttachedUserPromptTexts remembers prompt texts already attached to an
// emitted delta, so a later pass over the same log lines does not attach
// them twice.
func (m *SyncStateManager) AddAttachedUserPromptTexts(texts []string) {
	st := m.State()
	if st.AttachedPromptTexts == nil {
		st.AttachedPromptTexts = make(map[string]bool)
	}
	for _, t := range texts {
		if t != "" {
			st.AttachedPromptTexts[t] = true
		}
	}
}

// UpdateLastProcessed advances the parse cursor
func (m *SyncStateManager) UpdateLastProcessed(line int, timestamp string) {
	st := m.State()
	if line > st.LastProcessedLine {
		st.LastProcessedLine = line
	}
	if timestamp != "" {
		st.LastProcessedTimestamp = timestamp
	}
}

// AdvanceHistoryIndex moves the next history index forward, never backward
func (m *SyncStateManager) AdvanceHistoryIndex(next int) {
	st := m.State()
	if next > st.NextHistoryIndex {
		st.NextHistoryIndex = next
	}
}

// IncrementDeltas counts newly emitted records for this stream
func (m *SyncStateManager) IncrementDeltas(n int) {
	if n > 0 {
		m.State().TotalDeltas += n
	}
}

// RecordSynced marks records as durably written to the sink
func (m *SyncStateManager) RecordSynced(lastRecordID string, n int) {
	st := m.State()
	st.TotalSynced += n
	if lastRecordID != "" {
		st.LastSyncedRecordID = lastRecordID
	}
	st.LastSyncError = ""
}

// RecordSyncFailure counts a failed sink write and keeps the last error
func (m *SyncStateManager) RecordSyncFailure(n int, err error) {
	st := m.State()
	st.TotalFailed += n
	if err != nil {
		st.LastSyncError = err.Error()
	}
}

// Commit persists the session, including this manager's mutations
func (m *SyncStateManager) Commit() error {
	return m.store.Save(m.session)
}

// TouchSession stamps the session end time and status, used at agent exit
func (m *SyncStateManager) TouchSession(status schema.SessionStatus) {
	now := time.Now().UTC()
	m.session.EndTime = &now
	m.session.Status = status
}
