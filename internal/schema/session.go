package schema

import "time"

// FileInfo describes one file observed in a directory snapshot
type FileInfo struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// FileSnapshot is an immutable point-in-time capture of a directory's files
type FileSnapshot struct {
	Timestamp time.Time  `json:"timestamp"`
	Files     []FileInfo `json:"files"`
}

// CorrelationResult records how a native session log was matched to a run.
// Created once per run by the orchestrator, mutated only by the correlator.
type CorrelationResult struct {
	Status          CorrelationStatus `json:"status"`
	MatchedFilePath string            `json:"matched_file_path,omitempty"`
	NativeSessionID string            `json:"native_session_id,omitempty"`
	DetectedAt      *time.Time        `json:"detected_at,omitempty"`
	RetryCount      int               `json:"retry_count"`
}

// SyncState tracks incremental-parse progress for one session's native log.
// ProcessedRecordIDs only grows; an ID present there is never re-emitted.
type SyncState struct {
	LastProcessedLine      int             `json:"last_processed_line"`
	LastProcessedTimestamp string          `json:"last_processed_timestamp,omitempty"`
	ProcessedRecordIDs     map[string]bool `json:"processed_record_ids"`
	AttachedPromptTexts    map[string]bool `json:"attached_user_prompt_texts,omitempty"`
	LastSyncedRecordID     string          `json:"last_synced_record_id,omitempty"`
	NextHistoryIndex       int             `json:"next_history_index"`
	TotalDeltas            int             `json:"total_deltas"`
	TotalSynced            int             `json:"total_synced"`
	TotalFailed            int             `json:"total_failed"`
	LastSyncError          string          `json:"last_sync_error,omitempty"`
}

// NewSyncState creates an empty sync state with initialized sets
func NewSyncState() *SyncState {
	return &SyncState{
		ProcessedRecordIDs:  make(map[string]bool),
		AttachedPromptTexts: make(map[string]bool),
	}
}

// SessionSync groups the per-stream sync states persisted with a session
type SessionSync struct {
	Metrics       *SyncState `json:"metrics_sync_state,omitempty"`
	Conversations *SyncState `json:"conversations_sync_state,omitempty"`
}

// Session is the durable record for one CLI-level run.
// Created at pre-spawn, updated at correlation and at exit; never deleted.
type Session struct {
	SessionID        string            `json:"session_id"`
	AgentName        Agent             `json:"agent_name"`
	Provider         string            `json:"provider,omitempty"`
	Project          string            `json:"project,omitempty"`
	StartTime        time.Time         `json:"start_time"`
	EndTime          *time.Time        `json:"end_time,omitempty"`
	WorkingDirectory string            `json:"working_directory"`
	Status           SessionStatus     `json:"status"`
	Correlation      CorrelationResult `json:"correlation"`
	Sync             *SessionSync      `json:"sync,omitempty"`
}
