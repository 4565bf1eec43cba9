package schema

// TokenTotals holds token counts aggregated from native usage blocks.
// Field names mirror the Claude API usage fields.
type TokenTotals struct {
	Input         int `json:"input"`
	Output        int `json:"output"`
	CacheCreation int `json:"cache_creation,omitempty"`
	CacheRead     int `json:"cache_read,omitempty"`
}

// ToolStatus counts successful and failed invocations of one tool
type ToolStatus struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// FileOperation describes one file-level action derived from a tool call
type FileOperation struct {
	Type         string `json:"type"` // read, write, edit, search
	Path         string `json:"path,omitempty"`
	Pattern      string `json:"pattern,omitempty"`
	Language     string `json:"language,omitempty"`
	Format       string `json:"format,omitempty"`
	LinesAdded   int    `json:"lines_added,omitempty"`
	LinesRemoved int    `json:"lines_removed,omitempty"`
	DurationMs   int    `json:"duration_ms,omitempty"`
}

// UserPrompt carries the count of prompts attached to a delta and, at most
// once per distinct prompt per session, the prompt text itself.
type UserPrompt struct {
	Count int    `json:"count"`
	Text  string `json:"text,omitempty"`
}

// MetricDelta is one normalized unit of incremental usage telemetry.
// RecordID is derived from the native message's own identifier and must be
// stable across repeated parses of the same native record: it is the
// deduplication key, never regenerated.
type MetricDelta struct {
	RecordID        string                `json:"record_id"`
	SessionID       string                `json:"session_id"`
	AgentSessionID  string                `json:"agent_session_id,omitempty"`
	Timestamp       string                `json:"timestamp"`
	GitBranch       string                `json:"git_branch,omitempty"`
	Tokens          TokenTotals           `json:"tokens"`
	Tools           map[string]int        `json:"tools,omitempty"`
	ToolStatus      map[string]ToolStatus `json:"tool_status,omitempty"`
	FileOperations  []FileOperation       `json:"file_operations,omitempty"`
	Models          []string              `json:"models,omitempty"`
	APIErrorMessage string                `json:"api_error_message,omitempty"`
	UserPrompts     []UserPrompt          `json:"user_prompts,omitempty"`
	SyncStatus      SyncStatus            `json:"sync_status"`
	SyncAttempts    int                   `json:"sync_attempts"`
}
