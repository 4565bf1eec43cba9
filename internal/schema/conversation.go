package schema

// Thought is one normalized tool call+result pair inside an assistant turn.
// The invocation and its result may come from separate native messages or a
// single self-contained structure; both shapes collapse into this record.
type Thought struct {
	ToolUseID  string `json:"tool_use_id,omitempty"`
	ToolName   string `json:"tool_name"`
	Input      string `json:"input,omitempty"`
	Output     string `json:"output,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
	DurationMs int    `json:"duration_ms,omitempty"`
}

// Role distinguishes the two transcript sides
type Role string

const (
	RoleUser      Role = "User"
	RoleAssistant Role = "Assistant"
)

// HistoryEntry is one side of a conversation turn in normalized form.
// HistoryIndex is monotonically non-decreasing across a session and
// increments by exactly one per new (non-continuation) turn.
type HistoryEntry struct {
	Role            Role      `json:"role"`
	Message         string    `json:"message"`
	MessageRaw      string    `json:"message_raw,omitempty"`
	HistoryIndex    int       `json:"history_index"`
	Date            string    `json:"date"`
	FileNames       []string  `json:"file_names,omitempty"`
	InputTokens     int       `json:"input_tokens,omitempty"`
	OutputTokens    int       `json:"output_tokens,omitempty"`
	CacheCreationIn int       `json:"cache_creation_input_tokens,omitempty"`
	CacheReadIn     int       `json:"cache_read_input_tokens,omitempty"`
	AssistantID     string    `json:"assistant_id,omitempty"`
	Thoughts        []Thought `json:"thoughts,omitempty"`
	ResponseTimeMs  int       `json:"response_time,omitempty"`
}

// ConversationPayload is the turn content shipped inside a payload record
type ConversationPayload struct {
	ConversationID string         `json:"conversation_id"`
	History        []HistoryEntry `json:"history"`
}

// ConversationPayloadRecord is one appended line of the conversation-turn log
type ConversationPayloadRecord struct {
	Timestamp          string              `json:"timestamp"`
	IsTurnContinuation bool                `json:"is_turn_continuation"`
	HistoryIndices     []int               `json:"history_indices"`
	MessageCount       int                 `json:"message_count"`
	Payload            ConversationPayload `json:"payload"`
	Status             SyncStatus          `json:"status"`
}
