package schema

// Agent identifies a supported coding-agent family
type Agent string

const (
	AgentClaudeCode Agent = "claude-code"
	AgentCodex      Agent = "codex"
	AgentGeminiCLI  Agent = "gemini-cli"
)

// SessionStatus is the lifecycle status of a CLI-level session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionRecovered SessionStatus = "recovered"
	SessionFailed    SessionStatus = "failed"
)

// CorrelationStatus is the outcome of matching a native log file to a session
type CorrelationStatus string

const (
	// CorrelationPending means no candidate file has appeared yet; transient.
	CorrelationPending CorrelationStatus = "pending"
	// CorrelationMatched and CorrelationFailed are terminal for a given run.
	CorrelationMatched CorrelationStatus = "matched"
	CorrelationFailed  CorrelationStatus = "failed"
)

// SyncStatus marks whether a record has been handed off to the remote-sync collaborator
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// IsValidAgent checks if the given agent name is supported
func IsValidAgent(name string) bool {
	switch name {
	case "claude-code", "claude", "codex", "gemini-cli", "gemini":
		return true
	default:
		return false
	}
}

// NormalizeAgent converts agent aliases to canonical names
func NormalizeAgent(name string) Agent {
	switch name {
	case "claude-code", "claude":
		return AgentClaudeCode
	case "codex":
		return AgentCodex
	case "gemini-cli", "gemini":
		return AgentGeminiCLI
	default:
		return ""
	}
}

// ProviderFor returns the model provider behind an agent family
func ProviderFor(agent Agent) string {
	switch agent {
	case AgentClaudeCode:
		return "anthropic"
	case AgentCodex:
		return "openai"
	case AgentGeminiCLI:
		return "google"
	default:
		return ""
	}
}
