// Package agents holds the per-agent-family transformers that turn native
// on-disk session logs into normalized metric deltas and conversation
// records. The set of families is closed; each implements Adapter and is
// registered explicitly at startup.
package agents

import (
	"time"

	"github.com/agentlens/cli/internal/schema"
)

// ParseResult is the output of one incremental metrics pass over a native log
type ParseResult struct {
	Deltas        []schema.MetricDelta
	LastLine      int
	LastTimestamp string
	// NewlyAttachedPrompts lists prompt texts attached to a delta during
	// this pass, so the caller can record them and prevent reattachment.
	NewlyAttachedPrompts []string
	// MalformedLines counts lines skipped because they failed to parse
	MalformedLines int
}

// Adapter is the contract every agent family implements. Incremental
// parsers must be pure given their inputs: re-parsing the same file with the
// same processed-record set reproduces exactly the not-yet-seen records.
type Adapter interface {
	// Name returns the canonical agent identifier
	Name() schema.Agent

	// Command returns the executable the CLI spawns for this agent
	Command() string

	// SessionDirs returns the directories where this agent writes session
	// logs for the given working directory. More than one entry when the
	// agent shards logs by date.
	SessionDirs(workDir string) []string

	// MatchesSessionPattern reports whether a path looks like this agent's
	// session log file.
	MatchesSessionPattern(path string) bool

	// ExtractSessionID derives the agent's native session ID from a log path
	ExtractSessionID(path string) string

	// InitDelay is how long the agent needs after spawn before its session
	// log file exists on disk.
	InitDelay() time.Duration

	// ParseIncrementalMetrics scans the native log and emits one delta per
	// not-yet-processed native record. processed and attachedPrompts are
	// read-only to the adapter; the caller owns their mutation.
	ParseIncrementalMetrics(path string, processed map[string]bool, attachedPrompts map[string]bool) (ParseResult, error)

	// ParseConversation emits normalized conversation records for the turns
	// starting at fromTurn, assigning history indices from nextHistoryIndex.
	// Returns the records and the next unused history index. An in-flight
	// trailing turn with no assistant response is held back until a later
	// pass sees it complete; final disables the holdback so the exit flush
	// still emits a prompt that never got an answer.
	ParseConversation(path string, fromTurn int, nextHistoryIndex int, final bool) ([]schema.ConversationPayloadRecord, int, error)
}

// Registry maps agent names to their adapters. Constructed once at startup
// and passed to whoever needs dispatch; there is no package-level instance.
type Registry struct {
	adapters map[schema.Agent]Adapter
}

// NewRegistry builds the registry of all supported agent families
func NewRegistry(homeDir string) *Registry {
	r := &Registry{adapters: make(map[schema.Agent]Adapter)}
	r.register(NewClaudeCodeAdapter(homeDir))
	r.register(NewCodexAdapter(homeDir))
	r.register(NewGeminiAdapter(homeDir))
	return r
}

func (r *Registry) register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter for an agent name or alias
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[schema.NormalizeAgent(name)]
	return a, ok
}

// Names returns the canonical names of all registered agents
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for _, agent := range []schema.Agent{schema.AgentClaudeCode, schema.AgentCodex, schema.AgentGeminiCLI} {
		if _, ok := r.adapters[agent]; ok {
			out = append(out, string(agent))
		}
	}
	return out
}
