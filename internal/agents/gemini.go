package agents

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentlens/cli/internal/schema"
	"github.com/agentlens/cli/internal/turns"
)

// Gemini CLI creates its project dir asynchronously, a bit later than the
// JSONL-based agents create their first log file.
const geminiInitDelay = 3 * time.Second

// GeminiAdapter reads Gemini CLI logs: a single rewritten JSON array at
// ~/.gemini/tmp/<project-hash>/logs.json. Only user prompts are recorded
// natively, so deltas carry prompt counts and zero token usage.
type GeminiAdapter struct {
	homeDir string
}

// NewGeminiAdapter creates the adapter rooted at the given home dir
func NewGeminiAdapter(homeDir string) *GeminiAdapter {
	return &GeminiAdapter{homeDir: homeDir}
}

func (a *GeminiAdapter) Name() schema.Agent { return schema.AgentGeminiCLI }

func (a *GeminiAdapter) Command() string { return "gemini" }

// SessionDirs hashes the working directory the same way Gemini CLI does to
// name its per-project temp dir.
func (a *GeminiAdapter) SessionDirs(workDir string) []string {
	sum := sha256.Sum256([]byte(workDir))
	return []string{filepath.Join(a.homeDir, ".gemini", "tmp", hex.EncodeToString(sum[:]))}
}

func (a *GeminiAdapter) MatchesSessionPattern(path string) bool {
	return filepath.Base(path) == "logs.json"
}

// ExtractSessionID returns the project hash; the native session ID only
// becomes known once the log has entries.
func (a *GeminiAdapter) ExtractSessionID(path string) string {
	return filepath.Base(filepath.Dir(path))
}

func (a *GeminiAdapter) InitDelay() time.Duration { return geminiInitDelay }

type geminiEntry struct {
	SessionID string `json:"sessionId"`
	MessageID int    `json:"messageId"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// readEntries decodes logs.json. The outer array is parsed into raw
// elements first so one corrupt entry does not discard the rest.
func (a *GeminiAdapter) readEntries(path string) ([]geminiEntry, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("reading gemini log: %w", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("parsing gemini log: %w", err)
	}
	var entries []geminiEntry
	malformed := 0
	for _, r := range raw {
		var e geminiEntry
		if err := json.Unmarshal(r, &e); err != nil {
			malformed++
			continue
		}
		entries = append(entries, e)
	}
	return entries, malformed, nil
}

// ParseIncrementalMetrics emits one zero-token delta per new user prompt
func (a *GeminiAdapter) ParseIncrementalMetrics(path string, processed map[string]bool, attachedPrompts map[string]bool) (ParseResult, error) {
	entries, malformed, err := a.readEntries(path)
	if err != nil {
		return ParseResult{}, err
	}

	result := ParseResult{MalformedLines: malformed}
	newlyAttached := make(map[string]bool)

	for i, e := range entries {
		result.LastLine = i + 1
		if e.Timestamp != "" {
			result.LastTimestamp = e.Timestamp
		}
		if e.Type != "user" {
			continue
		}
		recordID := fmt.Sprintf("%s:%d", e.SessionID, e.MessageID)
		if processed[recordID] {
			continue
		}

		up := schema.UserPrompt{Count: 1}
		if !attachedPrompts[e.Message] && !newlyAttached[e.Message] {
			up.Text = e.Message
			newlyAttached[e.Message] = true
			result.NewlyAttachedPrompts = append(result.NewlyAttachedPrompts, e.Message)
		}
		result.Deltas = append(result.Deltas, schema.MetricDelta{
			RecordID:       recordID,
			AgentSessionID: e.SessionID,
			Timestamp:      e.Timestamp,
			UserPrompts:    []schema.UserPrompt{up},
			SyncStatus:     schema.SyncPending,
		})
	}
	return result, nil
}

// ParseConversation emits user-side history only; Gemini does not log
// assistant responses, so every prompt is its own completed turn and the
// final flag has nothing to release.
func (a *GeminiAdapter) ParseConversation(path string, fromTurn int, nextHistoryIndex int, final bool) ([]schema.ConversationPayloadRecord, int, error) {
	entries, _, err := a.readEntries(path)
	if err != nil {
		return nil, nextHistoryIndex, err
	}

	conversationID := a.ExtractSessionID(path)
	var prompts []geminiEntry
	for _, e := range entries {
		if e.Type == "user" {
			if e.SessionID != "" {
				conversationID = e.SessionID
			}
			prompts = append(prompts, e)
		}
	}
	if fromTurn >= len(prompts) {
		return nil, nextHistoryIndex, nil
	}

	var history []schema.HistoryEntry
	var indices []int
	hi := nextHistoryIndex
	for i := fromTurn; i < len(prompts); i++ {
		turn := turns.Turn{
			UserMessage: &turns.Message{
				Role: "user",
				Text: prompts[i].Message,
				Time: parseClaudeTime(prompts[i].Timestamp),
			},
		}
		history = append(history, turns.BuildHistory(turn, hi)...)
		indices = append(indices, hi)
		hi++
	}

	record := schema.ConversationPayloadRecord{
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		IsTurnContinuation: fromTurn > 0,
		HistoryIndices:     indices,
		MessageCount:       len(history),
		Payload: schema.ConversationPayload{
			ConversationID: conversationID,
			History:        history,
		},
		Status: schema.SyncPending,
	}
	return []schema.ConversationPayloadRecord{record}, hi, nil
}
