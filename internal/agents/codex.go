package agents

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentlens/cli/internal/schema"
	"github.com/agentlens/cli/internal/turns"
)

const codexInitDelay = 2 * time.Second

// CodexAdapter reads Codex rollout logs: one JSONL file per session under
// ~/.codex/sessions/YYYY/MM/DD/rollout-<datetime>-<uuid>.jsonl. Every line
// is an envelope {timestamp, type, payload}; a session_meta head record
// carries the working directory used for correlation.
type CodexAdapter struct {
	homeDir string
	now     func() time.Time
}

// NewCodexAdapter creates the adapter rooted at the given home dir
func NewCodexAdapter(homeDir string) *CodexAdapter {
	return &CodexAdapter{homeDir: homeDir, now: time.Now}
}

func (a *CodexAdapter) Name() schema.Agent { return schema.AgentCodex }

func (a *CodexAdapter) Command() string { return "codex" }

// SessionDirs returns today's and yesterday's dated session directories;
// a session started just before midnight lands in the earlier one.
func (a *CodexAdapter) SessionDirs(workDir string) []string {
	base := filepath.Join(a.homeDir, ".codex", "sessions")
	now := a.now()
	dirs := []string{datedDir(base, now)}
	if y := datedDir(base, now.AddDate(0, 0, -1)); y != dirs[0] {
		dirs = append(dirs, y)
	}
	return dirs
}

func datedDir(base string, t time.Time) string {
	return filepath.Join(base, t.Format("2006"), t.Format("01"), t.Format("02"))
}

func (a *CodexAdapter) MatchesSessionPattern(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, "rollout-") && strings.HasSuffix(base, ".jsonl")
}

// ExtractSessionID pulls the trailing UUID out of the rollout filename
func (a *CodexAdapter) ExtractSessionID(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	base = strings.TrimPrefix(base, "rollout-")
	if len(base) > 36 {
		return base[len(base)-36:]
	}
	return base
}

func (a *CodexAdapter) InitDelay() time.Duration { return codexInitDelay }

type codexEnvelope struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// codexPayload is the union of the payload shapes this adapter consumes:
// session_meta (ID, Cwd, Model), response_item (Type, Role, Content, Name,
// CallID, Args, Output) and event_msg token_count (Type, Info).
type codexPayload struct {
	ID      string          `json:"id"`
	Cwd     string          `json:"cwd"`
	Model   string          `json:"model"`
	Type    string          `json:"type"`
	Role    string          `json:"role"`
	Content []codexContent  `json:"content"`
	Name    string          `json:"name"`
	CallID  string          `json:"call_id"`
	Args    string          `json:"arguments"`
	Output  json.RawMessage `json:"output"`
	Info    *codexTokenInfo `json:"info"`
}

type codexContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type codexTokenInfo struct {
	LastTokenUsage *codexTokenUsage `json:"last_token_usage"`
}

type codexTokenUsage struct {
	InputTokens       int `json:"input_tokens"`
	CachedInputTokens int `json:"cached_input_tokens"`
	OutputTokens      int `json:"output_tokens"`
}

// codexCallOutput is the JSON shape function_call_output usually carries
type codexCallOutput struct {
	Output   string `json:"output"`
	Metadata *struct {
		ExitCode int `json:"exit_code"`
	} `json:"metadata"`
}

func codexText(content []codexContent) string {
	var parts []string
	for _, c := range content {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// isCodexUserPrompt filters the synthetic context blocks Codex injects as
// user-role messages at session start.
func isCodexUserPrompt(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return !strings.HasPrefix(text, "<environment_context>") &&
		!strings.HasPrefix(text, "<user_instructions>")
}

// ParseIncrementalMetrics emits one delta per token_count event. Tool calls
// and prompts seen since the previous token_count attach to that delta.
// Token counts carry no native identifier, so the record ID is built from
// the line number and timestamp, both stable in an append-only log.
func (a *CodexAdapter) ParseIncrementalMetrics(path string, processed map[string]bool, attachedPrompts map[string]bool) (ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ParseResult{}, fmt.Errorf("opening rollout log: %w", err)
	}
	defer f.Close()

	var result ParseResult
	newlyAttached := make(map[string]bool)

	var model string
	var pendingPrompts []string
	pendingTools := make(map[string]int)
	pendingStatus := make(map[string]schema.ToolStatus)
	toolNames := make(map[string]string)

	scanner := newLineScanner(f, maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if line == nil {
			result.MalformedLines++
			continue
		}
		if len(line) == 0 {
			continue
		}
		var env codexEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			result.MalformedLines++
			continue
		}
		if env.Timestamp != "" {
			result.LastTimestamp = env.Timestamp
		}
		result.LastLine = lineNo

		var p codexPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			result.MalformedLines++
			continue
		}

		switch env.Type {
		case "session_meta":
			model = p.Model

		case "response_item":
			switch p.Type {
			case "message":
				if p.Role == "user" {
					if text := codexText(p.Content); isCodexUserPrompt(text) {
						pendingPrompts = append(pendingPrompts, text)
					}
				}
			case "function_call":
				name := p.Name
				if name == "" {
					name = "unknown"
				}
				toolNames[p.CallID] = name
				pendingTools[name]++
			case "function_call_output":
				name := toolNames[p.CallID]
				if name == "" {
					continue
				}
				st := pendingStatus[name]
				if _, failed := decodeCodexOutput(p.Output); failed {
					st.Failure++
				} else {
					st.Success++
				}
				pendingStatus[name] = st
			}

		case "event_msg":
			if p.Type != "token_count" || p.Info == nil || p.Info.LastTokenUsage == nil {
				continue
			}
			recordID := fmt.Sprintf("tc-%d-%s", lineNo, env.Timestamp)
			if processed[recordID] {
				pendingPrompts = nil
				pendingTools = make(map[string]int)
				pendingStatus = make(map[string]schema.ToolStatus)
				continue
			}

			usage := p.Info.LastTokenUsage
			delta := schema.MetricDelta{
				RecordID:  recordID,
				Timestamp: env.Timestamp,
				Tokens: schema.TokenTotals{
					Input:     usage.InputTokens,
					Output:    usage.OutputTokens,
					CacheRead: usage.CachedInputTokens,
				},
				SyncStatus: schema.SyncPending,
			}
			if model != "" {
				delta.Models = []string{model}
			}
			if len(pendingTools) > 0 {
				delta.Tools = pendingTools
				pendingTools = make(map[string]int)
			}
			if len(pendingStatus) > 0 {
				delta.ToolStatus = pendingStatus
				pendingStatus = make(map[string]schema.ToolStatus)
			}
			for _, prompt := range pendingPrompts {
				up := schema.UserPrompt{Count: 1}
				if !attachedPrompts[prompt] && !newlyAttached[prompt] {
					up.Text = prompt
					newlyAttached[prompt] = true
					result.NewlyAttachedPrompts = append(result.NewlyAttachedPrompts, prompt)
				}
				delta.UserPrompts = append(delta.UserPrompts, up)
			}
			pendingPrompts = nil

			result.Deltas = append(result.Deltas, delta)
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("reading rollout log: %w", err)
	}
	return result, nil
}

// decodeCodexOutput unwraps a function_call_output payload. The output field
// is a JSON-encoded string, usually itself holding JSON with the command
// output and exit code; bare text outputs pass through unchanged.
func decodeCodexOutput(raw json.RawMessage) (text string, failed bool) {
	if len(raw) == 0 {
		return "", false
	}
	data := []byte(raw)
	var s string
	if json.Unmarshal(data, &s) == nil {
		data = []byte(s)
	}
	var out codexCallOutput
	if err := json.Unmarshal(data, &out); err != nil || (out.Output == "" && out.Metadata == nil) {
		return string(data), false
	}
	return out.Output, out.Metadata != nil && out.Metadata.ExitCode != 0
}

// ParseConversation maps rollout records to neutral messages and emits one
// record covering the turns completed since fromTurn. On the final pass an
// unanswered trailing prompt is emitted as-is rather than held back.
func (a *CodexAdapter) ParseConversation(path string, fromTurn int, nextHistoryIndex int, final bool) ([]schema.ConversationPayloadRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nextHistoryIndex, fmt.Errorf("opening rollout log: %w", err)
	}
	defer f.Close()

	var messages []turns.Message
	var model string

	scanner := newLineScanner(f, maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env codexEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			continue
		}
		var p codexPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			continue
		}
		ts := parseClaudeTime(env.Timestamp)

		if env.Type == "session_meta" {
			model = p.Model
			continue
		}
		if env.Type != "response_item" {
			continue
		}
		switch p.Type {
		case "message":
			text := codexText(p.Content)
			if p.Role == "user" {
				if !isCodexUserPrompt(text) {
					continue
				}
				messages = append(messages, turns.Message{Role: "user", Text: text, RawText: text, Time: ts})
			} else {
				messages = append(messages, turns.Message{Role: "assistant", Text: text, Model: model, Time: ts})
			}
		case "function_call":
			messages = append(messages, turns.Message{
				Role:      "assistant",
				Time:      ts,
				ToolCalls: []turns.ToolCall{{ID: p.CallID, Name: p.Name, Input: p.Args}},
			})
		case "function_call_output":
			text, failed := decodeCodexOutput(p.Output)
			messages = append(messages, turns.Message{
				Role:             "user",
				IsToolResultOnly: true,
				Time:             ts,
				ToolResults: []turns.ToolResult{{
					ToolUseID: p.CallID,
					Output:    text,
					IsError:   failed,
				}},
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nextHistoryIndex, fmt.Errorf("reading rollout log: %w", err)
	}

	detected := turns.Detect(messages)
	if !final {
		detected = holdBackInFlight(detected)
	}
	if fromTurn >= len(detected) {
		return nil, nextHistoryIndex, nil
	}

	var history []schema.HistoryEntry
	var indices []int
	hi := nextHistoryIndex
	for i := fromTurn; i < len(detected); i++ {
		history = append(history, turns.BuildHistory(detected[i], hi)...)
		indices = append(indices, hi)
		hi++
	}
	if len(history) == 0 {
		return nil, nextHistoryIndex, nil
	}

	record := schema.ConversationPayloadRecord{
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		IsTurnContinuation: fromTurn > 0,
		HistoryIndices:     indices,
		MessageCount:       len(history),
		Payload: schema.ConversationPayload{
			ConversationID: a.ExtractSessionID(path),
			History:        history,
		},
		Status: schema.SyncPending,
	}
	return []schema.ConversationPayloadRecord{record}, hi, nil
}
