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

const claudeInitDelay = 2 * time.Second

// ClaudeCodeAdapter reads Claude Code session logs: one JSONL file per
// session under ~/.claude/projects/<encoded-cwd>/<uuid>.jsonl.
type ClaudeCodeAdapter struct {
	homeDir string
}

// NewClaudeCodeAdapter creates the adapter rooted at the given home dir
func NewClaudeCodeAdapter(homeDir string) *ClaudeCodeAdapter {
	return &ClaudeCodeAdapter{homeDir: homeDir}
}

func (a *ClaudeCodeAdapter) Name() schema.Agent { return schema.AgentClaudeCode }

func (a *ClaudeCodeAdapter) Command() string { return "claude" }

// SessionDirs maps the working directory to its Claude Code project dir.
// The encoding mirrors what Claude Code does to build the directory name.
func (a *ClaudeCodeAdapter) SessionDirs(workDir string) []string {
	encoded := strings.ReplaceAll(workDir, "/", "-")
	encoded = strings.ReplaceAll(encoded, ".", "-")
	encoded = strings.ReplaceAll(encoded, "_", "-")
	return []string{filepath.Join(a.homeDir, ".claude", "projects", encoded)}
}

func (a *ClaudeCodeAdapter) MatchesSessionPattern(path string) bool {
	return strings.HasSuffix(path, ".jsonl")
}

func (a *ClaudeCodeAdapter) ExtractSessionID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}

func (a *ClaudeCodeAdapter) InitDelay() time.Duration { return claudeInitDelay }

// claudeLine is one raw JSONL entry of a Claude Code session log
type claudeLine struct {
	Type       string          `json:"type"`
	UUID       string          `json:"uuid"`
	Timestamp  string          `json:"timestamp"`
	GitBranch  string          `json:"gitBranch"`
	IsAPIError bool            `json:"isApiErrorMessage"`
	IsMeta     bool            `json:"isMeta"`
	Message    json.RawMessage `json:"message"`
}

type claudeMessage struct {
	ID      string          `json:"id"`
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *claudeUsage    `json:"usage"`
}

type claudeUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

type claudeBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// decodeBlocks handles the two native content shapes: a plain string or an
// array of typed blocks.
func decodeBlocks(raw json.RawMessage) []claudeBlock {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []claudeBlock{{Type: "text", Text: s}}
	}
	var blocks []claudeBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	return blocks
}

func blocksText(blocks []claudeBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// blockResultText extracts the textual payload of a tool_result block,
// whose content is either a string or nested text blocks.
func blockResultText(b claudeBlock) string {
	if len(b.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b.Content, &s); err == nil {
		return s
	}
	return blocksText(decodeBlocks(b.Content))
}

// isHumanPrompt filters out synthetic user entries: slash-command envelopes,
// interruption notices, and injected bash transcripts.
func isHumanPrompt(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, prefix := range []string{
		"<command-name>",
		"<command-message>",
		"<local-command-stdout>",
		"<bash-input>",
		"<bash-stdout>",
		"[Request interrupted",
		"Caveat: The messages below",
	} {
		if strings.HasPrefix(text, prefix) {
			return false
		}
	}
	return true
}

// ParseIncrementalMetrics emits one delta per not-yet-processed assistant
// record. User prompts seen since the previous assistant record attach to
// the delta that answers them; prompt text is carried at most once per
// distinct prompt per session via attachedPrompts.
func (a *ClaudeCodeAdapter) ParseIncrementalMetrics(path string, processed map[string]bool, attachedPrompts map[string]bool) (ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ParseResult{}, fmt.Errorf("opening session log: %w", err)
	}
	defer f.Close()

	var result ParseResult
	newlyAttached := make(map[string]bool)

	var pendingPrompts []string
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

		var entry claudeLine
		if err := json.Unmarshal(line, &entry); err != nil {
			result.MalformedLines++
			continue
		}
		if entry.Timestamp != "" {
			result.LastTimestamp = entry.Timestamp
		}
		result.LastLine = lineNo

		switch entry.Type {
		case "user":
			if entry.IsMeta {
				continue
			}
			var msg claudeMessage
			if err := json.Unmarshal(entry.Message, &msg); err != nil {
				result.MalformedLines++
				continue
			}
			blocks := decodeBlocks(msg.Content)
			hasResult := false
			for _, b := range blocks {
				if b.Type == "tool_result" {
					hasResult = true
					name := toolNames[b.ToolUseID]
					if name == "" {
						continue
					}
					st := pendingStatus[name]
					if b.IsError {
						st.Failure++
					} else {
						st.Success++
					}
					pendingStatus[name] = st
				}
			}
			if hasResult {
				continue
			}
			if text := blocksText(blocks); isHumanPrompt(text) {
				pendingPrompts = append(pendingPrompts, text)
			}

		case "assistant":
			var msg claudeMessage
			if err := json.Unmarshal(entry.Message, &msg); err != nil {
				result.MalformedLines++
				continue
			}
			recordID := msg.ID
			if recordID == "" {
				recordID = entry.UUID
			}
			if recordID == "" {
				recordID = fmt.Sprintf("line-%d", lineNo)
			}
			blocks := decodeBlocks(msg.Content)
			for _, b := range blocks {
				if b.Type == "tool_use" && b.ID != "" {
					toolNames[b.ID] = b.Name
				}
			}
			if processed[recordID] {
				// Already emitted in an earlier pass; its context resets
				// so replayed prompts and results never leak forward.
				pendingPrompts = nil
				pendingStatus = make(map[string]schema.ToolStatus)
				continue
			}

			delta := schema.MetricDelta{
				RecordID:   recordID,
				Timestamp:  entry.Timestamp,
				GitBranch:  entry.GitBranch,
				SyncStatus: schema.SyncPending,
			}
			if msg.Usage != nil {
				delta.Tokens = schema.TokenTotals{
					Input:         msg.Usage.InputTokens,
					Output:        msg.Usage.OutputTokens,
					CacheCreation: msg.Usage.CacheCreationInputTokens,
					CacheRead:     msg.Usage.CacheReadInputTokens,
				}
			}
			if msg.Model != "" {
				delta.Models = []string{msg.Model}
			}
			if entry.IsAPIError {
				delta.APIErrorMessage = blocksText(blocks)
			}
			for _, b := range blocks {
				if b.Type != "tool_use" {
					continue
				}
				if delta.Tools == nil {
					delta.Tools = make(map[string]int)
				}
				delta.Tools[b.Name]++
				if op := fileOperationFor(b.Name, b.Input); op != nil {
					delta.FileOperations = append(delta.FileOperations, *op)
				}
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
		return result, fmt.Errorf("reading session log: %w", err)
	}
	return result, nil
}

// claudeToolInput covers the input fields of the file-touching builtin tools
type claudeToolInput struct {
	FilePath     string `json:"file_path"`
	NotebookPath string `json:"notebook_path"`
	Pattern      string `json:"pattern"`
	Path         string `json:"path"`
}

func fileOperationFor(toolName string, input json.RawMessage) *schema.FileOperation {
	var in claudeToolInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil
		}
	}
	switch toolName {
	case "Read":
		return &schema.FileOperation{Type: "read", Path: in.FilePath, Language: languageFor(in.FilePath)}
	case "Write":
		return &schema.FileOperation{Type: "write", Path: in.FilePath, Language: languageFor(in.FilePath)}
	case "Edit", "MultiEdit":
		return &schema.FileOperation{Type: "edit", Path: in.FilePath, Language: languageFor(in.FilePath)}
	case "NotebookEdit":
		return &schema.FileOperation{Type: "edit", Path: in.NotebookPath, Format: "notebook"}
	case "Grep":
		return &schema.FileOperation{Type: "search", Path: in.Path, Pattern: in.Pattern}
	case "Glob":
		return &schema.FileOperation{Type: "search", Path: in.Path, Pattern: in.Pattern}
	default:
		return nil
	}
}

var extLanguages = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".java": "java",
	".rb":   "ruby",
	".sh":   "shell",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
}

func languageFor(path string) string {
	return extLanguages[strings.ToLower(filepath.Ext(path))]
}

// ParseConversation reduces the log to neutral messages, detects turns, and
// emits one record covering all turns completed since fromTurn. On the final
// pass an unanswered trailing prompt is emitted as-is rather than held back.
func (a *ClaudeCodeAdapter) ParseConversation(path string, fromTurn int, nextHistoryIndex int, final bool) ([]schema.ConversationPayloadRecord, int, error) {
	messages, err := a.readMessages(path)
	if err != nil {
		return nil, nextHistoryIndex, err
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

// holdBackInFlight drops a trailing turn that has no response yet; the next
// pass emits it once the assistant has answered.
func holdBackInFlight(detected []turns.Turn) []turns.Turn {
	if n := len(detected); n > 0 {
		last := detected[n-1]
		if len(last.AssistantMessages) == 0 && len(last.SystemMessages) == 0 {
			return detected[:n-1]
		}
	}
	return detected
}

func (a *ClaudeCodeAdapter) readMessages(path string) ([]turns.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	defer f.Close()

	var messages []turns.Message
	scanner := newLineScanner(f, maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry claudeLine
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.IsMeta {
			continue
		}

		switch entry.Type {
		case "user":
			var msg claudeMessage
			if err := json.Unmarshal(entry.Message, &msg); err != nil {
				continue
			}
			blocks := decodeBlocks(msg.Content)
			m := turns.Message{
				Role: "user",
				Time: parseClaudeTime(entry.Timestamp),
			}
			for _, b := range blocks {
				if b.Type == "tool_result" {
					m.ToolResults = append(m.ToolResults, turns.ToolResult{
						ToolUseID: b.ToolUseID,
						Output:    blockResultText(b),
						IsError:   b.IsError,
					})
				}
			}
			text := blocksText(blocks)
			if len(m.ToolResults) > 0 && text == "" {
				m.IsToolResultOnly = true
			} else if !isHumanPrompt(text) {
				continue
			}
			m.Text = text
			m.RawText = text
			messages = append(messages, m)

		case "assistant":
			var msg claudeMessage
			if err := json.Unmarshal(entry.Message, &msg); err != nil {
				continue
			}
			blocks := decodeBlocks(msg.Content)
			if entry.IsAPIError {
				messages = append(messages, turns.Message{
					Role:       "system",
					IsAPIError: true,
					ErrorText:  blocksText(blocks),
					Time:       parseClaudeTime(entry.Timestamp),
				})
				continue
			}
			m := turns.Message{
				ID:    msg.ID,
				Role:  "assistant",
				Text:  blocksText(blocks),
				Model: msg.Model,
				Time:  parseClaudeTime(entry.Timestamp),
			}
			if msg.Usage != nil {
				m.Usage = &turns.Usage{
					Input:         msg.Usage.InputTokens,
					Output:        msg.Usage.OutputTokens,
					CacheCreation: msg.Usage.CacheCreationInputTokens,
					CacheRead:     msg.Usage.CacheReadInputTokens,
				}
			}
			for _, b := range blocks {
				if b.Type == "tool_use" {
					m.ToolCalls = append(m.ToolCalls, turns.ToolCall{
						ID:    b.ID,
						Name:  b.Name,
						Input: string(b.Input),
					})
				}
			}
			messages = append(messages, m)

		case "system":
			var msg claudeMessage
			text := ""
			if json.Unmarshal(entry.Message, &msg) == nil {
				text = blocksText(decodeBlocks(msg.Content))
			}
			messages = append(messages, turns.Message{
				Role:       "system",
				Text:       text,
				IsAPIError: entry.IsAPIError,
				ErrorText:  text,
				Time:       parseClaudeTime(entry.Timestamp),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading session log: %w", err)
	}
	return messages, nil
}

func parseClaudeTime(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t
	}
	return time.Time{}
}
