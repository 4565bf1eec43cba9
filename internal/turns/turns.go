// Package turns holds the conversation algorithms shared by all agent
// transformers: turn-boundary detection, token aggregation across the
// assistant messages of one turn, and tool call/result pairing.
//
// Transformers reduce their native log entries to the neutral Message type;
// everything downstream is agent-agnostic.
package turns

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentlens/cli/internal/schema"
)

// Usage mirrors the native token usage block of one assistant message
type Usage struct {
	Input         int
	Output        int
	CacheRead     int
	CacheCreation int
}

// ToolCall is one tool invocation issued by an assistant message
type ToolCall struct {
	ID    string
	Name  string
	Input string
}

// ToolResult is the outcome of a tool invocation, usually delivered in a
// later user-role continuation message.
type ToolResult struct {
	ToolUseID string
	Output    string
	IsError   bool
}

// Message is one native log entry reduced to the fields the shared
// algorithms need. Role follows the native log ("user", "assistant",
// "system"); IsToolResultOnly marks user-role entries that carry nothing but
// tool results and therefore continue the previous turn instead of starting
// a new one.
type Message struct {
	ID               string
	Role             string
	Text             string
	RawText          string
	Time             time.Time
	Model            string
	IsToolResultOnly bool
	IsAPIError       bool
	ErrorText        string
	Usage            *Usage
	ToolCalls        []ToolCall
	ToolResults      []ToolResult
	// PairedThoughts holds call+result pairs for formats that deliver both
	// in one self-contained native structure.
	PairedThoughts []schema.Thought
	FileNames      []string
}

// Turn is one user-message-to-final-assistant-response unit. Transient:
// turns are recomputed from the message slice, never persisted.
type Turn struct {
	StartIndex        int
	EndIndex          int
	UserMessage       *Message
	AssistantMessages []*Message
	SystemMessages    []*Message
}

// Detect splits messages into turns. A turn begins at a user-authored
// message and ends at the next user-authored non-tool-result message, a
// terminal system/error message, or end-of-stream. Messages preceding the
// first user message belong to no turn.
func Detect(messages []Message) []Turn {
	var out []Turn
	var current *Turn

	flush := func(end int) {
		if current != nil {
			current.EndIndex = end
			out = append(out, *current)
			current = nil
		}
	}

	for i := range messages {
		m := &messages[i]
		switch {
		case m.Role == "user" && !m.IsToolResultOnly:
			flush(i - 1)
			current = &Turn{StartIndex: i, UserMessage: m}
		case current == nil:
			// Preamble before any user message; not part of a turn.
		case m.Role == "assistant":
			current.AssistantMessages = append(current.AssistantMessages, m)
		case m.Role == "system":
			current.SystemMessages = append(current.SystemMessages, m)
			if m.IsAPIError {
				flush(i)
			}
		default:
			// Tool-result continuation: stays inside the current turn so
			// ExtractThoughts can pair its results with earlier invocations.
			if m.IsToolResultOnly {
				current.AssistantMessages = appendToolResultCarrier(current.AssistantMessages, m)
			}
		}
	}
	flush(len(messages) - 1)

	return out
}

// appendToolResultCarrier keeps tool-result-only user messages reachable for
// pairing without treating them as assistant output.
func appendToolResultCarrier(msgs []*Message, m *Message) []*Message {
	if len(m.ToolResults) == 0 {
		return msgs
	}
	return append(msgs, m)
}

// AggregateTokens sums usage across the assistant messages of one turn.
// Input tokens come from the first assistant message (the prompt context of
// the turn), output tokens are summed across all of them, cache-read comes
// from the last (cache state reflects the most recent call), cache-creation
// is summed.
func AggregateTokens(t Turn) schema.TokenTotals {
	var totals schema.TokenTotals
	seenFirst := false

	for _, m := range t.AssistantMessages {
		if m.Usage == nil {
			continue
		}
		if !seenFirst {
			totals.Input = m.Usage.Input
			seenFirst = true
		}
		totals.Output += m.Usage.Output
		totals.CacheCreation += m.Usage.CacheCreation
		totals.CacheRead = m.Usage.CacheRead
	}

	return totals
}

// ExtractThoughts pairs each tool invocation in the turn with its result,
// whether the result arrived in a separate continuation message or inside a
// self-contained native structure. Output order follows invocation order;
// an invocation with no result yet still produces a Thought.
func ExtractThoughts(t Turn) []schema.Thought {
	results := make(map[string]ToolResult)
	for _, m := range t.AssistantMessages {
		for _, r := range m.ToolResults {
			if r.ToolUseID != "" {
				results[r.ToolUseID] = r
			}
		}
	}

	var thoughts []schema.Thought
	for _, m := range t.AssistantMessages {
		thoughts = append(thoughts, m.PairedThoughts...)
		for _, c := range m.ToolCalls {
			th := schema.Thought{
				ToolUseID: c.ID,
				ToolName:  c.Name,
				Input:     c.Input,
			}
			if r, ok := results[c.ID]; ok {
				th.Output = r.Output
				th.IsError = r.IsError
			}
			thoughts = append(thoughts, th)
		}
	}
	return thoughts
}

// BuildHistory converts one turn to normalized history entries carrying the
// given history index. A turn with no assistant response produces only the
// User entry, unless system/API errors occurred, in which case an Assistant
// entry summarizing them keeps the failure visible in the transcript.
func BuildHistory(t Turn, historyIndex int) []schema.HistoryEntry {
	var entries []schema.HistoryEntry

	if t.UserMessage != nil {
		entries = append(entries, schema.HistoryEntry{
			Role:         schema.RoleUser,
			Message:      t.UserMessage.Text,
			MessageRaw:   t.UserMessage.RawText,
			HistoryIndex: historyIndex,
			Date:         formatDate(t.UserMessage.Time),
			FileNames:    t.UserMessage.FileNames,
		})
	}

	assistant := buildAssistantEntry(t, historyIndex)
	if assistant != nil {
		entries = append(entries, *assistant)
	}

	return entries
}

func buildAssistantEntry(t Turn, historyIndex int) *schema.HistoryEntry {
	var texts []string
	var last *Message
	for _, m := range t.AssistantMessages {
		if m.Role != "assistant" {
			continue // tool-result carrier
		}
		if strings.TrimSpace(m.Text) != "" {
			texts = append(texts, m.Text)
		}
		last = m
	}

	if last == nil {
		if errText := errorSummary(t); errText != "" {
			return &schema.HistoryEntry{
				Role:         schema.RoleAssistant,
				Message:      errText,
				HistoryIndex: historyIndex,
				Date:         formatDate(turnDate(t)),
			}
		}
		return nil
	}

	totals := AggregateTokens(t)
	entry := &schema.HistoryEntry{
		Role:            schema.RoleAssistant,
		Message:         strings.Join(texts, "\n\n"),
		HistoryIndex:    historyIndex,
		Date:            formatDate(last.Time),
		InputTokens:     totals.Input,
		OutputTokens:    totals.Output,
		CacheCreationIn: totals.CacheCreation,
		CacheReadIn:     totals.CacheRead,
		AssistantID:     last.ID,
		Thoughts:        ExtractThoughts(t),
	}
	if t.UserMessage != nil && !t.UserMessage.Time.IsZero() && !last.Time.IsZero() {
		entry.ResponseTimeMs = int(last.Time.Sub(t.UserMessage.Time).Milliseconds())
	}
	return entry
}

// errorSummary collapses the turn's system/API errors into one message
func errorSummary(t Turn) string {
	var parts []string
	for _, m := range t.SystemMessages {
		if m.IsAPIError {
			text := m.ErrorText
			if text == "" {
				text = m.Text
			}
			if text != "" {
				parts = append(parts, text)
			}
		}
	}
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return fmt.Sprintf("API error: %s", parts[0])
	}
	return fmt.Sprintf("%d API errors: %s", len(parts), strings.Join(parts, "; "))
}

func turnDate(t Turn) time.Time {
	for _, m := range t.SystemMessages {
		if !m.Time.IsZero() {
			return m.Time
		}
	}
	if t.UserMessage != nil {
		return t.UserMessage.Time
	}
	return time.Time{}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
