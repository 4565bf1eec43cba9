package agents

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlens/cli/internal/schema"
)

const codexFixture = `{"timestamp":"2026-03-01T09:00:00.000Z","type":"session_meta","payload":{"id":"0196f3a2-aaaa-bbbb-cccc-ddddeeeeffff","cwd":"/work/proj","model":"gpt-5-codex"}}
{"timestamp":"2026-03-01T09:00:01.000Z","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"<environment_context>ignored</environment_context>"}]}}
{"timestamp":"2026-03-01T09:00:02.000Z","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"list the files"}]}}
{"timestamp":"2026-03-01T09:00:03.000Z","type":"response_item","payload":{"type":"function_call","name":"shell","arguments":"{\"command\":[\"ls\"]}","call_id":"call_1"}}
{"timestamp":"2026-03-01T09:00:04.000Z","type":"response_item","payload":{"type":"function_call_output","call_id":"call_1","output":"{\"output\":\"main.go\",\"metadata\":{\"exit_code\":0}}"}}
{"timestamp":"2026-03-01T09:00:05.000Z","type":"response_item","payload":{"type":"message","role":"assistant","content":[{"type":"output_text","text":"main.go is the only file."}]}}
{"timestamp":"2026-03-01T09:00:06.000Z","type":"event_msg","payload":{"type":"token_count","info":{"last_token_usage":{"input_tokens":500,"cached_input_tokens":400,"output_tokens":80}}}}
`

func writeCodexLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rollout-2026-03-01T09-00-00-0196f3a2-aaaa-bbbb-cccc-ddddeeeeffff.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCodexPatternAndSessionID(t *testing.T) {
	a := NewCodexAdapter("/home/dev")

	assert.True(t, a.MatchesSessionPattern("/x/rollout-2026-03-01T09-00-00-0196f3a2-aaaa-bbbb-cccc-ddddeeeeffff.jsonl"))
	assert.False(t, a.MatchesSessionPattern("/x/history.jsonl"))
	assert.Equal(t, "0196f3a2-aaaa-bbbb-cccc-ddddeeeeffff",
		a.ExtractSessionID("/x/rollout-2026-03-01T09-00-00-0196f3a2-aaaa-bbbb-cccc-ddddeeeeffff.jsonl"))
}

func TestCodexSessionDirsSpanMidnight(t *testing.T) {
	a := NewCodexAdapter("/home/dev")
	a.now = func() time.Time {
		return time.Date(2026, 3, 1, 0, 0, 30, 0, time.UTC)
	}

	dirs := a.SessionDirs("/work/proj")
	require.Len(t, dirs, 2)
	assert.Equal(t, "/home/dev/.codex/sessions/2026/03/01", dirs[0])
	assert.Equal(t, "/home/dev/.codex/sessions/2026/02/28", dirs[1])
}

func TestCodexMetrics(t *testing.T) {
	a := NewCodexAdapter(t.TempDir())
	path := writeCodexLog(t, codexFixture)

	res, err := a.ParseIncrementalMetrics(path, map[string]bool{}, map[string]bool{})
	require.NoError(t, err)
	require.Len(t, res.Deltas, 1)

	d := res.Deltas[0]
	assert.Equal(t, "tc-7-2026-03-01T09:00:06.000Z", d.RecordID)
	assert.Equal(t, 500, d.Tokens.Input)
	assert.Equal(t, 80, d.Tokens.Output)
	assert.Equal(t, 400, d.Tokens.CacheRead)
	assert.Equal(t, []string{"gpt-5-codex"}, d.Models)
	assert.Equal(t, 1, d.Tools["shell"])
	assert.Equal(t, 1, d.ToolStatus["shell"].Success)
	require.Len(t, d.UserPrompts, 1)
	assert.Equal(t, "list the files", d.UserPrompts[0].Text, "environment context is not a prompt")
}

func TestCodexMetricsIdempotent(t *testing.T) {
	a := NewCodexAdapter(t.TempDir())
	path := writeCodexLog(t, codexFixture)

	res1, err := a.ParseIncrementalMetrics(path, map[string]bool{}, map[string]bool{})
	require.NoError(t, err)
	require.Len(t, res1.Deltas, 1)

	processed := map[string]bool{res1.Deltas[0].RecordID: true}
	attached := map[string]bool{"list the files": true}

	res2, err := a.ParseIncrementalMetrics(path, processed, attached)
	require.NoError(t, err)
	assert.Empty(t, res2.Deltas)

	// Appended records after the processed token count still emit.
	grown := codexFixture + `{"timestamp":"2026-03-01T09:01:00.000Z","type":"event_msg","payload":{"type":"token_count","info":{"last_token_usage":{"input_tokens":600,"cached_input_tokens":500,"output_tokens":40}}}}
`
	require.NoError(t, os.WriteFile(path, []byte(grown), 0644))
	res3, err := a.ParseIncrementalMetrics(path, processed, attached)
	require.NoError(t, err)
	require.Len(t, res3.Deltas, 1)
	assert.Equal(t, 600, res3.Deltas[0].Tokens.Input)
	assert.Empty(t, res3.Deltas[0].UserPrompts, "prompts were consumed by the first delta")
}

func TestCodexMetricsFailedCall(t *testing.T) {
	a := NewCodexAdapter(t.TempDir())
	log := `{"timestamp":"2026-03-01T09:00:00.000Z","type":"response_item","payload":{"type":"function_call","name":"shell","arguments":"{}","call_id":"call_9"}}
{"timestamp":"2026-03-01T09:00:01.000Z","type":"response_item","payload":{"type":"function_call_output","call_id":"call_9","output":"{\"output\":\"boom\",\"metadata\":{\"exit_code\":1}}"}}
{"timestamp":"2026-03-01T09:00:02.000Z","type":"event_msg","payload":{"type":"token_count","info":{"last_token_usage":{"input_tokens":10,"cached_input_tokens":0,"output_tokens":5}}}}
`
	path := writeCodexLog(t, log)

	res, err := a.ParseIncrementalMetrics(path, map[string]bool{}, map[string]bool{})
	require.NoError(t, err)
	require.Len(t, res.Deltas, 1)
	assert.Equal(t, 1, res.Deltas[0].ToolStatus["shell"].Failure)
}

func TestCodexConversation(t *testing.T) {
	a := NewCodexAdapter(t.TempDir())
	path := writeCodexLog(t, codexFixture)

	records, next, err := a.ParseConversation(path, 0, 0, false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, next)

	history := records[0].Payload.History
	require.Len(t, history, 2)
	assert.Equal(t, schema.RoleUser, history[0].Role)
	assert.Equal(t, "list the files", history[0].Message)
	assert.Equal(t, schema.RoleAssistant, history[1].Role)
	assert.Equal(t, "main.go is the only file.", history[1].Message)
	require.Len(t, history[1].Thoughts, 1)
	assert.Equal(t, "shell", history[1].Thoughts[0].ToolName)
	assert.Equal(t, "main.go", history[1].Thoughts[0].Output)
	assert.False(t, history[1].Thoughts[0].IsError)
	assert.Equal(t, "0196f3a2-aaaa-bbbb-cccc-ddddeeeeffff", records[0].Payload.ConversationID)
}

func TestCodexConversationFinalPassReleasesInFlightTurn(t *testing.T) {
	a := NewCodexAdapter(t.TempDir())
	inflight := codexFixture + `{"timestamp":"2026-03-01T09:01:00.000Z","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"now delete it"}]}}
`
	path := writeCodexLog(t, inflight)

	records, next, err := a.ParseConversation(path, 1, 1, false)
	require.NoError(t, err)
	assert.Empty(t, records, "unanswered trailing prompt is held back mid-session")
	assert.Equal(t, 1, next)

	records, next, err = a.ParseConversation(path, 1, 1, true)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, next)
	require.Len(t, records[0].Payload.History, 1)
	assert.Equal(t, schema.RoleUser, records[0].Payload.History[0].Role)
	assert.Equal(t, "now delete it", records[0].Payload.History[0].Message)
}
