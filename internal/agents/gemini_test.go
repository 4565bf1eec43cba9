package agents

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlens/cli/internal/schema"
)

const geminiFixture = `[
  {"sessionId":"sess-1","messageId":0,"type":"user","message":"summarize the repo","timestamp":"2026-03-01T11:00:00.000Z"},
  {"sessionId":"sess-1","messageId":1,"type":"user","message":"now write a readme","timestamp":"2026-03-01T11:02:00.000Z"}
]`

func writeGeminiLog(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "9f86d081884c7d65")
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, "logs.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestGeminiPatternAndSessionID(t *testing.T) {
	a := NewGeminiAdapter("/home/dev")

	assert.True(t, a.MatchesSessionPattern("/x/9f86d081/logs.json"))
	assert.False(t, a.MatchesSessionPattern("/x/9f86d081/chats.json"))
	assert.Equal(t, "9f86d081", a.ExtractSessionID("/x/9f86d081/logs.json"))

	dirs := a.SessionDirs("/work/proj")
	require.Len(t, dirs, 1)
	assert.True(t, strings.HasPrefix(dirs[0], "/home/dev/.gemini/tmp/"))
	assert.Len(t, filepath.Base(dirs[0]), 64, "project dir is a hex sha-256 of the working directory")
}

func TestGeminiMetrics(t *testing.T) {
	a := NewGeminiAdapter(t.TempDir())
	path := writeGeminiLog(t, geminiFixture)

	res, err := a.ParseIncrementalMetrics(path, map[string]bool{}, map[string]bool{})
	require.NoError(t, err)
	require.Len(t, res.Deltas, 2)
	assert.Equal(t, 2, res.LastLine)

	d := res.Deltas[0]
	assert.Equal(t, "sess-1:0", d.RecordID)
	assert.Equal(t, "sess-1", d.AgentSessionID)
	assert.Zero(t, d.Tokens.Input, "gemini logs carry no token usage")
	require.Len(t, d.UserPrompts, 1)
	assert.Equal(t, 1, d.UserPrompts[0].Count)
	assert.Equal(t, "summarize the repo", d.UserPrompts[0].Text)
}

func TestGeminiMetricsIdempotent(t *testing.T) {
	a := NewGeminiAdapter(t.TempDir())
	path := writeGeminiLog(t, geminiFixture)

	res1, err := a.ParseIncrementalMetrics(path, map[string]bool{}, map[string]bool{})
	require.NoError(t, err)
	require.Len(t, res1.Deltas, 2)

	processed := map[string]bool{"sess-1:0": true, "sess-1:1": true}
	res2, err := a.ParseIncrementalMetrics(path, processed, map[string]bool{})
	require.NoError(t, err)
	assert.Empty(t, res2.Deltas)

	// Gemini rewrites the whole array in place; a new entry still parses
	// incrementally by record ID.
	grown := strings.TrimSuffix(geminiFixture, "\n]") + `,
  {"sessionId":"sess-1","messageId":2,"type":"user","message":"thanks","timestamp":"2026-03-01T11:05:00.000Z"}
]`
	require.NoError(t, os.WriteFile(path, []byte(grown), 0644))
	res3, err := a.ParseIncrementalMetrics(path, processed, map[string]bool{})
	require.NoError(t, err)
	require.Len(t, res3.Deltas, 1)
	assert.Equal(t, "sess-1:2", res3.Deltas[0].RecordID)
}

func TestGeminiMetricsSkipsCorruptEntries(t *testing.T) {
	a := NewGeminiAdapter(t.TempDir())
	mixed := `[
  {"sessionId":"sess-1","messageId":0,"type":"user","message":"hello","timestamp":"2026-03-01T11:00:00.000Z"},
  {"sessionId":"sess-1","messageId":"not-a-number","type":"user","message":"bad","timestamp":"x"}
]`
	path := writeGeminiLog(t, mixed)

	res, err := a.ParseIncrementalMetrics(path, map[string]bool{}, map[string]bool{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.MalformedLines)
	require.Len(t, res.Deltas, 1)
	assert.Equal(t, "sess-1:0", res.Deltas[0].RecordID)
}

func TestGeminiConversation(t *testing.T) {
	a := NewGeminiAdapter(t.TempDir())
	path := writeGeminiLog(t, geminiFixture)

	records, next, err := a.ParseConversation(path, 0, 0, false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, next)

	rec := records[0]
	assert.Equal(t, []int{0, 1}, rec.HistoryIndices)
	assert.Equal(t, "sess-1", rec.Payload.ConversationID)
	require.Len(t, rec.Payload.History, 2)
	assert.Equal(t, schema.RoleUser, rec.Payload.History[0].Role)
	assert.Equal(t, "summarize the repo", rec.Payload.History[0].Message)
	assert.Equal(t, 1, rec.Payload.History[1].HistoryIndex)

	records, next, err = a.ParseConversation(path, 2, 2, false)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 2, next)
}
