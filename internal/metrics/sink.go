package metrics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentlens/cli/internal/schema"
)

// Sink appends normalized records to the per-session JSONL logs. Files are
// append-only: one JSON object per line, never rewritten. The remote-sync
// collaborator consumes them from the other end.
type Sink struct {
	deltasPath        string
	conversationsPath string
}

// NewSink creates a sink for one session under the data directory
func NewSink(dataDir, sessionID string) *Sink {
	dir := filepath.Join(dataDir, "sessions")
	return &Sink{
		deltasPath:        filepath.Join(dir, sessionID+".deltas.jsonl"),
		conversationsPath: filepath.Join(dir, sessionID+".conversations.jsonl"),
	}
}

// AppendDeltas appends metric deltas, one JSON line each
func (s *Sink) AppendDeltas(deltas []schema.MetricDelta) error {
	return appendLines(s.deltasPath, len(deltas), func(enc *json.Encoder, i int) error {
		return enc.Encode(deltas[i])
	})
}

// AppendConversations appends conversation payload records
func (s *Sink) AppendConversations(records []schema.ConversationPayloadRecord) error {
	return appendLines(s.conversationsPath, len(records), func(enc *json.Encoder, i int) error {
		return enc.Encode(records[i])
	})
}

func appendLines(path string, n int, encode func(*json.Encoder, int) error) error {
	if n == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating sink dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for i := 0; i < n; i++ {
		if err := encode(enc, i); err != nil {
			return fmt.Errorf("appending to %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// ReadDeltas loads all deltas recorded for a session. Used by the sessions
// command to aggregate token totals; missing file means no deltas yet.
func ReadDeltas(dataDir, sessionID string) ([]schema.MetricDelta, error) {
	path := filepath.Join(dataDir, "sessions", sessionID+".deltas.jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening delta log: %w", err)
	}
	defer f.Close()

	var deltas []schema.MetricDelta
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var d schema.MetricDelta
		if err := json.Unmarshal(line, &d); err != nil {
			continue
		}
		deltas = append(deltas, d)
	}
	if err := scanner.Err(); err != nil {
		return deltas, fmt.Errorf("reading delta log: %w", err)
	}
	return deltas, nil
}
