// Package correlate matches a newly observed native session log to the
// CLI-level session whose subprocess produced it.
//
// The agent subprocess gives us no handle to its log file, so correlation
// works from circumstantial evidence: which files appeared after spawn, which
// of those look like session logs for this agent family, and which mention
// the launch working directory in their head or tail.
package correlate

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/agentlens/cli/internal/schema"
)

// contentWindowLines is how many lines are read from each end of a candidate
// file when disambiguating by working-directory content. Session logs can be
// tens of KB; metadata is almost always within the first few lines, with rare
// formats putting it near the end.
const contentWindowLines = 10

// Matcher reports whether a path looks like a session log for one agent family
type Matcher func(path string) bool

// IDExtractor pulls the agent-native session ID out of a matched path
type IDExtractor func(path string) string

// SnapshotFn re-captures the candidate file set for a retry attempt
type SnapshotFn func() ([]schema.FileInfo, error)

// Correlate runs one disambiguation pass over newFiles.
//
// Tiers, in order: no new files at all is a transient pending (the log may
// not exist yet); new files but none matching the agent's filename pattern is
// a terminal failed (we are watching the wrong directory, retrying with the
// same inputs cannot help); exactly one match is trusted unconditionally;
// several matches fall back to scanning each candidate's head and tail for
// the launch working directory.
func Correlate(sessionID string, agent schema.Agent, workDir string, newFiles []schema.FileInfo, matches Matcher, extractID IDExtractor) schema.CorrelationResult {
	if len(newFiles) == 0 {
		return schema.CorrelationResult{Status: schema.CorrelationPending}
	}

	var candidates []schema.FileInfo
	for _, f := range newFiles {
		if matches(f.Path) {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return schema.CorrelationResult{Status: schema.CorrelationFailed}
	}

	// Listing order is filesystem-dependent; sort by creation time (path as
	// tie-break) so disambiguation is deterministic across platforms.
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].Path < candidates[j].Path
	})

	if len(candidates) == 1 {
		// Fast path: a single unambiguous match costs nothing to verify further.
		return matched(candidates[0].Path, extractID)
	}

	for _, c := range candidates {
		if fileWindowContains(c.Path, workDir) {
			return matched(c.Path, extractID)
		}
	}

	// None of the candidates mention the working directory. A guess beats
	// dropping telemetry for the whole run, so take the oldest candidate.
	return matched(candidates[0].Path, extractID)
}

func matched(path string, extractID IDExtractor) schema.CorrelationResult {
	now := time.Now()
	return schema.CorrelationResult{
		Status:          schema.CorrelationMatched,
		MatchedFilePath: path,
		NativeSessionID: extractID(path),
		DetectedAt:      &now,
	}
}

// CorrelateWithRetry repeats Correlate with fresh snapshots until it matches
// or the delay schedule is exhausted. Exhaustion yields a terminal failed
// result; the orchestrator does not retry again later.
func CorrelateWithRetry(sessionID string, agent schema.Agent, workDir string, matches Matcher, extractID IDExtractor, snapshotFn SnapshotFn, delays []time.Duration) schema.CorrelationResult {
	var result schema.CorrelationResult

	for attempt := 0; ; attempt++ {
		newFiles, err := snapshotFn()
		if err != nil {
			result = schema.CorrelationResult{Status: schema.CorrelationPending}
		} else {
			result = Correlate(sessionID, agent, workDir, newFiles, matches, extractID)
		}
		result.RetryCount = attempt

		if result.Status == schema.CorrelationMatched || result.Status == schema.CorrelationFailed {
			return result
		}
		if attempt >= len(delays) {
			result.Status = schema.CorrelationFailed
			return result
		}
		time.Sleep(delays[attempt])
	}
}

// tailWindowBytes bounds the read for the tail window. Ten JSONL lines fit
// comfortably; anything past this from the end is not part of the window.
const tailWindowBytes = 64 * 1024

// fileWindowContains reports whether needle appears in the first or last
// contentWindowLines lines of the file at path. Only those windows are read:
// the head by a bounded line scan, the tail by seeking near the end, so a
// large log is never read in full.
func fileWindowContains(path, needle string) bool {
	if needle == "" {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for i := 0; i < contentWindowLines && scanner.Scan(); i++ {
		if strings.Contains(scanner.Text(), needle) {
			return true
		}
	}

	info, err := f.Stat()
	if err != nil {
		return false
	}
	offset := info.Size() - tailWindowBytes
	if offset < 0 {
		offset = 0
	}
	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return false
	}

	lines := strings.Split(strings.TrimRight(string(buf), "\n"), "\n")
	if len(lines) > contentWindowLines {
		lines = lines[len(lines)-contentWindowLines:]
	}
	for _, line := range lines {
		if strings.Contains(line, needle) {
			return true
		}
	}
	return false
}
