// Package snapshot captures point-in-time views of agent session directories.
//
// Snapshots are the first half of session correlation: one capture before the
// agent subprocess starts, one after, and the difference is the list of
// files the subprocess (probably) created or touched. Pre-existing files
// count when they grew or were rewritten in place, since some agents reuse
// one log file per project instead of creating a fresh one per session.
package snapshot

import (
	"os"
	"path/filepath"
	"time"

	"github.com/agentlens/cli/internal/schema"
)

// Take lists the immediate entries of dir and stats each one.
// A missing directory yields an empty snapshot, not an error: the agent may
// simply not have created its session directory yet.
func Take(dir string) (schema.FileSnapshot, error) {
	snap := schema.FileSnapshot{Timestamp: time.Now()}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return snap, err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // file vanished between ReadDir and stat
		}
		snap.Files = append(snap.Files, schema.FileInfo{
			Path:       filepath.Join(dir, e.Name()),
			Size:       info.Size(),
			CreatedAt:  createdAt(info),
			ModifiedAt: info.ModTime(),
		})
	}

	return snap, nil
}

// TakeAll snapshots several directories into one combined capture.
// Codex spreads sessions across dated subdirectories, so its adapter
// supplies more than one candidate directory.
func TakeAll(dirs []string) (schema.FileSnapshot, error) {
	combined := schema.FileSnapshot{Timestamp: time.Now()}
	for _, dir := range dirs {
		snap, err := Take(dir)
		if err != nil {
			return combined, err
		}
		combined.Files = append(combined.Files, snap.Files...)
	}
	return combined, nil
}

// Diff returns the files in after that changed since before: new paths, and
// pre-existing paths whose size increased or whose mtime advanced. The second
// group covers Gemini CLI, which rewrites one logs.json per project in place,
// so after the first run its log is never a new path again.
func Diff(before, after schema.FileSnapshot) []schema.FileInfo {
	prior := make(map[string]schema.FileInfo, len(before.Files))
	for _, f := range before.Files {
		prior[f.Path] = f
	}

	var changed []schema.FileInfo
	for _, f := range after.Files {
		old, seen := prior[f.Path]
		if !seen || f.Size > old.Size || f.ModifiedAt.After(old.ModifiedAt) {
			changed = append(changed, f)
		}
	}
	return changed
}
