// Package state persists sessions and their incremental-parse progress.
//
// Each session lives in its own JSON file under <dataDir>/sessions/; a
// flock-guarded index file maps session IDs to summary rows so listing does
// not require reading every session file. All writes go through a temp file
// and rename so a crash mid-write never corrupts existing state.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/agentlens/cli/internal/schema"
)

const (
	sessionsDirName = "sessions"
	indexFileName   = "index.json"
)

// IndexEntry is the summary row kept in the sessions index
type IndexEntry struct {
	SessionID string               `json:"session_id"`
	AgentName schema.Agent         `json:"agent_name"`
	Project   string               `json:"project,omitempty"`
	StartTime time.Time            `json:"start_time"`
	EndTime   *time.Time           `json:"end_time,omitempty"`
	Status    schema.SessionStatus `json:"status"`
}

// SessionStore reads and writes session records under a data directory
type SessionStore struct {
	dir       string
	indexLock *flock.Flock
}

// NewSessionStore creates the sessions directory if needed
func NewSessionStore(dataDir string) (*SessionStore, error) {
	dir := filepath.Join(dataDir, sessionsDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating sessions dir: %w", err)
	}
	return &SessionStore{
		dir:       dir,
		indexLock: flock.New(filepath.Join(dir, indexFileName+".lock")),
	}, nil
}

func (s *SessionStore) sessionPath(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Save writes the session record and updates the index row
func (s *SessionStore) Save(sess *schema.Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session %s: %w", sess.SessionID, err)
	}
	if err := atomicWriteFile(s.sessionPath(sess.SessionID), data, 0644); err != nil {
		return fmt.Errorf("writing session %s: %w", sess.SessionID, err)
	}
	return s.updateIndex(sess)
}

// Load reads one session record. Returns os.ErrNotExist wrapped when the
// session has never been saved.
func (s *SessionStore) Load(sessionID string) (*schema.Session, error) {
	data, err := os.ReadFile(s.sessionPath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", sessionID, err)
	}
	var sess schema.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", sessionID, err)
	}
	return &sess, nil
}

// List returns index entries sorted newest-first
func (s *SessionStore) List() ([]IndexEntry, error) {
	entries, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	out := make([]IndexEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out, nil
}

func (s *SessionStore) indexPath() string {
	return filepath.Join(s.dir, indexFileName)
}

func (s *SessionStore) readIndex() (map[string]IndexEntry, error) {
	entries := make(map[string]IndexEntry)
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("reading sessions index: %w", err)
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupt index is recoverable; session files remain the source
		// of truth and the next Save rewrites the damaged row.
		return make(map[string]IndexEntry), nil
	}
	return entries, nil
}

// updateIndex rewrites the index row for one session under the file lock.
// Concurrent agentlens processes in different terminals share the index.
func (s *SessionStore) updateIndex(sess *schema.Session) error {
	if err := s.indexLock.Lock(); err != nil {
		return fmt.Errorf("locking sessions index: %w", err)
	}
	defer s.indexLock.Unlock()

	entries, err := s.readIndex()
	if err != nil {
		return err
	}
	entries[sess.SessionID] = IndexEntry{
		SessionID: sess.SessionID,
		AgentName: sess.AgentName,
		Project:   sess.Project,
		StartTime: sess.StartTime,
		EndTime:   sess.EndTime,
		Status:    sess.Status,
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling sessions index: %w", err)
	}
	return atomicWriteFile(s.indexPath(), data, 0644)
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it over path. Rename is atomic on POSIX filesystems, so readers
// see either the old content or the new, never a partial write.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
