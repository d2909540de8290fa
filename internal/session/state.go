// Package session persists agent run state between process invocations
// as JSON files, one per session.
package session

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SessionState tracks where one agent run left off.
type SessionState struct {
	SessionID  string    `json:"session_id"`
	ItemID     string    `json:"item_id"`
	BranchName string    `json:"branch_name"`
	PRUrl      string    `json:"pr_url"`
	Step       string    `json:"step"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store persists session state files in one directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. An empty dir falls back to
// MASON_STATE_DIR, then to ~/.mason/sessions.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = os.Getenv("MASON_STATE_DIR")
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".mason", "sessions")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// CurrentSessionID returns the id from the environment, or a
// timestamp-based fallback for runs started outside the orchestrator.
func CurrentSessionID() string {
	if id := os.Getenv("MASON_SESSION_ID"); id != "" {
		return id
	}
	return time.Now().Format("20060102_150405")
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, "state_"+sessionID+".json")
}

// Load reads a session's state. A missing or corrupt file yields a
// fresh state for the id.
func (s *Store) Load(sessionID string) *SessionState {
	data, err := os.ReadFile(s.path(sessionID))
	if err == nil {
		var state SessionState
		if jerr := json.Unmarshal(data, &state); jerr == nil && state.SessionID != "" {
			return &state
		}
		// Corrupted file, start fresh
	}
	return &SessionState{
		SessionID: sessionID,
		StartedAt: time.Now(),
	}
}

// Save writes the state as indented JSON, stamping updated_at.
func (s *Store) Save(state *SessionState) error {
	state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	if err := os.WriteFile(s.path(state.SessionID), data, 0644); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	return nil
}

// Delete removes a session's state file. Missing files are a no-op.
func (s *Store) Delete(sessionID string) error {
	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}

// ListSessions returns every session id with a state file.
func (s *Store) ListSessions() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "state_*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list session states: %w", err)
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), ".json")
		ids = append(ids, strings.TrimPrefix(base, "state_"))
	}
	return ids, nil
}

// CleanupOlderThan removes state files whose last write is older than
// maxAge, returning how many were removed. Errors on individual files
// are skipped.
func (s *Store) CleanupOlderThan(maxAge time.Duration) int {
	matches, err := filepath.Glob(filepath.Join(s.dir, "state_*.json"))
	if err != nil {
		log.Printf("[session] WARNING: cleanup scan failed: %v", err)
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	cleaned := 0
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(m); err == nil {
				cleaned++
			}
		}
	}
	return cleaned
}
