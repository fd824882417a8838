package syncer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SyncState tracks the external resource identifiers created by the most
// recent successful sync pass. Invariant: at any observation point these are
// exactly the externally-live resources created by this system for the scope.
type SyncState struct {
	TaskIDs  []string `json:"task_ids"`
	EventIDs []string `json:"event_ids"`
}

func (s *SyncState) normalize() {
	if s.TaskIDs == nil {
		s.TaskIDs = []string{}
	}
	if s.EventIDs == nil {
		s.EventIDs = []string{}
	}
}

// StateFile persists SyncState as JSON on disk.
type StateFile struct {
	path string
}

// NewStateFile binds a state file path. The file is created on first save.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Load reads the current sync state. A missing file yields an empty state.
func (f *StateFile) Load() (SyncState, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		state := SyncState{}
		state.normalize()
		return state, nil
	}
	if err != nil {
		return SyncState{}, fmt.Errorf("read sync state %s: %w", f.path, err)
	}

	var state SyncState
	if err := json.Unmarshal(raw, &state); err != nil {
		return SyncState{}, fmt.Errorf("parse sync state %s: %w", f.path, err)
	}
	state.normalize()
	return state, nil
}

// Save atomically rewrites the sync state file.
func (f *StateFile) Save(state SyncState) error {
	state.normalize()
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sync state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sync state dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".sync_state_*")
	if err != nil {
		return fmt.Errorf("stage sync state: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close sync state: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("commit sync state: %w", err)
	}
	return nil
}
