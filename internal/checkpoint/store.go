package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/maestro/internal/logging"
)

// stateFileName is the checkpoint file inside the state directory.
const stateFileName = "state.json"

// Path returns the checkpoint file path for a state directory.
func Path(stateDir string) string {
	return filepath.Join(stateDir, stateFileName)
}

// Store owns the persisted run state. All access goes through its methods;
// every mutation is written to disk atomically before the method returns.
type Store struct {
	mu     sync.RWMutex
	path   string
	state  *State
	logger *logging.Logger
}

// NewStore creates a store backed by the given file path. The state starts
// fresh; call Load to pick up a previous run's checkpoint.
func NewStore(path string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Store{
		path:   path,
		state:  NewState(),
		logger: logger,
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the checkpoint file. A missing or unreadable file is not an
// error: the store keeps a fresh state so a new run can begin.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("no checkpoint found, starting fresh", "path", s.path)
			return nil
		}
		s.logger.Warn("checkpoint unreadable, starting fresh", "path", s.path, "error", err)
		s.state = NewState()
		return nil
	}

	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("checkpoint corrupted, starting fresh", "path", s.path, "error", err)
		s.state = NewState()
		return nil
	}

	loaded.normalize()
	s.state = &loaded
	s.logger.Info("checkpoint loaded",
		"run_id", loaded.RunID,
		"current_stage", loaded.CurrentStage,
		"completed_tasks", len(loaded.CompletedTasks))
	return nil
}

// Save persists the current state.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// persistLocked writes the state to disk. Callers must hold mu.
func (s *Store) persistLocked() error {
	s.state.LastCheckpoint = time.Now()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	return atomicWriteFile(s.path, data, 0644)
}

// mutate applies fn to the state and persists the result.
func (s *Store) mutate(fn func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
	return s.persistLocked()
}

// ---- Mutators ----

// MarkTaskCompleted records a task success. Completion is terminal: the ID
// leaves the failed and skipped sets and never re-enters them.
func (s *Store) MarkTaskCompleted(taskID string) error {
	return s.mutate(func(st *State) {
		st.CompletedTasks.Add(taskID)
		st.FailedTasks.Remove(taskID)
		st.SkippedTasks.Remove(taskID)
	})
}

// MarkTaskFailed records a task failure. A completed task stays completed.
func (s *Store) MarkTaskFailed(taskID string) error {
	return s.mutate(func(st *State) {
		if st.CompletedTasks.Has(taskID) {
			return
		}
		st.FailedTasks.Add(taskID)
	})
}

// MarkTaskSkipped records that a task never ran. A completed task stays
// completed.
func (s *Store) MarkTaskSkipped(taskID string) error {
	return s.mutate(func(st *State) {
		if st.CompletedTasks.Has(taskID) {
			return
		}
		st.SkippedTasks.Add(taskID)
	})
}

// SetCurrentStage advances the resume cursor.
func (s *Store) SetCurrentStage(stage int) error {
	return s.mutate(func(st *State) {
		st.CurrentStage = stage
	})
}

// RecordStageResult stores the outcome of an executed stage.
func (s *Store) RecordStageResult(result StageResult) error {
	return s.mutate(func(st *State) {
		st.StageResults[result.Number] = result
	})
}

// SetWorktreePath registers the active worktree for a milestone.
func (s *Store) SetWorktreePath(milestoneID, path string) error {
	return s.mutate(func(st *State) {
		st.WorktreePaths[milestoneID] = path
	})
}

// RemoveWorktreePath deregisters a milestone's worktree.
func (s *Store) RemoveWorktreePath(milestoneID string) error {
	return s.mutate(func(st *State) {
		delete(st.WorktreePaths, milestoneID)
	})
}

// AppendLog adds a timestamped entry to the execution log.
func (s *Store) AppendLog(event string) error {
	return s.mutate(func(st *State) {
		entry := fmt.Sprintf("%s: %s", time.Now().Format(time.RFC3339), event)
		st.ExecutionLog = append(st.ExecutionLog, entry)
	})
}

// SetStartedAt records the run start time.
func (s *Store) SetStartedAt(t time.Time) error {
	return s.mutate(func(st *State) {
		st.StartedAt = t
	})
}

// Reset restores zero state and deletes the checkpoint file.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = NewState()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove checkpoint file: %w", err)
	}
	return nil
}

// ---- Accessors ----

// IsTaskCompleted reports whether the task already finished successfully.
func (s *Store) IsTaskCompleted(taskID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CompletedTasks.Has(taskID)
}

// HasCompletedTaskWithPrefix reports whether any completed task ID starts
// with prefix. A milestone dependency is considered met once at least one of
// the dependency's tasks has completed.
func (s *Store) HasCompletedTaskWithPrefix(prefix string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.state.CompletedTasks {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

// CurrentStage returns the resume cursor.
func (s *Store) CurrentStage() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CurrentStage
}

// RunID returns the run identifier.
func (s *Store) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RunID
}

// CompletedCount returns the number of completed tasks.
func (s *Store) CompletedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.CompletedTasks)
}

// FailedCount returns the number of failed tasks.
func (s *Store) FailedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.FailedTasks)
}

// SkippedCount returns the number of skipped tasks.
func (s *Store) SkippedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.SkippedTasks)
}

// WorktreePath returns the registered worktree for a milestone.
func (s *Store) WorktreePath(milestoneID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path, ok := s.state.WorktreePaths[milestoneID]
	return path, ok
}

// WorktreePaths returns a copy of the milestone to worktree mapping.
func (s *Store) WorktreePaths() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.state.WorktreePaths))
	for id, path := range s.state.WorktreePaths {
		out[id] = path
	}
	return out
}

// Snapshot returns a deep copy of the full state.
func (s *Store) Snapshot() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file in the same directory and renaming it into place.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on any error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
