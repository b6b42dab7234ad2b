// Package checkpoint persists execution state so an interrupted run can
// resume where it stopped. State is a plain JSON document under the state
// directory; Store guards it with an RWMutex and writes it atomically after
// every mutation.
//
// Task sets serialize as sorted string arrays so checkpoint files diff
// cleanly and round-trip deterministically.
package checkpoint

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/maestro/internal/milestone"
	"github.com/Iron-Ham/maestro/internal/review"
)

// TaskSet is a set of task IDs. It marshals to a sorted JSON array.
type TaskSet map[string]struct{}

// NewTaskSet builds a set from the given IDs.
func NewTaskSet(ids ...string) TaskSet {
	s := make(TaskSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts an ID into the set.
func (s TaskSet) Add(id string) {
	s[id] = struct{}{}
}

// Remove deletes an ID from the set.
func (s TaskSet) Remove(id string) {
	delete(s, id)
}

// Has reports whether the ID is in the set.
func (s TaskSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the IDs in ascending order. Never nil.
func (s TaskSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent copy of the set.
func (s TaskSet) Clone() TaskSet {
	out := make(TaskSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s TaskSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes the set from an array.
func (s *TaskSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewTaskSet(ids...)
	return nil
}

// MilestoneOutcome is the terminal result of one milestone run.
type MilestoneOutcome struct {
	// MilestoneID identifies the milestone.
	MilestoneID string `json:"milestone_id"`

	// Success reports whether the milestone reached its commit phase.
	Success bool `json:"success"`

	// Error holds the failure reason when Success is false.
	Error string `json:"error,omitempty"`

	// Duration is the milestone's wall time.
	Duration time.Duration `json:"duration"`

	// TaskResults holds the per-task outcomes in completion order.
	TaskResults []milestone.TaskResult `json:"task_results,omitempty"`

	// Review is the milestone review result, when review ran.
	Review *review.Result `json:"review,omitempty"`
}

func (m MilestoneOutcome) clone() MilestoneOutcome {
	out := m
	if m.TaskResults != nil {
		out.TaskResults = append([]milestone.TaskResult(nil), m.TaskResults...)
	}
	if m.Review != nil {
		r := m.Review.Clone()
		out.Review = &r
	}
	return out
}

// StageResult summarizes one executed stage.
type StageResult struct {
	// Number is the stage number.
	Number int `json:"number"`

	// Success reports whether the stage passed all of its gates.
	Success bool `json:"success"`

	// TotalMilestones counts the milestones scheduled in the stage.
	TotalMilestones int `json:"total_milestones"`

	// SuccessfulMilestones counts the milestones that succeeded.
	SuccessfulMilestones int `json:"successful_milestones"`

	// Duration is the stage's wall time.
	Duration time.Duration `json:"duration"`

	// Milestones holds the per-milestone outcomes.
	Milestones []MilestoneOutcome `json:"milestones,omitempty"`

	// Review is the stage-level review result, when review ran.
	Review *review.Result `json:"review,omitempty"`
}

func (r StageResult) clone() StageResult {
	out := r
	if r.Milestones != nil {
		out.Milestones = make([]MilestoneOutcome, len(r.Milestones))
		for i, m := range r.Milestones {
			out.Milestones[i] = m.clone()
		}
	}
	if r.Review != nil {
		rev := r.Review.Clone()
		out.Review = &rev
	}
	return out
}

// State is the complete persisted run state.
type State struct {
	// RunID is a UUID assigned when a fresh state is created.
	RunID string `json:"run_id"`

	// CurrentStage is the resume cursor: stages below it are already done.
	// It advances to N+1 only after stage N fully completes.
	CurrentStage int `json:"current_stage"`

	// CompletedTasks holds the IDs of tasks that finished successfully.
	// A completed ID is terminal: it never re-enters FailedTasks and
	// re-execution is a no-op.
	CompletedTasks TaskSet `json:"completed_tasks"`

	// FailedTasks holds the IDs of tasks that exhausted their attempts.
	FailedTasks TaskSet `json:"failed_tasks"`

	// SkippedTasks holds the IDs of tasks that never ran.
	SkippedTasks TaskSet `json:"skipped_tasks"`

	// StageResults records the outcome of each executed stage by number.
	StageResults map[int]StageResult `json:"stage_results"`

	// WorktreePaths maps milestone IDs to their active worktree paths.
	WorktreePaths map[string]string `json:"worktree_paths"`

	// ExecutionLog is an append-only trail of timestamped run events.
	ExecutionLog []string `json:"execution_log"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// LastCheckpoint is when the state was last persisted.
	LastCheckpoint time.Time `json:"last_checkpoint"`
}

// NewState returns a fresh zero-progress state with a new run ID.
func NewState() *State {
	return &State{
		RunID:          uuid.NewString(),
		CurrentStage:   0,
		CompletedTasks: NewTaskSet(),
		FailedTasks:    NewTaskSet(),
		SkippedTasks:   NewTaskSet(),
		StageResults:   make(map[int]StageResult),
		WorktreePaths:  make(map[string]string),
		ExecutionLog:   []string{},
	}
}

// normalize backfills nil collections after a JSON round-trip so callers
// never see nil maps or sets.
func (s *State) normalize() {
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	if s.CompletedTasks == nil {
		s.CompletedTasks = NewTaskSet()
	}
	if s.FailedTasks == nil {
		s.FailedTasks = NewTaskSet()
	}
	if s.SkippedTasks == nil {
		s.SkippedTasks = NewTaskSet()
	}
	if s.StageResults == nil {
		s.StageResults = make(map[int]StageResult)
	}
	if s.WorktreePaths == nil {
		s.WorktreePaths = make(map[string]string)
	}
	if s.ExecutionLog == nil {
		s.ExecutionLog = []string{}
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := *s
	out.CompletedTasks = s.CompletedTasks.Clone()
	out.FailedTasks = s.FailedTasks.Clone()
	out.SkippedTasks = s.SkippedTasks.Clone()

	out.StageResults = make(map[int]StageResult, len(s.StageResults))
	for n, r := range s.StageResults {
		out.StageResults[n] = r.clone()
	}

	out.WorktreePaths = make(map[string]string, len(s.WorktreePaths))
	for id, path := range s.WorktreePaths {
		out.WorktreePaths[id] = path
	}

	out.ExecutionLog = append([]string{}, s.ExecutionLog...)
	return &out
}
