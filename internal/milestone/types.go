// Package milestone defines the plan model the orchestrator executes.
//
// A plan is a directory of milestone definitions, each carrying an ordered
// list of tasks plus the metadata needed to schedule it: the stage it belongs
// to, the milestones it depends on, and per-task priorities and estimates.
// Definitions are authored as markdown or YAML; Discover loads both.
//
// The package is pure data plus parsing and validation. Execution lives in
// the orchestrator package.
package milestone

import (
	"sort"
	"time"
)

// -----------------------------------------------------------------------------
// Priority
// -----------------------------------------------------------------------------

// Priority ranks a task within its milestone. High-priority tasks run as
// their own group before the rest, and their failure skips the remainder.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// IsValid returns true if this is a recognized priority value.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------
// Task
// -----------------------------------------------------------------------------

// Task is a single unit of work dispatched to the coding agent.
//
// Tasks are immutable once loaded; execution state is tracked separately
// in TaskResult and the checkpoint store.
type Task struct {
	// ID uniquely identifies the task across the whole plan.
	// Loaders derive it as "<milestone id>-T<n>" when not set explicitly.
	ID string `json:"id" yaml:"id"`

	// Title is a short human-readable name used in prompts and logs.
	Title string `json:"title" yaml:"title"`

	// Requirements contains the detailed instructions for the agent.
	Requirements string `json:"requirements,omitempty" yaml:"requirements,omitempty"`

	// AcceptanceCriteria describes how to judge the work complete.
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty" yaml:"acceptance_criteria,omitempty"`

	// Priority determines grouping within the milestone.
	Priority Priority `json:"priority" yaml:"priority"`

	// EstimatedMinutes is the author's time estimate. Informational only.
	EstimatedMinutes int `json:"estimated_minutes,omitempty" yaml:"estimated_minutes,omitempty"`

	// MilestoneID names the owning milestone. Loaders always set it from the
	// containing definition, so authors never write it.
	MilestoneID string `json:"milestone_id,omitempty" yaml:"-"`
}

// -----------------------------------------------------------------------------
// Milestone
// -----------------------------------------------------------------------------

// Milestone is a named group of tasks executed together in one worktree.
type Milestone struct {
	// ID uniquely identifies the milestone. For markdown definitions this
	// is the file stem, e.g. "1a-core-types" for 1a-core-types.md.
	ID string `json:"id" yaml:"id"`

	// Title is the human-readable milestone name.
	Title string `json:"title" yaml:"title"`

	// Description gives context shared by every task prompt.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Stage is the execution stage this milestone belongs to. Milestones in
	// the same stage may run in parallel; stages run strictly in order.
	Stage int `json:"stage" yaml:"stage,omitempty"`

	// Dependencies lists milestone IDs that must have completed work before
	// this milestone may start.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// Tasks is the ordered task list. A milestone with no tasks is invalid.
	Tasks []Task `json:"tasks" yaml:"tasks"`

	// Path is the definition file this milestone was loaded from.
	Path string `json:"-" yaml:"-"`
}

// TaskByID returns the task with the given ID, or nil if not present.
func (m *Milestone) TaskByID(id string) *Task {
	for i := range m.Tasks {
		if m.Tasks[i].ID == id {
			return &m.Tasks[i]
		}
	}
	return nil
}

// SplitByPriority partitions tasks into the high-priority group and the
// remainder, preserving definition order within each group.
func (m *Milestone) SplitByPriority() (high, rest []Task) {
	for _, t := range m.Tasks {
		if t.Priority == PriorityHigh {
			high = append(high, t)
		} else {
			rest = append(rest, t)
		}
	}
	return high, rest
}

// EstimatedTotal sums the task time estimates.
func (m *Milestone) EstimatedTotal() time.Duration {
	total := 0
	for _, t := range m.Tasks {
		total += t.EstimatedMinutes
	}
	return time.Duration(total) * time.Minute
}

// -----------------------------------------------------------------------------
// Stage
// -----------------------------------------------------------------------------

// Stage is an ordered batch of milestones that may execute concurrently.
type Stage struct {
	// Number is the stage index. Stages execute in ascending order.
	Number int `json:"number"`

	// Milestones are sorted by ID for deterministic scheduling.
	Milestones []Milestone `json:"milestones"`
}

// OrganizeStages groups milestones into stages sorted ascending by number,
// with milestones sorted by ID within each stage.
func OrganizeStages(milestones []Milestone) []Stage {
	byNumber := make(map[int][]Milestone)
	for _, m := range milestones {
		byNumber[m.Stage] = append(byNumber[m.Stage], m)
	}

	stages := make([]Stage, 0, len(byNumber))
	for number, group := range byNumber {
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		stages = append(stages, Stage{Number: number, Milestones: group})
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Number < stages[j].Number })
	return stages
}

// -----------------------------------------------------------------------------
// Task results
// -----------------------------------------------------------------------------

// TaskStatus is the terminal state of a task execution.
type TaskStatus string

const (
	// TaskCompleted indicates the task finished and its output passed the
	// success heuristic.
	TaskCompleted TaskStatus = "completed"

	// TaskFailed indicates every attempt was exhausted without success.
	TaskFailed TaskStatus = "failed"

	// TaskSkipped indicates the task never ran, e.g. because its milestone's
	// high-priority group failed.
	TaskSkipped TaskStatus = "skipped"
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	return string(s)
}

// TaskResult is the outcome of executing a single task.
type TaskResult struct {
	// TaskID is the ID of the executed task.
	TaskID string `json:"task_id"`

	// Status is the terminal state.
	Status TaskStatus `json:"status"`

	// Output is the agent's stdout, kept for review prompts and reports.
	Output string `json:"output,omitempty"`

	// Error holds the failure message when Status is TaskFailed.
	Error string `json:"error,omitempty"`

	// Attempts counts executions including retries. A resumed task that was
	// already complete reports zero attempts.
	Attempts int `json:"attempts"`

	// StartedAt records when the first attempt began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total wall time across attempts.
	Duration time.Duration `json:"duration"`
}

// Success reports whether the task reached the completed state.
func (r TaskResult) Success() bool {
	return r.Status == TaskCompleted
}

// SuccessRatio returns the fraction of results that completed successfully.
// An empty slice yields zero.
func SuccessRatio(results []TaskResult) float64 {
	if len(results) == 0 {
		return 0
	}
	ok := 0
	for _, r := range results {
		if r.Success() {
			ok++
		}
	}
	return float64(ok) / float64(len(results))
}
