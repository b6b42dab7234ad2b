package orchestrator

import (
	"github.com/Iron-Ham/maestro/internal/checkpoint"
	"github.com/Iron-Ham/maestro/internal/conflict"
	"github.com/Iron-Ham/maestro/internal/milestone"
)

// MilestonePhase tracks how far a milestone run has progressed.
type MilestonePhase string

const (
	// PhasePending means the milestone is scheduled but has not started.
	PhasePending MilestonePhase = "pending"
	// PhaseDependenciesChecked means every declared dependency is satisfied.
	PhaseDependenciesChecked MilestonePhase = "dependencies_checked"
	// PhaseTasksRunning means task groups are executing.
	PhaseTasksRunning MilestonePhase = "tasks_running"
	// PhaseValidated means the task success ratio cleared the gate.
	PhaseValidated MilestonePhase = "validated"
	// PhaseReviewing means the post-milestone code review is in flight.
	PhaseReviewing MilestonePhase = "reviewing"
	// PhaseCommitted means the milestone finished and its work is committed.
	PhaseCommitted MilestonePhase = "committed"
	// PhaseFailed means the milestone stopped short of committing.
	PhaseFailed MilestonePhase = "failed"
)

// String returns the string representation of the phase.
func (p MilestonePhase) String() string {
	return string(p)
}

// Terminal reports whether the phase ends a milestone run.
func (p MilestonePhase) Terminal() bool {
	return p == PhaseCommitted || p == PhaseFailed
}

// EventHandler receives progress notifications during a run. Methods are
// called from executor and milestone goroutines, so implementations must be
// safe for concurrent use and should return quickly.
type EventHandler interface {
	// TaskStarted fires when a task begins its first attempt.
	TaskStarted(milestoneID, taskID, title string)

	// TaskCompleted fires when a task succeeds, with the attempts it took.
	// Zero attempts means the task was already completed in a previous run.
	TaskCompleted(milestoneID, taskID string, attempts int)

	// TaskFailed fires when a task exhausts its attempts.
	TaskFailed(milestoneID, taskID, reason string)

	// MilestonePhaseChanged fires on every milestone phase transition.
	MilestonePhaseChanged(milestoneID string, phase MilestonePhase)

	// StageStarted fires when a stage begins executing its milestones.
	StageStarted(number, milestones int)

	// StageCompleted fires after a stage records its result, whether or not
	// it passed its gates.
	StageCompleted(number int, result checkpoint.StageResult)

	// ConflictDetected fires when concurrently running milestones modify
	// the same file.
	ConflictDetected(conflicts []conflict.FileConflict)
}

// notifier fans events out to an optional handler. A nil handler disables
// all notifications. It implements executor.TaskObserver so task lifecycle
// events originate in the executor, where attempt counts are known.
type notifier struct {
	h EventHandler
}

func (n *notifier) TaskStarted(task milestone.Task) {
	if n.h == nil {
		return
	}
	n.h.TaskStarted(task.MilestoneID, task.ID, task.Title)
}

func (n *notifier) TaskFinished(task milestone.Task, result milestone.TaskResult) {
	if n.h == nil {
		return
	}
	if result.Success() {
		n.h.TaskCompleted(task.MilestoneID, task.ID, result.Attempts)
		return
	}
	n.h.TaskFailed(task.MilestoneID, task.ID, result.Error)
}

func (n *notifier) milestonePhase(milestoneID string, phase MilestonePhase) {
	if n.h == nil {
		return
	}
	n.h.MilestonePhaseChanged(milestoneID, phase)
}

func (n *notifier) stageStarted(number, milestones int) {
	if n.h == nil {
		return
	}
	n.h.StageStarted(number, milestones)
}

func (n *notifier) stageCompleted(number int, result checkpoint.StageResult) {
	if n.h == nil {
		return
	}
	n.h.StageCompleted(number, result)
}

func (n *notifier) conflicts(conflicts []conflict.FileConflict) {
	if n.h == nil {
		return
	}
	n.h.ConflictDetected(conflicts)
}
