package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/maestro/internal/checkpoint"
	"github.com/Iron-Ham/maestro/internal/config"
	"github.com/Iron-Ham/maestro/internal/executor"
	"github.com/Iron-Ham/maestro/internal/logging"
	"github.com/Iron-Ham/maestro/internal/milestone"
	"github.com/Iron-Ham/maestro/internal/review"
)

// MilestoneRunner executes one milestone end to end: dependency check,
// prioritized task groups, validation gate, code review, and worktree
// commit. A single runner is shared by all milestones in a run; per-call
// state lives in the outcome.
type MilestoneRunner struct {
	cfg      *config.Config
	exec     *executor.Executor
	state    *checkpoint.Store
	reviews  Reviewer
	trees    WorktreeManager
	progress *ProgressWriter
	events   *notifier
	logger   *logging.Logger
}

// Run executes milestone m with dir as its working directory and returns
// the outcome. It never panics: a panic escaping the task pool or a
// callback becomes a failed outcome. The terminal phase event always fires.
func (r *MilestoneRunner) Run(ctx context.Context, m milestone.Milestone, dir string) (outcome checkpoint.MilestoneOutcome) {
	started := time.Now()
	log := r.logger.WithMilestone(m.ID)

	outcome = checkpoint.MilestoneOutcome{MilestoneID: m.ID}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("milestone run panicked", "panic", rec)
			outcome.Success = false
			outcome.Error = fmt.Sprintf("panic: %v", rec)
		}
		outcome.Duration = time.Since(started)
		if outcome.Success {
			log.Info("milestone completed", "duration", outcome.Duration.String())
			r.events.milestonePhase(m.ID, PhaseCommitted)
		} else {
			log.Warn("milestone failed", "error", outcome.Error, "duration", outcome.Duration.String())
			r.events.milestonePhase(m.ID, PhaseFailed)
		}
	}()

	r.events.milestonePhase(m.ID, PhasePending)
	log.Info("milestone starting", "title", m.Title, "tasks", len(m.Tasks), "dir", dir)

	r.run(ctx, m, dir, &outcome, log)
	return outcome
}

func (r *MilestoneRunner) run(ctx context.Context, m milestone.Milestone, dir string, out *checkpoint.MilestoneOutcome, log *logging.Logger) {
	if dep, ok := r.dependenciesMet(m); !ok {
		log.Warn("dependency not met, skipping milestone", "dependency", dep)
		r.skipTasks(m.ID, m.Tasks)
		out.Error = "dependency not met: " + dep
		return
	}
	r.events.milestonePhase(m.ID, PhaseDependenciesChecked)

	high, rest := m.SplitByPriority()
	r.events.milestonePhase(m.ID, PhaseTasksRunning)

	results := make([]milestone.TaskResult, 0, len(m.Tasks))
	if len(high) > 0 {
		log.Info("running high priority tasks", "count", len(high))
		results = append(results, r.exec.ExecuteGroup(ctx, high, dir)...)

		if ctx.Err() != nil {
			out.TaskResults = results
			out.Error = "execution interrupted"
			return
		}

		// A high priority failure means the milestone's foundation is
		// broken; running the remaining tasks on top of it wastes agent
		// calls, so they are skipped instead.
		if n := failureCount(results); n > 0 {
			log.Error("high priority task failures, skipping remaining tasks",
				"failed", n, "skipped", len(rest))
			r.skipTasks(m.ID, rest)
			rest = nil
		}
	}

	if len(rest) > 0 {
		log.Info("running tasks", "count", len(rest))
		results = append(results, r.exec.ExecuteGroup(ctx, rest, dir)...)

		if ctx.Err() != nil {
			out.TaskResults = results
			out.Error = "execution interrupted"
			return
		}
	}
	out.TaskResults = results

	// The validation gate counts attempted tasks only: skipped tasks have
	// no result and do not drag the ratio down.
	successes := 0
	for _, res := range results {
		if res.Success() {
			successes++
		}
	}
	if len(results) == 0 {
		out.Error = "no tasks attempted"
		return
	}
	ratio := float64(successes) / float64(len(results))
	threshold := r.cfg.Validation.TaskSuccessRatio
	if ratio < threshold {
		log.Warn("milestone below success threshold",
			"successful", successes,
			"attempted", len(results),
			"threshold", threshold)
		out.Error = fmt.Sprintf("task success ratio %.2f below threshold %.2f", ratio, threshold)
		return
	}
	r.events.milestonePhase(m.ID, PhaseValidated)
	log.Info("milestone validated", "successful", successes, "attempted", len(results))

	if r.reviews.Enabled() {
		r.events.milestonePhase(m.ID, PhaseReviewing)
		res := r.reviews.Review(ctx, m.ID, review.TypeMilestone, dir)
		out.Review = &res
		if res.QualityFailure(r.cfg.Review.QualityThreshold) {
			log.Warn("milestone failed code review",
				"outcome", res.Outcome.String(),
				"score", res.Verdict.QualityScore)
			out.Error = "code review failed quality gates"
			return
		}
	}

	// Commit and progress failures degrade to warnings: the work itself
	// succeeded and the branch can still be inspected or committed by hand.
	if r.trees != nil {
		if err := r.trees.CommitAll(dir, milestoneCommitMessage(m)); err != nil {
			log.Warn("failed to commit milestone worktree", "error", err)
		}
	}
	if err := r.progress.Append(m, results); err != nil {
		log.Warn("failed to update progress file", "error", err)
	}

	out.Success = true
}

// dependenciesMet checks that every declared dependency has at least one
// completed task. Dependencies name milestone IDs; task IDs embed their
// milestone ID as a prefix.
func (r *MilestoneRunner) dependenciesMet(m milestone.Milestone) (string, bool) {
	for _, dep := range m.Dependencies {
		if !r.state.HasCompletedTaskWithPrefix(dep + "-") {
			return dep, false
		}
	}
	return "", true
}

// skipTasks records tasks that will not run this pass. Already completed
// tasks keep their terminal status.
func (r *MilestoneRunner) skipTasks(milestoneID string, tasks []milestone.Task) {
	for _, t := range tasks {
		if r.state.IsTaskCompleted(t.ID) {
			continue
		}
		if err := r.state.MarkTaskSkipped(t.ID); err != nil {
			r.logger.WithMilestone(milestoneID).Warn("failed to checkpoint skipped task",
				"task", t.ID, "error", err)
		}
	}
}

func failureCount(results []milestone.TaskResult) int {
	n := 0
	for _, res := range results {
		if !res.Success() {
			n++
		}
	}
	return n
}

// milestoneCommitMessage describes a milestone's work for its worktree
// commit, listing every task title.
func milestoneCommitMessage(m milestone.Milestone) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Implement milestone %s: %s\n\nTasks completed:\n", m.ID, m.Title)
	for _, t := range m.Tasks {
		fmt.Fprintf(&sb, "- %s\n", t.Title)
	}
	return sb.String()
}
