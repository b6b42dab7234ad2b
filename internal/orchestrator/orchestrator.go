// Package orchestrator drives staged milestone execution. Milestones are
// grouped into stages by number; stages run strictly in sequence while the
// milestones inside a stage run concurrently, each in its own git worktree.
// A stage advances only after clearing its gates: milestone success ratio,
// branch merges, and an optional stage-level code review. Progress is
// checkpointed after every transition so an interrupted run resumes at the
// stage it stopped in.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/maestro/internal/checkpoint"
	"github.com/Iron-Ham/maestro/internal/config"
	"github.com/Iron-Ham/maestro/internal/conflict"
	"github.com/Iron-Ham/maestro/internal/errors"
	"github.com/Iron-Ham/maestro/internal/executor"
	"github.com/Iron-Ham/maestro/internal/logging"
	"github.com/Iron-Ham/maestro/internal/milestone"
	"github.com/Iron-Ham/maestro/internal/review"
	"github.com/Iron-Ham/maestro/internal/worktree"
)

// Reviewer is the slice of the review manager the orchestrator needs.
type Reviewer interface {
	Enabled() bool
	Review(ctx context.Context, target string, typ review.Type, dir string) review.Result
}

// WorktreeManager isolates milestones in git worktrees and integrates their
// branches back into the base branch.
type WorktreeManager interface {
	RepoDir() string
	Create(milestoneID, baseBranch string) (*worktree.Worktree, error)
	Merge(milestoneID, title, baseBranch string) error
	Destroy(path string) error
	CommitAll(dir, message string) error
	StageCommit(message string) error
}

var _ Reviewer = (*review.Manager)(nil)
var _ WorktreeManager = (*worktree.Manager)(nil)

// Options configures a new Orchestrator. Config, State, Executor, and
// Reviews are required. A nil Trees disables worktree isolation: milestones
// run directly in RepoDir and the merge and commit phases are skipped. A
// nil Detector disables conflict watching.
type Options struct {
	Config   *config.Config
	State    *checkpoint.Store
	Executor *executor.Executor
	Reviews  Reviewer
	Trees    WorktreeManager
	Detector *conflict.Detector
	Events   EventHandler
	Logger   *logging.Logger

	// RepoDir is where tasks run when Trees is nil and where stage reviews
	// run. When Trees is set its repository directory wins. Defaults to
	// the current directory.
	RepoDir string
}

// Orchestrator coordinates a full run: stages in sequence, milestones
// within a stage in parallel.
type Orchestrator struct {
	cfg      *config.Config
	state    *checkpoint.Store
	reviews  Reviewer
	trees    WorktreeManager
	detector *conflict.Detector
	events   *notifier
	runner   *MilestoneRunner
	logger   *logging.Logger
	repoDir  string
}

// New builds an Orchestrator and wires task lifecycle events from the
// executor and conflict notifications from the detector into the event
// handler.
func New(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, errors.NewValidationError("config is required").WithField("Config")
	}
	if opts.State == nil {
		return nil, errors.NewValidationError("checkpoint store is required").WithField("State")
	}
	if opts.Executor == nil {
		return nil, errors.NewValidationError("executor is required").WithField("Executor")
	}
	if opts.Reviews == nil {
		return nil, errors.NewValidationError("review manager is required").WithField("Reviews")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	repoDir := opts.RepoDir
	if opts.Trees != nil {
		repoDir = opts.Trees.RepoDir()
	}
	if repoDir == "" {
		repoDir = "."
	}

	events := &notifier{h: opts.Events}
	opts.Executor.SetObserver(events)

	o := &Orchestrator{
		cfg:      opts.Config,
		state:    opts.State,
		reviews:  opts.Reviews,
		trees:    opts.Trees,
		detector: opts.Detector,
		events:   events,
		logger:   logger,
		repoDir:  repoDir,
		runner: &MilestoneRunner{
			cfg:      opts.Config,
			exec:     opts.Executor,
			state:    opts.State,
			reviews:  opts.Reviews,
			trees:    opts.Trees,
			progress: NewProgressWriter(opts.Config.ResolveTasksFile(repoDir), logger),
			events:   events,
			logger:   logger,
		},
	}

	if o.detector != nil {
		o.detector.SetConflictCallback(func(conflicts []conflict.FileConflict) {
			o.logger.Warn("concurrent milestones are modifying the same files", "files", len(conflicts))
			o.events.conflicts(conflicts)
		})
	}

	return o, nil
}

// Run executes every stage at or beyond the resume cursor. It stops at the
// first stage that fails a gate. Whatever the outcome, the execution report
// is written and registered worktrees are removed before Run returns. A
// cancelled context returns ErrInterrupted.
func (o *Orchestrator) Run(ctx context.Context, milestones []milestone.Milestone) error {
	if len(milestones) == 0 {
		o.logger.Warn("no milestones to execute")
		return nil
	}

	stages := milestone.OrganizeStages(milestones)

	if err := o.state.SetStartedAt(time.Now()); err != nil {
		o.logger.Warn("failed to checkpoint start time", "error", err)
	}
	o.appendLog("Run started: %d milestones in %d stages", len(milestones), len(stages))
	o.logger.Info("run starting",
		"run_id", o.state.RunID(),
		"milestones", len(milestones),
		"stages", len(stages),
		"resume_from", o.state.CurrentStage())

	defer o.cleanup()
	defer o.writeReport()

	for _, stage := range stages {
		if ctx.Err() != nil {
			o.appendLog("Run interrupted before stage %d", stage.Number)
			return errors.ErrInterrupted
		}
		if stage.Number < o.state.CurrentStage() {
			o.logger.Info("skipping completed stage", "stage", stage.Number)
			continue
		}

		if err := o.executeStage(ctx, stage); err != nil {
			return err
		}

		// The resume cursor only advances after the stage's full gate
		// sequence, so a rerun repeats a half-finished stage.
		if err := o.state.SetCurrentStage(stage.Number + 1); err != nil {
			o.logger.Warn("failed to advance resume cursor", "error", err)
		}
	}

	o.appendLog("Run completed")
	o.logger.Info("run completed",
		"completed_tasks", o.state.CompletedCount(),
		"failed_tasks", o.state.FailedCount(),
		"skipped_tasks", o.state.SkippedCount())
	return nil
}

// executeStage runs one stage's milestones concurrently, then walks the
// gate sequence: success ratio, branch merges, stage review, stage commit.
// The stage result is recorded whichever gate the stage stops at.
func (o *Orchestrator) executeStage(ctx context.Context, stage milestone.Stage) error {
	log := o.logger.WithStage(stage.Number)
	started := time.Now()

	log.Info("stage starting", "milestones", len(stage.Milestones))
	o.appendLog("Stage %d started: %d milestones", stage.Number, len(stage.Milestones))
	o.events.stageStarted(stage.Number, len(stage.Milestones))

	result := checkpoint.StageResult{
		Number:          stage.Number,
		TotalMilestones: len(stage.Milestones),
	}
	finish := func(success bool, err error) error {
		result.Success = success
		result.Duration = time.Since(started)
		if recErr := o.state.RecordStageResult(result); recErr != nil {
			log.Warn("failed to record stage result", "error", recErr)
		}
		o.appendLog("Stage %d finished: %d/%d milestones successful",
			stage.Number, result.SuccessfulMilestones, result.TotalMilestones)
		o.events.stageCompleted(stage.Number, result)
		return err
	}

	dirs, createErrs := o.prepareWorktrees(stage, log)
	defer o.teardownWorktrees(stage, log)

	// A milestone whose worktree could not be created fails outright
	// instead of falling back to the shared checkout, where concurrent
	// milestones would trample each other.
	runnable := make([]milestone.Milestone, 0, len(stage.Milestones))
	for _, m := range stage.Milestones {
		if createErr, ok := createErrs[m.ID]; ok {
			log.Error("milestone cannot run without its worktree", "milestone", m.ID, "error", createErr)
			o.events.milestonePhase(m.ID, PhaseFailed)
			result.Milestones = append(result.Milestones, checkpoint.MilestoneOutcome{
				MilestoneID: m.ID,
				Error:       "worktree creation failed: " + createErr.Error(),
			})
			continue
		}
		runnable = append(runnable, m)
	}

	if len(runnable) > 0 {
		var mu sync.Mutex
		workers := o.cfg.Execution.MaxParallelMilestones
		if workers < 1 || workers > len(runnable) {
			workers = len(runnable)
		}

		p := pool.New().WithMaxGoroutines(workers)
		for _, m := range runnable {
			p.Go(func() {
				outcome := o.runner.Run(ctx, m, dirs[m.ID])
				mu.Lock()
				result.Milestones = append(result.Milestones, outcome)
				mu.Unlock()
			})
		}
		p.Wait()
	}

	for _, out := range result.Milestones {
		if out.Success {
			result.SuccessfulMilestones++
		}
	}

	if ctx.Err() != nil {
		return finish(false, errors.ErrInterrupted)
	}

	if o.detector != nil && o.detector.HasConflicts() {
		conflicts := o.detector.Conflicts()
		for _, fc := range conflicts {
			log.Warn("file modified by multiple milestones",
				"file", fc.RelativePath,
				"milestones", strings.Join(fc.Milestones, ", "))
		}
	}

	ratio := float64(result.SuccessfulMilestones) / float64(result.TotalMilestones)
	if ratio < o.cfg.Validation.StageSuccessRatio {
		log.Error("stage below success threshold",
			"successful", result.SuccessfulMilestones,
			"total", result.TotalMilestones,
			"threshold", o.cfg.Validation.StageSuccessRatio)
		return finish(false, errors.NewStageError(
			fmt.Sprintf("milestone success ratio %.2f below threshold %.2f",
				ratio, o.cfg.Validation.StageSuccessRatio),
			errors.ErrStageFailed).WithStage(stage.Number))
	}

	merged, err := o.mergeStage(stage, result, log)
	if err != nil {
		return finish(false, err)
	}

	if o.reviews.Enabled() {
		target := fmt.Sprintf("stage-%d", stage.Number)
		log.Info("reviewing merged stage", "target", target)
		res := o.reviews.Review(ctx, target, review.TypeStage, o.repoDir)
		result.Review = &res
		if ctx.Err() != nil {
			return finish(false, errors.ErrInterrupted)
		}
		if res.QualityFailure(o.cfg.Review.QualityThreshold) {
			log.Error("stage failed code review",
				"outcome", res.Outcome.String(),
				"score", res.Verdict.QualityScore)
			return finish(false, errors.NewStageError(
				"code review failed quality gates", errors.ErrStageFailed).WithStage(stage.Number))
		}
	}

	// The stage commit collects anything review fixes left on the base
	// branch. Its failure does not fail the stage: the merges themselves
	// already landed.
	if o.trees != nil {
		if err := o.trees.StageCommit(stageCommitMessage(stage, merged)); err != nil {
			log.Warn("failed to commit stage completion", "error", err)
		}
	}

	log.Info("stage completed",
		"successful", result.SuccessfulMilestones,
		"total", result.TotalMilestones,
		"duration", time.Since(started).String())
	return finish(true, nil)
}

// prepareWorktrees creates one worktree per milestone and registers it with
// the checkpoint store and the conflict detector. Failures are returned per
// milestone rather than aborting the stage.
func (o *Orchestrator) prepareWorktrees(stage milestone.Stage, log *logging.Logger) (map[string]string, map[string]error) {
	dirs := make(map[string]string, len(stage.Milestones))
	failures := make(map[string]error)

	if o.trees == nil {
		for _, m := range stage.Milestones {
			dirs[m.ID] = o.repoDir
		}
		return dirs, failures
	}

	for _, m := range stage.Milestones {
		wt, err := o.trees.Create(m.ID, o.cfg.Git.BaseBranch)
		if err != nil {
			failures[m.ID] = err
			continue
		}
		dirs[m.ID] = wt.Path
		if err := o.state.SetWorktreePath(m.ID, wt.Path); err != nil {
			log.Warn("failed to checkpoint worktree path", "milestone", m.ID, "error", err)
		}
		if o.detector != nil {
			if err := o.detector.AddMilestone(m.ID, wt.Path); err != nil {
				log.Debug("conflict detector cannot watch worktree", "milestone", m.ID, "error", err)
			}
		}
	}
	return dirs, failures
}

// teardownWorktrees removes the stage's worktrees and their registrations.
// Branches stay behind for inspection.
func (o *Orchestrator) teardownWorktrees(stage milestone.Stage, log *logging.Logger) {
	if o.trees == nil {
		return
	}
	for _, m := range stage.Milestones {
		path, ok := o.state.WorktreePath(m.ID)
		if !ok {
			continue
		}
		if o.detector != nil {
			o.detector.RemoveMilestone(m.ID)
		}
		if err := o.trees.Destroy(path); err != nil {
			log.Warn("failed to remove worktree", "milestone", m.ID, "error", err)
		}
		if err := o.state.RemoveWorktreePath(m.ID); err != nil {
			log.Warn("failed to deregister worktree", "milestone", m.ID, "error", err)
		}
	}
}

// mergeStage merges the branches of the stage's successful milestones into
// the base branch, one at a time, and gates on the merged fraction. Failed
// milestones never merge. Returns the milestones that merged cleanly.
func (o *Orchestrator) mergeStage(stage milestone.Stage, result checkpoint.StageResult, log *logging.Logger) ([]milestone.Milestone, error) {
	if o.trees == nil {
		return nil, nil
	}

	succeeded := make(map[string]bool, len(result.Milestones))
	for _, out := range result.Milestones {
		if out.Success {
			succeeded[out.MilestoneID] = true
		}
	}

	var merged []milestone.Milestone
	attempts := 0
	for _, m := range stage.Milestones {
		if !succeeded[m.ID] {
			continue
		}
		attempts++
		if err := o.trees.Merge(m.ID, m.Title, o.cfg.Git.BaseBranch); err != nil {
			log.Error("failed to merge milestone branch", "milestone", m.ID, "error", err)
			o.appendLog("Merge failed for milestone %s", m.ID)
			continue
		}
		merged = append(merged, m)
		log.Info("merged milestone branch", "milestone", m.ID)
	}

	if attempts == 0 {
		return nil, nil
	}

	ratio := float64(len(merged)) / float64(attempts)
	if ratio < o.cfg.Validation.MergeRatio {
		return merged, errors.NewStageError(
			fmt.Sprintf("merge ratio %.2f below threshold %.2f", ratio, o.cfg.Validation.MergeRatio),
			errors.ErrStageFailed).WithStage(stage.Number)
	}
	return merged, nil
}

// cleanup removes worktrees still registered in the checkpoint, including
// leftovers from a previous crashed run, and persists the final state.
func (o *Orchestrator) cleanup() {
	if o.trees != nil {
		for id, path := range o.state.WorktreePaths() {
			if o.detector != nil {
				o.detector.RemoveMilestone(id)
			}
			if err := o.trees.Destroy(path); err != nil {
				o.logger.Warn("failed to remove leftover worktree", "milestone", id, "error", err)
			}
			if err := o.state.RemoveWorktreePath(id); err != nil {
				o.logger.Warn("failed to deregister leftover worktree", "milestone", id, "error", err)
			}
		}
	}
	if err := o.state.Save(); err != nil {
		o.logger.Error("failed to save final checkpoint", "error", err)
	}
}

// writeReport renders the execution report into the state directory.
func (o *Orchestrator) writeReport() {
	report := BuildReport(o.state.Snapshot())
	path := filepath.Join(o.cfg.ResolveStateDir(o.repoDir), ReportFileName)
	if err := WriteReport(path, report); err != nil {
		o.logger.Error("failed to write execution report", "error", err)
		return
	}
	o.logger.Info("execution report written", "path", path)
}

func (o *Orchestrator) appendLog(format string, args ...any) {
	if err := o.state.AppendLog(fmt.Sprintf(format, args...)); err != nil {
		o.logger.Warn("failed to append execution log", "error", err)
	}
}

// stageCommitMessage describes a completed stage for the base branch
// commit, naming each merged milestone and a sample of its tasks.
func stageCommitMessage(stage milestone.Stage, merged []milestone.Milestone) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Complete Stage %d: %d milestones integrated\n\n", stage.Number, len(merged))
	sb.WriteString("Milestones completed in this stage:\n")
	for _, m := range merged {
		fmt.Fprintf(&sb, "- %s: %s\n", m.ID, m.Title)
		for i, t := range m.Tasks {
			if i == 3 {
				fmt.Fprintf(&sb, "  • ... and %d more tasks\n", len(m.Tasks)-3)
				break
			}
			fmt.Fprintf(&sb, "  • %s\n", t.Title)
		}
	}
	return sb.String()
}
