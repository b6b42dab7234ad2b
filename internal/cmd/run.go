package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/maestro/internal/agent"
	"github.com/Iron-Ham/maestro/internal/checkpoint"
	"github.com/Iron-Ham/maestro/internal/config"
	"github.com/Iron-Ham/maestro/internal/conflict"
	"github.com/Iron-Ham/maestro/internal/errors"
	"github.com/Iron-Ham/maestro/internal/executor"
	"github.com/Iron-Ham/maestro/internal/logging"
	"github.com/Iron-Ham/maestro/internal/milestone"
	"github.com/Iron-Ham/maestro/internal/orchestrator"
	"github.com/Iron-Ham/maestro/internal/ratelimit"
	"github.com/Iron-Ham/maestro/internal/review"
	"github.com/Iron-Ham/maestro/internal/worktree"
)

var (
	runResume    bool
	runStage     int
	runMilestone string
	runDryRun    bool
	runVerbose   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the milestone plan",
	Long: `Run discovers the milestone definitions, validates them, and executes
the staged plan with the configured agent. A previous run's checkpoint is
always picked up, so interrupted runs continue where they stopped.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runResume, "resume", false, "announce the resumed checkpoint cursor (runs always resume)")
	runCmd.Flags().IntVar(&runStage, "stage", 0, "execute only the given stage")
	runCmd.Flags().StringVar(&runMilestone, "milestone", "", "execute only the given milestone")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the staged plan and exit without executing")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "per-task progress output and debug logging")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if runVerbose {
		cfg.Logging.Level = logging.LevelDebug
	}

	root, err := projectRoot()
	if err != nil {
		return err
	}

	milestones, err := loadPlan(cmd, cfg, root)
	if err != nil {
		return err
	}
	milestones, err = filterMilestones(milestones, runStage, runMilestone)
	if err != nil {
		return err
	}

	statePath := checkpoint.Path(cfg.ResolveStateDir(root))

	if runDryRun {
		// The cursor still matters for a dry run: it shows which stages a
		// real invocation would skip.
		store := checkpoint.NewStore(statePath, nil)
		if err := store.Load(); err != nil {
			return err
		}
		stages := milestone.OrganizeStages(milestones)
		fmt.Fprint(cmd.OutOrStdout(), renderPlan(stages, store.CurrentStage()))
		return nil
	}

	logger, err := logging.NewLogger(cfg.ResolveLogDir(root), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer func() { _ = logger.Close() }()

	store := checkpoint.NewStore(statePath, logger)
	if err := store.Load(); err != nil {
		return err
	}
	runLog := logger.WithRun(store.RunID())

	if runResume || store.CurrentStage() > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render(fmt.Sprintf(
			"Resuming from stage %d (%d tasks already completed)",
			store.CurrentStage(), store.CompletedCount())))
	}

	backend, err := agent.NewFromConfig(cfg.Agent)
	if err != nil {
		return err
	}
	runner := agent.NewRunner(backend, runLog)
	if err := runner.Verify(); err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstLimit, runLog)
	exec := executor.New(cfg.Execution, runner, limiter, store, runLog)
	reviews := review.NewManager(cfg.Review, cfg.Execution.ReviewTimeout, runner, limiter, nil, runLog)

	var trees orchestrator.WorktreeManager
	var detector *conflict.Detector
	if cfg.Git.UseWorktrees {
		mgr, err := worktree.New(root, cfg.Git.ResolveWorktreeDir(root), cfg.Git.BranchPrefix, runLog)
		if err != nil {
			return err
		}
		trees = mgr

		det, err := conflict.New(runLog)
		if err != nil {
			// Conflict watching is advisory; a broken watcher never blocks
			// the run.
			runLog.Warn("conflict detection unavailable", "error", err)
		} else {
			det.Start()
			defer det.Stop()
			detector = det
		}
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Config:   cfg,
		State:    store,
		Executor: exec,
		Reviews:  reviews,
		Trees:    trees,
		Detector: detector,
		Events:   newRunPrinter(cmd.OutOrStdout(), runVerbose),
		Logger:   runLog,
		RepoDir:  root,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stopSignals := watchSignals(cmd, cancel, cfg.ShutdownGrace)
	defer stopSignals()

	runErr := orch.Run(ctx, milestones)

	reportPath := filepath.Join(cfg.ResolveStateDir(root), orchestrator.ReportFileName)
	fmt.Fprint(cmd.OutOrStdout(), renderRunSummary(store.Snapshot(), reportPath))
	return runErr
}

// projectRoot returns the enclosing git repository root, or the working
// directory when there is none. Worktree creation will surface its own error
// for a non-repository when worktrees are enabled.
func projectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	if root, err := worktree.FindGitRoot(cwd); err == nil {
		return root, nil
	}
	return cwd, nil
}

// loadPlan discovers and validates the milestone definitions. Load errors and
// validation warnings are printed; validation errors abort.
func loadPlan(cmd *cobra.Command, cfg *config.Config, root string) ([]milestone.Milestone, error) {
	dir := cfg.ResolveMilestonesDir(root)
	milestones, loadErrs := milestone.Discover(dir)
	for _, err := range loadErrs {
		fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("⚠ "+err.Error()))
	}

	result := milestone.ValidateAll(milestones)
	if !result.IsValid {
		fmt.Fprint(cmd.ErrOrStderr(), renderValidation(result))
		return nil, errors.ErrPlanInvalid
	}
	if result.WarningCount > 0 {
		fmt.Fprint(cmd.ErrOrStderr(), renderValidation(result))
	}
	return milestones, nil
}

// filterMilestones narrows the plan to one stage or one milestone. A filter
// that matches nothing is an error rather than a silent empty run.
func filterMilestones(milestones []milestone.Milestone, stage int, id string) ([]milestone.Milestone, error) {
	if stage == 0 && id == "" {
		return milestones, nil
	}

	var out []milestone.Milestone
	for _, m := range milestones {
		if stage != 0 && m.Stage != stage {
			continue
		}
		if id != "" && m.ID != id {
			continue
		}
		out = append(out, m)
	}

	if len(out) == 0 {
		if id != "" {
			return nil, errors.NewNotFoundError("milestone", id)
		}
		return nil, errors.NewNotFoundError("stage", fmt.Sprintf("%d", stage))
	}
	return out, nil
}

// watchSignals cancels the run context on SIGINT or SIGTERM and arms a
// watchdog that force-exits if cleanup overruns the grace period. The
// returned function releases the signal handler.
func watchSignals(cmd *cobra.Command, cancel context.CancelFunc, grace time.Duration) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render(
			fmt.Sprintf("%s received, stopping after cleanup (grace %s)", sig, grace)))
		cancel()
		time.AfterFunc(grace, func() {
			fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("cleanup overran the grace period, exiting"))
			os.Exit(130)
		})
	}()

	return func() {
		signal.Stop(sigCh)
		close(sigCh)
	}
}
