package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/maestro/internal/agent"
	"github.com/Iron-Ham/maestro/internal/config"
	"github.com/Iron-Ham/maestro/internal/executor"
	"github.com/Iron-Ham/maestro/internal/logging"
	"github.com/Iron-Ham/maestro/internal/milestone"
	"github.com/Iron-Ham/maestro/internal/ratelimit"
)

// AgentRunner abstracts the agent subprocess so tests can fake invocations.
type AgentRunner interface {
	Run(ctx context.Context, prompt, dir string, timeout time.Duration) agent.Result
}

// Manager runs review loops. One Manager is shared by every milestone and
// stage review in a run; it is safe for concurrent use.
type Manager struct {
	cfg     config.ReviewConfig
	timeout time.Duration
	runner  AgentRunner
	limiter *ratelimit.Limiter
	interp  Interpreter
	logger  *logging.Logger
}

// NewManager creates a Manager. A nil interpreter selects the default
// pattern-based one.
func NewManager(cfg config.ReviewConfig, timeout time.Duration, runner AgentRunner, limiter *ratelimit.Limiter, interp Interpreter, logger *logging.Logger) *Manager {
	if interp == nil {
		interp = NewInterpreter()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Manager{
		cfg:     cfg,
		timeout: timeout,
		runner:  runner,
		limiter: limiter,
		interp:  interp,
		logger:  logger,
	}
}

// Enabled reports whether reviews are turned on at all.
func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

// Review drives the review loop for a target inside dir, up to
// MaxIterations. Each iteration runs one review call; a verdict with
// issues triggers a corrective agent call when auto-fix is enabled, then
// the next iteration re-reviews. The loop ends early on a clean verdict,
// a failed invocation, a failed fix, or issues with auto-fix disabled.
func (m *Manager) Review(ctx context.Context, target string, typ Type, dir string) Result {
	reviewID := fmt.Sprintf("%s-%s-%s", target, typ, uuid.NewString()[:8])
	reportFile := fmt.Sprintf("code_review_%s.md", reviewID)
	log := m.logger.With("review_id", reviewID)

	log.Info("starting code review",
		"target", target,
		"type", typ.String(),
		"max_iterations", m.cfg.MaxIterations)

	iterations := 0
	for iteration := 1; iteration <= m.cfg.MaxIterations; iteration++ {
		iterations = iteration
		log.Info("review iteration", "iteration", iteration, "max_iterations", m.cfg.MaxIterations)

		verdict, ok := m.runReview(ctx, target, typ, dir, reportFile, iteration)
		if !ok {
			log.Error("review invocation failed", "iteration", iteration)
			return Result{Outcome: OutcomeExecutionFailed, Verdict: verdict, ReportFile: reportFile, Iterations: iteration}
		}

		if !verdict.HasIssues(m.cfg.QualityThreshold) {
			log.Info("review passed", "iteration", iteration, "score", verdict.QualityScore)
			return Result{Outcome: OutcomePassed, Verdict: verdict, ReportFile: reportFile, Iterations: iteration}
		}

		log.Warn("review found issues",
			"score", verdict.QualityScore,
			"todos", len(verdict.Todos),
			"failed_gates", len(verdict.FailedGates))

		if !m.cfg.AutoFix {
			return Result{Outcome: OutcomeIssuesRemain, Verdict: verdict, ReportFile: reportFile, Iterations: iteration}
		}

		log.Info("attempting auto-fix", "iteration", iteration)
		if !m.runFix(ctx, verdict, dir) {
			log.Warn("auto-fix failed, manual intervention required")
			return Result{Outcome: OutcomeAutoFixFailed, Verdict: verdict, ReportFile: reportFile, Iterations: iteration}
		}
	}

	log.Warn("review iterations exhausted", "iterations", iterations)
	return Result{
		Outcome: OutcomeExhausted,
		Verdict: Verdict{
			Todos:           []string{"Review process failed"},
			FailedGates:     []string{"Maximum iterations exceeded"},
			Recommendations: []string{"Manual review required"},
		},
		ReportFile: reportFile,
		Iterations: iterations,
	}
}

// runReview performs one review invocation and interprets its output. The
// boolean is false when the invocation itself was unusable.
func (m *Manager) runReview(ctx context.Context, target string, typ Type, dir, reportFile string, iteration int) (Verdict, bool) {
	task := milestone.Task{
		ID:                 fmt.Sprintf("code-review-%s-%d", target, iteration),
		Title:              fmt.Sprintf("Code Review - %s (Iteration %d)", target, iteration),
		Requirements:       reviewRequirements(target, typ, reportFile),
		AcceptanceCriteria: reviewAcceptanceCriteria(m.cfg.QualityThreshold),
		MilestoneID:        target,
	}

	result, err := m.invoke(ctx, task, dir)
	if err != nil {
		return executionFailedVerdict(err.Error()), false
	}
	if !result.Success() || !executor.JudgeOutput(result.Stdout) {
		return executionFailedVerdict(executor.FailureReason(result)), false
	}

	return m.interp.Interpret(result.Stdout), true
}

// runFix dispatches a corrective agent call for the verdict's issues and
// reports whether it succeeded.
func (m *Manager) runFix(ctx context.Context, verdict Verdict, dir string) bool {
	task := milestone.Task{
		ID:                 fmt.Sprintf("auto-fix-%s", uuid.NewString()[:8]),
		Title:              "Auto-fix Code Review Issues",
		Requirements:       fixRequirements(verdict),
		AcceptanceCriteria: fixAcceptanceCriteria(),
		MilestoneID:        "auto-fix",
	}

	result, err := m.invoke(ctx, task, dir)
	if err != nil {
		return false
	}
	return result.Success() && executor.JudgeOutput(result.Stdout)
}

// invoke runs one rate-limited agent call.
func (m *Manager) invoke(ctx context.Context, task milestone.Task, dir string) (agent.Result, error) {
	if _, err := m.limiter.Acquire(ctx); err != nil {
		return agent.Result{}, err
	}
	result := m.runner.Run(ctx, agent.TaskPrompt(task), dir, m.timeout)
	m.limiter.OnResponse(ctx, executor.ResponseStatus(result), 0)
	return result, nil
}

func executionFailedVerdict(reason string) Verdict {
	return Verdict{
		FailedGates:     []string{fmt.Sprintf("review execution failed: %s", reason)},
		Recommendations: []string{"Fix execution issues and retry"},
	}
}
