// Package executor runs individual tasks through the coding agent with rate
// limiting, retries, and checkpoint recording. It owns the judgment of
// whether an agent invocation succeeded; everything above it deals only in
// TaskResults.
package executor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/maestro/internal/agent"
	"github.com/Iron-Ham/maestro/internal/config"
	"github.com/Iron-Ham/maestro/internal/logging"
	"github.com/Iron-Ham/maestro/internal/milestone"
	"github.com/Iron-Ham/maestro/internal/ratelimit"
)

// AgentRunner abstracts the agent subprocess so tests can fake invocations.
type AgentRunner interface {
	Run(ctx context.Context, prompt, dir string, timeout time.Duration) agent.Result
}

// Checkpointer is the slice of the checkpoint store the executor needs.
type Checkpointer interface {
	IsTaskCompleted(taskID string) bool
	MarkTaskCompleted(taskID string) error
	MarkTaskFailed(taskID string) error
}

// TaskObserver receives task lifecycle notifications. Tasks in a group run
// concurrently, so implementations must be safe for concurrent use.
type TaskObserver interface {
	TaskStarted(task milestone.Task)
	TaskFinished(task milestone.Task, result milestone.TaskResult)
}

// Executor executes tasks with bounded retries. One Executor is shared by
// all milestone runners; it is safe for concurrent use.
type Executor struct {
	cfg     config.ExecutionConfig
	runner  AgentRunner
	limiter *ratelimit.Limiter
	state   Checkpointer
	logger  *logging.Logger

	mu       sync.Mutex
	observer TaskObserver
}

// New creates an Executor.
func New(cfg config.ExecutionConfig, runner AgentRunner, limiter *ratelimit.Limiter, state Checkpointer, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Executor{
		cfg:     cfg,
		runner:  runner,
		limiter: limiter,
		state:   state,
		logger:  logger,
	}
}

// SetObserver registers an observer for task lifecycle events. Pass nil to
// remove it. Register before execution starts.
func (e *Executor) SetObserver(obs TaskObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = obs
}

func (e *Executor) taskObserver() TaskObserver {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observer
}

// Execute runs one task inside worktreePath until it succeeds or exhausts
// MaxRetries+1 attempts. Failed attempts back off exponentially from
// RetryDelay. A task already recorded as completed returns immediately
// without invoking the agent.
//
// Context cancellation aborts between attempts and leaves the task
// unrecorded in the checkpoint, so the next run retries it.
func (e *Executor) Execute(ctx context.Context, task milestone.Task, worktreePath string) milestone.TaskResult {
	obs := e.taskObserver()
	if obs != nil {
		obs.TaskStarted(task)
	}
	result := e.execute(ctx, task, worktreePath)
	if obs != nil {
		obs.TaskFinished(task, result)
	}
	return result
}

func (e *Executor) execute(ctx context.Context, task milestone.Task, worktreePath string) milestone.TaskResult {
	started := time.Now()
	log := e.logger.WithTask(task.ID)

	if e.state.IsTaskCompleted(task.ID) {
		log.Info("task already completed, skipping")
		return milestone.TaskResult{
			TaskID:    task.ID,
			Status:    milestone.TaskCompleted,
			Output:    "previously completed",
			StartedAt: started,
		}
	}

	prompt := agent.TaskPrompt(task)
	maxAttempts := e.cfg.MaxRetries + 1

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return e.interrupted(task.ID, started, attempt)
		}

		if waited, err := e.limiter.Acquire(ctx); err != nil {
			return e.interrupted(task.ID, started, attempt)
		} else if waited > 0 {
			log.Debug("rate limit delayed task", "waited", waited.String())
		}

		log.Info("executing task", "attempt", attempt+1, "max_attempts", maxAttempts)
		result := e.runner.Run(ctx, prompt, worktreePath, e.cfg.TaskTimeout)
		e.limiter.OnResponse(ctx, ResponseStatus(result), 0)

		if result.Success() && JudgeOutput(result.Stdout) {
			if err := e.state.MarkTaskCompleted(task.ID); err != nil {
				log.Warn("failed to checkpoint task completion", "error", err)
			}
			log.Info("task completed", "attempt", attempt+1, "duration", result.Duration.String())
			return milestone.TaskResult{
				TaskID:    task.ID,
				Status:    milestone.TaskCompleted,
				Output:    result.Stdout,
				Attempts:  attempt + 1,
				StartedAt: started,
				Duration:  time.Since(started),
			}
		}

		// A cancelled context surfaces as a failed invocation; leave the
		// task unrecorded instead of charging it a failure.
		if ctx.Err() != nil {
			return e.interrupted(task.ID, started, attempt+1)
		}

		reason := FailureReason(result)
		log.Warn("task attempt failed",
			"attempt", attempt+1,
			"exit_code", result.ExitCode,
			"reason", reason)

		if attempt < maxAttempts-1 {
			backoff := e.cfg.RetryDelay * time.Duration(1<<attempt)
			log.Info("retrying task", "backoff", backoff.String())
			if !sleepCtx(ctx, backoff) {
				return e.interrupted(task.ID, started, attempt+1)
			}
		}
	}

	if err := e.state.MarkTaskFailed(task.ID); err != nil {
		log.Warn("failed to checkpoint task failure", "error", err)
	}
	log.Error("task failed permanently", "attempts", maxAttempts)
	return milestone.TaskResult{
		TaskID:    task.ID,
		Status:    milestone.TaskFailed,
		Error:     fmt.Sprintf("failed after %d attempts", maxAttempts),
		Attempts:  maxAttempts,
		StartedAt: started,
		Duration:  time.Since(started),
	}
}

// ExecuteGroup runs a task group concurrently in a pool bounded by
// MaxWorkers (or the group size, whichever is smaller) and returns results
// in completion order. Individual failures never cancel siblings; a panic in
// one task is converted into that task's failure.
func (e *Executor) ExecuteGroup(ctx context.Context, tasks []milestone.Task, worktreePath string) []milestone.TaskResult {
	if len(tasks) == 0 {
		return nil
	}

	workers := e.cfg.MaxWorkers
	if workers < 1 || workers > len(tasks) {
		workers = len(tasks)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var (
		mu      sync.Mutex
		results = make([]milestone.TaskResult, 0, len(tasks))
	)
	record := func(r milestone.TaskResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	for _, task := range tasks {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("task execution panicked", "task", task.ID, "panic", r)
					failure := milestone.TaskResult{
						TaskID: task.ID,
						Status: milestone.TaskFailed,
						Error:  fmt.Sprintf("panic: %v", r),
					}
					record(failure)
					if obs := e.taskObserver(); obs != nil {
						obs.TaskFinished(task, failure)
					}
				}
			}()

			// Tasks not yet dispatched at shutdown stay unrecorded.
			if gctx.Err() != nil {
				return nil
			}
			record(e.Execute(gctx, task, worktreePath))
			return nil
		})
	}

	// Workers never return errors; failures live in the results.
	_ = g.Wait()
	return results
}

// interrupted builds the result for a task aborted by context cancellation.
// The checkpoint is deliberately not touched.
func (e *Executor) interrupted(taskID string, started time.Time, attempts int) milestone.TaskResult {
	e.logger.WithTask(taskID).Warn("task interrupted, leaving unrecorded")
	return milestone.TaskResult{
		TaskID:    taskID,
		Status:    milestone.TaskFailed,
		Error:     "execution interrupted",
		Attempts:  attempts,
		StartedAt: started,
		Duration:  time.Since(started),
	}
}

// FailureReason summarizes a failed invocation in one line. The review
// manager uses it too when a review call comes back unusable.
func FailureReason(result agent.Result) string {
	if result.TimedOut() {
		return result.Stderr
	}
	if !result.Success() {
		if line := firstLine(result.Stderr); line != "" {
			return fmt.Sprintf("exit code %d: %s", result.ExitCode, line)
		}
		return fmt.Sprintf("exit code %d", result.ExitCode)
	}
	return "output did not indicate success"
}

// ResponseStatus maps agent output onto the status code vocabulary the rate
// limiter adapts with.
func ResponseStatus(result agent.Result) int {
	if mentionsRateLimit(result.Stdout) || mentionsRateLimit(result.Stderr) {
		return http.StatusTooManyRequests
	}
	return http.StatusOK
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// sleepCtx sleeps for d unless the context is cancelled first. It reports
// whether the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
