package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/Iron-Ham/maestro/internal/logging"
)

// timeoutExitCode mirrors the conventional exit code of timeout(1).
const timeoutExitCode = 124

// Result is the raw outcome of one agent invocation.
type Result struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
}

// Success reports whether the invocation exited cleanly.
func (r Result) Success() bool { return r.ExitCode == 0 }

// TimedOut reports whether the invocation hit its deadline.
func (r Result) TimedOut() bool { return r.ExitCode == timeoutExitCode }

// Runner executes agent invocations as subprocesses.
type Runner struct {
	backend Backend
	logger  *logging.Logger
}

// NewRunner creates a Runner for the given backend.
func NewRunner(backend Backend, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Runner{
		backend: backend,
		logger:  logger,
	}
}

// Backend returns the backend this runner drives.
func (r *Runner) Backend() Backend { return r.backend }

// Verify checks that the backend binary is resolvable.
func (r *Runner) Verify() error {
	argv := r.backend.BuildCommand("")
	if _, err := exec.LookPath(argv[0]); err != nil {
		return fmt.Errorf("%s binary %q not available: %w", r.backend.DisplayName(), argv[0], err)
	}
	return nil
}

// Run invokes the backend with the prompt inside dir, bounded by timeout.
// A hit deadline yields exit code 124; a spawn failure yields exit code 1
// with the error text on stderr. Run never interprets agent output.
func (r *Runner) Run(ctx context.Context, prompt, dir string, timeout time.Duration) Result {
	argv := r.backend.BuildCommand(prompt)

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("invoking agent",
		"backend", string(r.backend.Name()),
		"dir", dir,
		"timeout", timeout.String())

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result.ExitCode = timeoutExitCode
		result.Stdout = ""
		result.Stderr = fmt.Sprintf("timed out after %s", timeout)
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Spawn failure: binary missing, bad dir, cancelled context.
			result.ExitCode = 1
			if result.Stderr == "" {
				result.Stderr = err.Error()
			}
		}
	}

	r.logger.Debug("agent invocation finished",
		"backend", string(r.backend.Name()),
		"exit_code", result.ExitCode,
		"duration", duration.String())

	return result
}
