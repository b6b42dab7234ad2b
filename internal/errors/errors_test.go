package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// TaskError Tests
// -----------------------------------------------------------------------------

func TestNewTaskError(t *testing.T) {
	cause := ErrTaskFailed
	err := NewTaskError("execution failed", cause)

	if err.message != "execution failed" {
		t.Errorf("message = %q, want %q", err.message, "execution failed")
	}
	if err.cause != cause {
		t.Errorf("cause = %v, want %v", err.cause, cause)
	}
	if err.Severity() != SeverityError {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityError)
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}
	if !err.IsUserFacing() {
		t.Error("IsUserFacing() = false, want true")
	}
}

func TestTaskError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *TaskError
		want string
	}{
		{
			name: "basic error",
			err:  NewTaskError("test error", nil),
			want: "task error: test error",
		},
		{
			name: "with cause",
			err:  NewTaskError("test error", ErrTaskFailed),
			want: "task error: test error: task failed",
		},
		{
			name: "with task ID and attempt",
			err:  NewTaskError("test error", nil).WithTaskID("1a-core-T2").WithAttempt(3),
			want: "task error [task=1a-core-T2, attempt=3]: test error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTaskError_Is(t *testing.T) {
	err := NewTaskError("test", ErrRateLimited).WithTaskID("t1")

	if !Is(err, &TaskError{}) {
		t.Error("Is(TaskError{}) = false, want true")
	}
	if !Is(err, ErrRateLimited) {
		t.Error("Is(ErrRateLimited) = false, want true")
	}
	if Is(err, ErrMergeConflict) {
		t.Error("Is(ErrMergeConflict) = true, want false")
	}
}

// -----------------------------------------------------------------------------
// MilestoneError Tests
// -----------------------------------------------------------------------------

func TestMilestoneError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *MilestoneError
		want string
	}{
		{
			name: "basic error",
			err:  NewMilestoneError("gate failed", nil),
			want: "milestone error: gate failed",
		},
		{
			name: "with context",
			err: NewMilestoneError("gate failed", ErrMilestoneFailed).
				WithMilestoneID("2-api").
				WithStage(2).
				WithPhase("validated"),
			want: "milestone error [milestone=2-api, stage=2, phase=validated]: gate failed: milestone failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStageError_Error(t *testing.T) {
	err := NewStageError("success ratio below threshold", ErrStageFailed).WithStage(3)

	want := "stage error [stage=3]: success ratio below threshold: stage failed"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrStageFailed) {
		t.Error("Is(ErrStageFailed) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// GitError Tests
// -----------------------------------------------------------------------------

func TestGitError_Error(t *testing.T) {
	err := NewGitError("merge failed", ErrMergeConflict).
		WithBranch("milestone/2-api").
		WithWorktree(".worktrees/2-api")

	want := "git error [branch=milestone/2-api, worktree=.worktrees/2-api]: merge failed: merge conflict"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestGitError_WithGitOutput(t *testing.T) {
	err := NewGitError("command failed", nil).WithGitOutput("fatal: not a git repository")

	got := err.Error()
	want := "git error: command failed\ngit output: fatal: not a git repository"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// -----------------------------------------------------------------------------
// AgentError Tests
// -----------------------------------------------------------------------------

func TestAgentError_Error(t *testing.T) {
	err := NewAgentError("agent timed out", ErrTimeout).
		WithBackend("claude").
		WithExitCode(124)

	want := "agent error [backend=claude, exit=124]: agent timed out: operation timed out"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// -----------------------------------------------------------------------------
// Semantic Error Tests
// -----------------------------------------------------------------------------

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("milestone", "2-api")

	want := "milestone '2-api' not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityWarning)
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("must be between 0 and 1").
		WithField("review.quality_threshold").
		WithValue(1.5)

	want := "validation error [field=review.quality_threshold, value=1.5]: must be between 0 and 1"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrInvalidInput) {
		t.Error("Is(ErrInvalidInput) = false, want true")
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("waiting for agent", 30*time.Second)

	want := "timeout error: waiting for agent (timeout: 30s)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true for timeouts")
	}
	if !Is(err, ErrTimeout) {
		t.Error("Is(ErrTimeout) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"timeout error", NewTimeoutError("op", time.Second), true},
		{"wrapped ErrTimeout", fmt.Errorf("x: %w", ErrTimeout), true},
		{"wrapped ErrRateLimited", fmt.Errorf("x: %w", ErrRateLimited), true},
		{"task error default", NewTaskError("x", nil), false},
		{"task error retryable", NewTaskError("x", nil).WithRetryable(true), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("IsUserFacing(nil) = true, want false")
	}
	if IsUserFacing(errors.New("internal")) {
		t.Error("IsUserFacing(plain) = true, want false")
	}
	if !IsUserFacing(NewNotFoundError("milestone", "x")) {
		t.Error("IsUserFacing(NotFoundError) = false, want true")
	}
	if !IsUserFacing(NewStageError("x", nil)) {
		t.Error("IsUserFacing(StageError) = false, want true")
	}
}

func TestGetSeverity(t *testing.T) {
	if got := GetSeverity(nil); got != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v, want %v", got, SeverityDebug)
	}
	if got := GetSeverity(errors.New("boom")); got != SeverityError {
		t.Errorf("GetSeverity(plain) = %v, want %v", got, SeverityError)
	}

	err := NewMilestoneError("x", nil).WithSeverity(SeverityCritical)
	if got := GetSeverity(err); got != SeverityCritical {
		t.Errorf("GetSeverity(critical) = %v, want %v", got, SeverityCritical)
	}
}

// -----------------------------------------------------------------------------
// Wrap Tests
// -----------------------------------------------------------------------------

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	base := ErrStateCorrupted
	wrapped := Wrap(base, "failed to load checkpoint")

	want := "failed to load checkpoint: checkpoint state corrupted"
	if wrapped.Error() != want {
		t.Errorf("Wrap() = %q, want %q", wrapped.Error(), want)
	}
	if !Is(wrapped, base) {
		t.Error("wrapped error should match the base sentinel")
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	wrapped := Wrapf(ErrTaskFailed, "failed to run milestone %s", "2-api")
	want := "failed to run milestone 2-api: task failed"
	if wrapped.Error() != want {
		t.Errorf("Wrapf() = %q, want %q", wrapped.Error(), want)
	}
}
