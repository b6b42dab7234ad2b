package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "execution.max_workers")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// branchPrefixRegex validates branch prefix characters.
// Prefixes start with a letter and may contain alphanumerics, hyphen,
// underscore, and slash, so namespaced prefixes like "milestone/" work.
var branchPrefixRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9/_-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateExecution()...)
	errors = append(errors, c.validateRateLimit()...)
	errors = append(errors, c.validateGit()...)
	errors = append(errors, c.validateRatios()...)
	errors = append(errors, c.validateReview()...)
	errors = append(errors, c.validateAgent()...)
	errors = append(errors, c.validateLogging()...)

	if c.ShutdownGrace < 0 {
		errors = append(errors, ValidationError{
			Field:   "shutdown_grace",
			Value:   c.ShutdownGrace,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validatePaths validates the top-level path settings
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	if c.MilestonesDir == "" {
		errors = append(errors, ValidationError{
			Field:   "milestones_dir",
			Value:   c.MilestonesDir,
			Message: "cannot be empty",
		})
	}
	if c.TasksFile == "" {
		errors = append(errors, ValidationError{
			Field:   "tasks_file",
			Value:   c.TasksFile,
			Message: "cannot be empty",
		})
	}
	if c.StateDir == "" {
		errors = append(errors, ValidationError{
			Field:   "state_dir",
			Value:   c.StateDir,
			Message: "cannot be empty",
		})
	}

	return errors
}

// validateExecution validates the ExecutionConfig
func (c *Config) validateExecution() []ValidationError {
	var errors []ValidationError

	if c.Execution.MaxParallelMilestones < 1 {
		errors = append(errors, ValidationError{
			Field:   "execution.max_parallel_milestones",
			Value:   c.Execution.MaxParallelMilestones,
			Message: "must be at least 1",
		})
	}
	if c.Execution.MaxWorkers < 1 {
		errors = append(errors, ValidationError{
			Field:   "execution.max_workers",
			Value:   c.Execution.MaxWorkers,
			Message: "must be at least 1",
		})
	}
	if c.Execution.TaskTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "execution.task_timeout",
			Value:   c.Execution.TaskTimeout,
			Message: "must be positive",
		})
	}
	if c.Execution.ReviewTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "execution.review_timeout",
			Value:   c.Execution.ReviewTimeout,
			Message: "must be positive",
		})
	}
	if c.Execution.MaxRetries < 1 {
		errors = append(errors, ValidationError{
			Field:   "execution.max_retries",
			Value:   c.Execution.MaxRetries,
			Message: "must be at least 1",
		})
	}
	if c.Execution.RetryDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "execution.retry_delay",
			Value:   c.Execution.RetryDelay,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateRateLimit validates the RateLimitConfig
func (c *Config) validateRateLimit() []ValidationError {
	var errors []ValidationError

	if c.RateLimit.RequestsPerMinute < 1 {
		errors = append(errors, ValidationError{
			Field:   "rate_limit.requests_per_minute",
			Value:   c.RateLimit.RequestsPerMinute,
			Message: "must be at least 1",
		})
	}
	if c.RateLimit.BurstLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "rate_limit.burst_limit",
			Value:   c.RateLimit.BurstLimit,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateGit validates the GitConfig
func (c *Config) validateGit() []ValidationError {
	var errors []ValidationError

	if c.Git.BranchPrefix == "" {
		errors = append(errors, ValidationError{
			Field:   "git.branch_prefix",
			Value:   c.Git.BranchPrefix,
			Message: "cannot be empty",
		})
	} else if !branchPrefixRegex.MatchString(c.Git.BranchPrefix) {
		errors = append(errors, ValidationError{
			Field:   "git.branch_prefix",
			Value:   c.Git.BranchPrefix,
			Message: "must start with a letter and contain only alphanumeric characters, hyphens, underscores, or slashes",
		})
	}

	// Git branch names have length limits
	const maxBranchPrefixLength = 50
	if len(c.Git.BranchPrefix) > maxBranchPrefixLength {
		errors = append(errors, ValidationError{
			Field:   "git.branch_prefix",
			Value:   c.Git.BranchPrefix,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", maxBranchPrefixLength),
		})
	}

	if c.Git.UseWorktrees && c.Git.WorktreeDir == "" {
		errors = append(errors, ValidationError{
			Field:   "git.worktree_dir",
			Value:   c.Git.WorktreeDir,
			Message: "cannot be empty when use_worktrees is enabled",
		})
	}

	return errors
}

// validateRatios validates the ValidationConfig success-ratio gates
func (c *Config) validateRatios() []ValidationError {
	var errors []ValidationError

	ratios := []struct {
		field string
		value float64
	}{
		{"validation.task_success_ratio", c.Validation.TaskSuccessRatio},
		{"validation.stage_success_ratio", c.Validation.StageSuccessRatio},
		{"validation.merge_ratio", c.Validation.MergeRatio},
	}

	for _, r := range ratios {
		if r.value <= 0 || r.value > 1 {
			errors = append(errors, ValidationError{
				Field:   r.field,
				Value:   r.value,
				Message: "must be in (0, 1]",
			})
		}
	}

	return errors
}

// validateReview validates the ReviewConfig
func (c *Config) validateReview() []ValidationError {
	var errors []ValidationError

	if c.Review.QualityThreshold <= 0 || c.Review.QualityThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "review.quality_threshold",
			Value:   c.Review.QualityThreshold,
			Message: "must be in (0, 1]",
		})
	}
	if c.Review.MaxIterations < 1 {
		errors = append(errors, ValidationError{
			Field:   "review.max_iterations",
			Value:   c.Review.MaxIterations,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateAgent validates the AgentConfig
func (c *Config) validateAgent() []ValidationError {
	var errors []ValidationError

	if !IsValidBackend(c.Agent.Backend) {
		errors = append(errors, ValidationError{
			Field:   "agent.backend",
			Value:   c.Agent.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}
	if c.Agent.ClaudeBinary == "" {
		errors = append(errors, ValidationError{
			Field:   "agent.claude_binary",
			Value:   c.Agent.ClaudeBinary,
			Message: "cannot be empty",
		})
	}
	if c.Agent.CodexBinary == "" {
		errors = append(errors, ValidationError{
			Field:   "agent.codex_binary",
			Value:   c.Agent.CodexBinary,
			Message: "cannot be empty",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 disables rotation)",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
