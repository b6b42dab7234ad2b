package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got %d errors: %v", len(errs), errs)
	}
}

// hasFieldError reports whether errs contains an error for the given field.
func hasFieldError(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestConfig_Validate_Paths(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty milestones_dir", func(c *Config) { c.MilestonesDir = "" }, "milestones_dir"},
		{"empty tasks_file", func(c *Config) { c.TasksFile = "" }, "tasks_file"},
		{"empty state_dir", func(c *Config) { c.StateDir = "" }, "state_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if !hasFieldError(cfg.Validate(), tt.field) {
				t.Errorf("expected error for %s", tt.field)
			}
		})
	}
}

func TestConfig_Validate_Execution(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		field    string
		hasError bool
	}{
		{"zero parallel milestones", func(c *Config) { c.Execution.MaxParallelMilestones = 0 }, "execution.max_parallel_milestones", true},
		{"negative workers", func(c *Config) { c.Execution.MaxWorkers = -1 }, "execution.max_workers", true},
		{"one worker is valid", func(c *Config) { c.Execution.MaxWorkers = 1 }, "execution.max_workers", false},
		{"zero task timeout", func(c *Config) { c.Execution.TaskTimeout = 0 }, "execution.task_timeout", true},
		{"negative review timeout", func(c *Config) { c.Execution.ReviewTimeout = -time.Minute }, "execution.review_timeout", true},
		{"zero retries", func(c *Config) { c.Execution.MaxRetries = 0 }, "execution.max_retries", true},
		{"one retry is valid", func(c *Config) { c.Execution.MaxRetries = 1 }, "execution.max_retries", false},
		{"negative retry delay", func(c *Config) { c.Execution.RetryDelay = -time.Second }, "execution.retry_delay", true},
		{"zero retry delay is valid", func(c *Config) { c.Execution.RetryDelay = 0 }, "execution.retry_delay", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			got := hasFieldError(cfg.Validate(), tt.field)
			if got != tt.hasError {
				t.Errorf("hasError=%v, want %v", got, tt.hasError)
			}
		})
	}
}

func TestConfig_Validate_RateLimit(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		field    string
		hasError bool
	}{
		{"zero rpm", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }, "rate_limit.requests_per_minute", true},
		{"negative burst", func(c *Config) { c.RateLimit.BurstLimit = -1 }, "rate_limit.burst_limit", true},
		{"one rpm is valid", func(c *Config) { c.RateLimit.RequestsPerMinute = 1 }, "rate_limit.requests_per_minute", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			got := hasFieldError(cfg.Validate(), tt.field)
			if got != tt.hasError {
				t.Errorf("hasError=%v, want %v", got, tt.hasError)
			}
		})
	}
}

func TestConfig_Validate_Git(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		field    string
		hasError bool
	}{
		{"empty branch prefix", func(c *Config) { c.Git.BranchPrefix = "" }, "git.branch_prefix", true},
		{"slash prefix is valid", func(c *Config) { c.Git.BranchPrefix = "milestone/" }, "git.branch_prefix", false},
		{"plain prefix is valid", func(c *Config) { c.Git.BranchPrefix = "feature-" }, "git.branch_prefix", false},
		{"leading digit invalid", func(c *Config) { c.Git.BranchPrefix = "1milestone/" }, "git.branch_prefix", true},
		{"spaces invalid", func(c *Config) { c.Git.BranchPrefix = "my branch/" }, "git.branch_prefix", true},
		{"too long invalid", func(c *Config) { c.Git.BranchPrefix = "a" + strings.Repeat("b", 50) }, "git.branch_prefix", true},
		{
			"empty worktree dir with worktrees enabled",
			func(c *Config) { c.Git.UseWorktrees = true; c.Git.WorktreeDir = "" },
			"git.worktree_dir", true,
		},
		{
			"empty worktree dir with worktrees disabled",
			func(c *Config) { c.Git.UseWorktrees = false; c.Git.WorktreeDir = "" },
			"git.worktree_dir", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			got := hasFieldError(cfg.Validate(), tt.field)
			if got != tt.hasError {
				t.Errorf("hasError=%v, want %v", got, tt.hasError)
			}
		})
	}
}

func TestConfig_Validate_Ratios(t *testing.T) {
	fields := []struct {
		field  string
		mutate func(*Config, float64)
	}{
		{"validation.task_success_ratio", func(c *Config, v float64) { c.Validation.TaskSuccessRatio = v }},
		{"validation.stage_success_ratio", func(c *Config, v float64) { c.Validation.StageSuccessRatio = v }},
		{"validation.merge_ratio", func(c *Config, v float64) { c.Validation.MergeRatio = v }},
	}

	values := []struct {
		name     string
		value    float64
		hasError bool
	}{
		{"zero invalid", 0, true},
		{"negative invalid", -0.5, true},
		{"above one invalid", 1.5, true},
		{"one is valid", 1.0, false},
		{"typical 0.8 valid", 0.8, false},
	}

	for _, f := range fields {
		for _, v := range values {
			t.Run(f.field+"/"+v.name, func(t *testing.T) {
				cfg := Default()
				f.mutate(cfg, v.value)
				got := hasFieldError(cfg.Validate(), f.field)
				if got != v.hasError {
					t.Errorf("hasError=%v, want %v", got, v.hasError)
				}
			})
		}
	}
}

func TestConfig_Validate_Review(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		field    string
		hasError bool
	}{
		{"zero threshold", func(c *Config) { c.Review.QualityThreshold = 0 }, "review.quality_threshold", true},
		{"above one threshold", func(c *Config) { c.Review.QualityThreshold = 1.1 }, "review.quality_threshold", true},
		{"zero iterations", func(c *Config) { c.Review.MaxIterations = 0 }, "review.max_iterations", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			got := hasFieldError(cfg.Validate(), tt.field)
			if got != tt.hasError {
				t.Errorf("hasError=%v, want %v", got, tt.hasError)
			}
		})
	}
}

func TestConfig_Validate_Agent(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		field    string
		hasError bool
	}{
		{"claude valid", func(c *Config) { c.Agent.Backend = "claude" }, "agent.backend", false},
		{"codex valid", func(c *Config) { c.Agent.Backend = "codex" }, "agent.backend", false},
		{"unknown backend", func(c *Config) { c.Agent.Backend = "gemini" }, "agent.backend", true},
		{"empty backend", func(c *Config) { c.Agent.Backend = "" }, "agent.backend", true},
		{"case sensitive", func(c *Config) { c.Agent.Backend = "Claude" }, "agent.backend", true},
		{"empty claude binary", func(c *Config) { c.Agent.ClaudeBinary = "" }, "agent.claude_binary", true},
		{"empty codex binary", func(c *Config) { c.Agent.CodexBinary = "" }, "agent.codex_binary", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			got := hasFieldError(cfg.Validate(), tt.field)
			if got != tt.hasError {
				t.Errorf("hasError=%v, want %v", got, tt.hasError)
			}
		})
	}
}

func TestConfig_Validate_Logging(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", ""} {
			cfg := Default()
			cfg.Logging.Level = level
			if hasFieldError(cfg.Validate(), "logging.level") {
				t.Errorf("level %q should be valid", level)
			}
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Level = "invalid"
		if !hasFieldError(cfg.Validate(), "logging.level") {
			t.Error("expected error for invalid log level")
		}
	})

	t.Run("case sensitive log level", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Level = "INFO"
		if !hasFieldError(cfg.Validate(), "logging.level") {
			t.Error("expected error for uppercase log level")
		}
	})

	t.Run("zero max size disables rotation and is valid", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.MaxSizeMB = 0
		if hasFieldError(cfg.Validate(), "logging.max_size_mb") {
			t.Error("zero max_size_mb should be valid")
		}
	})

	t.Run("negative max size invalid", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.MaxSizeMB = -1
		if !hasFieldError(cfg.Validate(), "logging.max_size_mb") {
			t.Error("expected error for negative max_size_mb")
		}
	})

	t.Run("negative max backups invalid", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.MaxBackups = -1
		if !hasFieldError(cfg.Validate(), "logging.max_backups") {
			t.Error("expected error for negative max_backups")
		}
	})
}

func TestConfig_Validate_ShutdownGrace(t *testing.T) {
	cfg := Default()
	cfg.ShutdownGrace = -time.Second
	if !hasFieldError(cfg.Validate(), "shutdown_grace") {
		t.Error("expected error for negative shutdown_grace")
	}
}

func TestValidLogLevels(t *testing.T) {
	levels := ValidLogLevels()
	if len(levels) != 4 {
		t.Fatalf("expected 4 levels, got %d", len(levels))
	}
	expected := []string{"debug", "info", "warn", "error"}
	for i, level := range expected {
		if levels[i] != level {
			t.Errorf("levels[%d] = %q, want %q", i, levels[i], level)
		}
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Execution.MaxWorkers = 0
	cfg.Agent.Backend = "unknown"
	cfg.Validation.TaskSuccessRatio = 2.0

	errs := cfg.Validate()
	if len(errs) < 3 {
		t.Errorf("expected at least 3 errors, got %d: %v", len(errs), errs)
	}
}
