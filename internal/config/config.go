package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Maestro configuration
type Config struct {
	// MilestonesDir is the directory scanned for milestone plan files.
	// Markdown (*.md, README excluded) and YAML (*.yaml, *.yml) are loaded.
	MilestonesDir string `mapstructure:"milestones_dir"`
	// TasksFile is the progress summary file maintained at the repo root
	TasksFile string `mapstructure:"tasks_file"`
	// StateDir is where Maestro keeps checkpoints, logs, and reports
	StateDir string `mapstructure:"state_dir"`

	Execution  ExecutionConfig  `mapstructure:"execution"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Git        GitConfig        `mapstructure:"git"`
	Validation ValidationConfig `mapstructure:"validation"`
	Review     ReviewConfig     `mapstructure:"review"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Logging    LoggingConfig    `mapstructure:"logging"`

	// ShutdownGrace is how long a cancelled run may spend cleaning up
	// before the process force-exits
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// ExecutionConfig controls task and milestone execution
type ExecutionConfig struct {
	// MaxParallelMilestones is the number of milestones executed concurrently
	// within a stage
	MaxParallelMilestones int `mapstructure:"max_parallel_milestones"`
	// MaxWorkers caps the per-milestone task pool
	MaxWorkers int `mapstructure:"max_workers"`
	// TaskTimeout bounds a single agent invocation for a task
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// ReviewTimeout bounds a single agent invocation for a review
	ReviewTimeout time.Duration `mapstructure:"review_timeout"`
	// MaxRetries is the number of retries after the first attempt, so a
	// task runs at most MaxRetries+1 times
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay between attempts; it doubles per attempt
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// RateLimitConfig controls the sliding-window limiter in front of the agent
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained request budget
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	// BurstLimit is the number of requests allowed in a 1-second burst
	BurstLimit int `mapstructure:"burst_limit"`
}

// GitConfig controls worktree isolation and branch naming
type GitConfig struct {
	// UseWorktrees isolates each milestone in its own git worktree.
	// When false, tasks run directly in the repository checkout.
	UseWorktrees bool `mapstructure:"use_worktrees"`
	// BaseBranch is the branch worktrees start from and merge back into.
	// Empty means the current branch, falling back to "main".
	BaseBranch string `mapstructure:"base_branch"`
	// WorktreeDir is where worktree checkouts are created.
	// Relative paths resolve against the repository root; ~ expands.
	WorktreeDir string `mapstructure:"worktree_dir"`
	// BranchPrefix is prepended to milestone IDs to form branch names
	// (default: "milestone/")
	BranchPrefix string `mapstructure:"branch_prefix"`
}

// ValidationConfig holds the success-ratio gates
type ValidationConfig struct {
	// TaskSuccessRatio is the fraction of tasks that must complete for a
	// milestone to pass (0, 1]
	TaskSuccessRatio float64 `mapstructure:"task_success_ratio"`
	// StageSuccessRatio is the fraction of milestones that must pass for a
	// stage to advance (0, 1]
	StageSuccessRatio float64 `mapstructure:"stage_success_ratio"`
	// MergeRatio is the fraction of a stage's successful milestones whose
	// branches must merge cleanly for the stage to count as integrated (0, 1]
	MergeRatio float64 `mapstructure:"merge_ratio"`
}

// ReviewConfig controls the post-milestone review loop
type ReviewConfig struct {
	// Enabled turns code review on or off
	Enabled bool `mapstructure:"enabled"`
	// AutoFix dispatches a fix task when a review finds issues
	AutoFix bool `mapstructure:"auto_fix"`
	// QualityThreshold is the minimum review score (0, 1]
	QualityThreshold float64 `mapstructure:"quality_threshold"`
	// MaxIterations caps review/fix cycles per target
	MaxIterations int `mapstructure:"max_iterations"`
}

// AgentConfig selects and configures the code-generation backend
type AgentConfig struct {
	// Backend is the agent CLI to drive: "claude" or "codex"
	Backend string `mapstructure:"backend"`
	// ClaudeBinary is the claude executable name or path
	ClaudeBinary string `mapstructure:"claude_binary"`
	// CodexBinary is the codex executable name or path
	CodexBinary string `mapstructure:"codex_binary"`
	// SkipPermissions passes the backend's non-interactive permissions flag
	SkipPermissions bool `mapstructure:"skip_permissions"`
}

// LoggingConfig controls the run log
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the log directory. Empty means <state_dir>/logs.
	Dir string `mapstructure:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files
	Compress bool `mapstructure:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		MilestonesDir: "milestones",
		TasksFile:     "TASKS.md",
		StateDir:      ".maestro",
		Execution: ExecutionConfig{
			MaxParallelMilestones: 2,
			MaxWorkers:            4,
			TaskTimeout:           30 * time.Minute,
			ReviewTimeout:         10 * time.Minute,
			MaxRetries:            3,
			RetryDelay:            30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 50,
			BurstLimit:        10,
		},
		Git: GitConfig{
			UseWorktrees: true,
			BaseBranch:   "", // Empty means current branch, fallback "main"
			WorktreeDir:  ".worktrees",
			BranchPrefix: "milestone/",
		},
		Validation: ValidationConfig{
			TaskSuccessRatio:  0.8,
			StageSuccessRatio: 0.8,
			MergeRatio:        0.8,
		},
		Review: ReviewConfig{
			Enabled:          true,
			AutoFix:          true,
			QualityThreshold: 0.8,
			MaxIterations:    3,
		},
		Agent: AgentConfig{
			Backend:         "claude",
			ClaudeBinary:    "claude",
			CodexBinary:     "codex",
			SkipPermissions: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "", // Empty means <state_dir>/logs
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		ShutdownGrace: 2 * time.Second,
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("milestones_dir", defaults.MilestonesDir)
	viper.SetDefault("tasks_file", defaults.TasksFile)
	viper.SetDefault("state_dir", defaults.StateDir)

	// Execution defaults
	viper.SetDefault("execution.max_parallel_milestones", defaults.Execution.MaxParallelMilestones)
	viper.SetDefault("execution.max_workers", defaults.Execution.MaxWorkers)
	viper.SetDefault("execution.task_timeout", defaults.Execution.TaskTimeout)
	viper.SetDefault("execution.review_timeout", defaults.Execution.ReviewTimeout)
	viper.SetDefault("execution.max_retries", defaults.Execution.MaxRetries)
	viper.SetDefault("execution.retry_delay", defaults.Execution.RetryDelay)

	// Rate limit defaults
	viper.SetDefault("rate_limit.requests_per_minute", defaults.RateLimit.RequestsPerMinute)
	viper.SetDefault("rate_limit.burst_limit", defaults.RateLimit.BurstLimit)

	// Git defaults
	viper.SetDefault("git.use_worktrees", defaults.Git.UseWorktrees)
	viper.SetDefault("git.base_branch", defaults.Git.BaseBranch)
	viper.SetDefault("git.worktree_dir", defaults.Git.WorktreeDir)
	viper.SetDefault("git.branch_prefix", defaults.Git.BranchPrefix)

	// Validation defaults
	viper.SetDefault("validation.task_success_ratio", defaults.Validation.TaskSuccessRatio)
	viper.SetDefault("validation.stage_success_ratio", defaults.Validation.StageSuccessRatio)
	viper.SetDefault("validation.merge_ratio", defaults.Validation.MergeRatio)

	// Review defaults
	viper.SetDefault("review.enabled", defaults.Review.Enabled)
	viper.SetDefault("review.auto_fix", defaults.Review.AutoFix)
	viper.SetDefault("review.quality_threshold", defaults.Review.QualityThreshold)
	viper.SetDefault("review.max_iterations", defaults.Review.MaxIterations)

	// Agent defaults
	viper.SetDefault("agent.backend", defaults.Agent.Backend)
	viper.SetDefault("agent.claude_binary", defaults.Agent.ClaudeBinary)
	viper.SetDefault("agent.codex_binary", defaults.Agent.CodexBinary)
	viper.SetDefault("agent.skip_permissions", defaults.Agent.SkipPermissions)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	viper.SetDefault("shutdown_grace", defaults.ShutdownGrace)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ResolveStateDir returns the state directory resolved against the repository root.
func (c *Config) ResolveStateDir(repoRoot string) string {
	return resolvePath(c.StateDir, repoRoot)
}

// ResolveTasksFile returns the progress file path resolved against the
// repository root.
func (c *Config) ResolveTasksFile(repoRoot string) string {
	return resolvePath(c.TasksFile, repoRoot)
}

// ResolveMilestonesDir returns the milestones directory resolved against the
// repository root.
func (c *Config) ResolveMilestonesDir(repoRoot string) string {
	return resolvePath(c.MilestonesDir, repoRoot)
}

// ResolveLogDir returns the log directory resolved against the repository root.
// An empty logging.dir defaults to <state_dir>/logs.
func (c *Config) ResolveLogDir(repoRoot string) string {
	if c.Logging.Dir == "" {
		return filepath.Join(c.ResolveStateDir(repoRoot), "logs")
	}
	return resolvePath(c.Logging.Dir, repoRoot)
}

// ResolveWorktreeDir returns the worktree directory resolved against the
// repository root.
func (g *GitConfig) ResolveWorktreeDir(repoRoot string) string {
	if g.WorktreeDir == "" {
		return filepath.Join(repoRoot, ".worktrees")
	}
	return resolvePath(g.WorktreeDir, repoRoot)
}

// BranchName returns the branch name for a milestone ID.
func (g *GitConfig) BranchName(milestoneID string) string {
	return g.BranchPrefix + milestoneID
}

// resolvePath expands ~ and resolves relative paths against baseDir.
func resolvePath(path, baseDir string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	return path
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "maestro")
	}
	// Fall back to ~/.config/maestro
	home, err := os.UserHomeDir()
	if err != nil {
		return ".maestro"
	}
	return filepath.Join(home, ".config", "maestro")
}

// ConfigFile returns the path to the user-level config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidBackends returns the list of valid agent backend values
func ValidBackends() []string {
	return []string{"claude", "codex"}
}

// IsValidBackend checks if the given backend is valid
func IsValidBackend(backend string) bool {
	for _, valid := range ValidBackends() {
		if backend == valid {
			return true
		}
	}
	return false
}
