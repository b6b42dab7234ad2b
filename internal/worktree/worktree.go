// Package worktree manages the git worktree lifecycle for milestone
// execution. Each in-flight milestone gets an isolated worktree on its own
// branch; successful milestones are merged back into the base branch with
// ordinary merge commits.
//
// Git runs as external commands with captured output. A failed command is an
// error value, never a panic, so a broken worktree degrades one milestone
// instead of the run.
package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/maestro/internal/errors"
	"github.com/Iron-Ham/maestro/internal/logging"
)

// Worktree describes one active milestone worktree.
type Worktree struct {
	// MilestoneID is the owning milestone.
	MilestoneID string `json:"milestone_id"`

	// Path is the worktree directory.
	Path string `json:"path"`

	// Branch is the milestone branch checked out in the worktree.
	Branch string `json:"branch"`

	// CreatedAt is when the worktree was created.
	CreatedAt time.Time `json:"created_at"`
}

// Manager creates, merges, and destroys milestone worktrees.
//
// Branch-level operations (create, merge, branch deletion, stage commits)
// mutate shared repository refs, so they serialize through one mutex.
// Worktree-local queries run unserialized.
type Manager struct {
	repoDir      string
	baseDir      string
	branchPrefix string
	logger       *logging.Logger

	// mu serializes operations that touch shared repository state.
	mu sync.Mutex
}

// FindGitRoot finds the root of the git repository by traversing up from
// startDir. It returns the directory containing .git, which can be a
// directory for a normal checkout or a file for a worktree.
func FindGitRoot(startDir string) (string, error) {
	dir := startDir
	for {
		gitPath := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitPath); err == nil {
			if info.IsDir() || info.Mode().IsRegular() {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.ErrNotGitRepository
		}
		dir = parent
	}
}

// New creates a Manager rooted at the repository containing repoDir.
// baseDir is where worktrees are created; branchPrefix prefixes every
// milestone branch name.
func New(repoDir, baseDir, branchPrefix string, logger *logging.Logger) (*Manager, error) {
	gitRoot, err := FindGitRoot(repoDir)
	if err != nil {
		return nil, errors.NewGitError("not a git repository", err).WithRepository(repoDir)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	if !filepath.IsAbs(baseDir) {
		baseDir = filepath.Join(gitRoot, baseDir)
	}

	return &Manager{
		repoDir:      gitRoot,
		baseDir:      baseDir,
		branchPrefix: branchPrefix,
		logger:       logger,
	}, nil
}

// RepoDir returns the repository root the manager operates on.
func (m *Manager) RepoDir() string {
	return m.repoDir
}

// BranchName returns the branch used for a milestone.
func (m *Manager) BranchName(milestoneID string) string {
	return m.branchPrefix + milestoneID
}

// PathFor returns the worktree directory used for a milestone.
func (m *Manager) PathFor(milestoneID string) string {
	return filepath.Join(m.baseDir, milestoneID)
}

// Create makes a fresh worktree and branch for a milestone, starting from
// baseBranch (empty means the current branch). Any leftover worktree or
// branch with the same name is torn down first, so retried milestones always
// start clean.
func (m *Manager) Create(milestoneID, baseBranch string) (*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.PathFor(milestoneID)
	branch := m.BranchName(milestoneID)
	if baseBranch == "" {
		baseBranch = m.currentBranchLocked()
	}

	// Teardown first: a retry after a crashed run may find both the
	// directory and the branch still present.
	if _, err := os.Stat(path); err == nil {
		m.logger.Debug("removing stale worktree", "milestone", milestoneID, "path", path)
		_ = m.removeLocked(path)
	}
	_ = m.deleteBranchLocked(branch)

	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create worktree base directory: %w", err)
	}

	cmd := exec.Command("git", "worktree", "add", "-b", branch, path, baseBranch)
	cmd.Dir = m.repoDir
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, errors.NewGitError("failed to create worktree", err).
			WithBranch(branch).
			WithWorktree(path).
			WithGitOutput(strings.TrimSpace(string(output)))
	}

	m.logger.Debug("worktree created",
		"milestone", milestoneID,
		"path", path,
		"branch", branch,
		"base", baseBranch)

	return &Worktree{
		MilestoneID: milestoneID,
		Path:        path,
		Branch:      branch,
		CreatedAt:   time.Now(),
	}, nil
}

// Merge merges a milestone branch into baseBranch with a no-fast-forward
// merge commit. Merges are serialized: concurrent callers queue on the
// manager's mutex.
func (m *Manager) Merge(milestoneID, title, baseBranch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	branch := m.BranchName(milestoneID)
	if baseBranch == "" {
		baseBranch = m.currentBranchLocked()
	}

	checkout := exec.Command("git", "checkout", baseBranch)
	checkout.Dir = m.repoDir
	if output, err := checkout.CombinedOutput(); err != nil {
		return errors.NewGitError("failed to checkout base branch", err).
			WithBranch(baseBranch).
			WithGitOutput(strings.TrimSpace(string(output)))
	}

	message := fmt.Sprintf("Merge milestone %s: %s", milestoneID, title)
	merge := exec.Command("git", "merge", "--no-ff", branch, "-m", message)
	merge.Dir = m.repoDir
	if output, err := merge.CombinedOutput(); err != nil {
		text := strings.TrimSpace(string(output))
		cause := err
		if strings.Contains(text, "CONFLICT") {
			cause = errors.ErrMergeConflict
			// Leave the repo usable for the next merge attempt.
			abort := exec.Command("git", "merge", "--abort")
			abort.Dir = m.repoDir
			_ = abort.Run()
		}
		return errors.NewGitError("failed to merge milestone branch", cause).
			WithBranch(branch).
			WithGitOutput(text)
	}

	m.logger.Info("milestone branch merged", "milestone", milestoneID, "base", baseBranch)
	return nil
}

// Destroy removes a worktree directory and its registration. Removal is
// best-effort: when git refuses, the directory is deleted directly and the
// registration pruned, and the git error is returned for logging.
func (m *Manager) Destroy(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(path)
}

func (m *Manager) removeLocked(path string) error {
	cmd := exec.Command("git", "worktree", "remove", "--force", path)
	cmd.Dir = m.repoDir

	if output, err := cmd.CombinedOutput(); err != nil {
		// Clean up manually and prune the stale registration.
		_ = os.RemoveAll(path)

		prune := exec.Command("git", "worktree", "prune")
		prune.Dir = m.repoDir
		_ = prune.Run()

		return fmt.Errorf("failed to remove worktree cleanly: %w\n%s", err, string(output))
	}

	return nil
}

// DeleteBranch force-deletes a branch.
func (m *Manager) DeleteBranch(branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteBranchLocked(branch)
}

func (m *Manager) deleteBranchLocked(branch string) error {
	cmd := exec.Command("git", "branch", "-D", branch)
	cmd.Dir = m.repoDir

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to delete branch: %w\n%s", err, string(output))
	}

	return nil
}

// StageCommit commits everything outstanding on the base branch after a
// stage's merges. "nothing to commit" counts as success.
func (m *Manager) StageCommit(message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return commitAll(m.repoDir, message)
}

// CommitAll stages and commits all changes inside a worktree directory.
// "nothing to commit" counts as success.
func (m *Manager) CommitAll(dir, message string) error {
	return commitAll(dir, message)
}

func commitAll(dir, message string) error {
	addCmd := exec.Command("git", "add", "-A")
	addCmd.Dir = dir
	if output, err := addCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to add changes: %w\n%s", err, string(output))
	}

	commitCmd := exec.Command("git", "commit", "-m", message)
	commitCmd.Dir = dir
	if output, err := commitCmd.CombinedOutput(); err != nil {
		if strings.Contains(string(output), "nothing to commit") {
			return nil
		}
		return fmt.Errorf("failed to commit: %w\n%s", err, string(output))
	}

	return nil
}

// HasUncommittedChanges reports whether a worktree directory has staged or
// unstaged changes.
func (m *Manager) HasUncommittedChanges(dir string) (bool, error) {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = dir

	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("failed to check status: %w", err)
	}

	return len(strings.TrimSpace(string(output))) > 0, nil
}

// Branch returns the branch checked out in a worktree directory.
func (m *Manager) Branch(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get branch: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// CurrentBranch returns the repository's checked-out branch. A detached HEAD
// or failing git falls back to the default branch name.
func (m *Manager) CurrentBranch() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentBranchLocked()
}

func (m *Manager) currentBranchLocked() string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = m.repoDir

	output, err := cmd.Output()
	if err != nil {
		return m.findMainBranch()
	}

	branch := strings.TrimSpace(string(output))
	if branch == "" || branch == "HEAD" {
		return m.findMainBranch()
	}
	return branch
}

// findMainBranch returns the name of the main branch (main or master).
func (m *Manager) findMainBranch() string {
	cmd := exec.Command("git", "rev-parse", "--verify", "main")
	cmd.Dir = m.repoDir
	if err := cmd.Run(); err == nil {
		return "main"
	}

	return "master"
}
