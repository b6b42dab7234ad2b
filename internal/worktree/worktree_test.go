package worktree

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Iron-Ham/maestro/internal/errors"
	"github.com/Iron-Ham/maestro/internal/testutil"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	testutil.SkipIfNoGit(t)

	repo := testutil.SetupTestRepo(t)
	m, err := New(repo, ".worktrees", "milestone/", nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m, repo
}

func TestFindGitRoot(t *testing.T) {
	testutil.SkipIfNoGit(t)
	repo := testutil.SetupTestRepo(t)

	// From the root itself.
	root, err := FindGitRoot(repo)
	if err != nil {
		t.Fatalf("FindGitRoot failed: %v", err)
	}
	if root != repo {
		t.Errorf("root = %q, want %q", root, repo)
	}

	// From a nested directory.
	nested := filepath.Join(repo, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	root, err = FindGitRoot(nested)
	if err != nil {
		t.Fatalf("FindGitRoot from nested dir failed: %v", err)
	}
	if root != repo {
		t.Errorf("root = %q, want %q", root, repo)
	}

	// Outside any repository.
	if _, err := FindGitRoot(t.TempDir()); !errors.Is(err, errors.ErrNotGitRepository) {
		t.Errorf("error = %v, want ErrNotGitRepository", err)
	}
}

func TestNewRejectsNonRepo(t *testing.T) {
	testutil.SkipIfNoGit(t)

	if _, err := New(t.TempDir(), ".worktrees", "milestone/", nil); err == nil {
		t.Fatal("New accepted a non-repository directory")
	}
}

func TestCreate(t *testing.T) {
	m, repo := newTestManager(t)

	wt, err := m.Create("1a-core", "main")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if wt.MilestoneID != "1a-core" {
		t.Errorf("MilestoneID = %q", wt.MilestoneID)
	}
	if wt.Branch != "milestone/1a-core" {
		t.Errorf("Branch = %q, want milestone/1a-core", wt.Branch)
	}
	if wt.Path != filepath.Join(repo, ".worktrees", "1a-core") {
		t.Errorf("Path = %q", wt.Path)
	}
	if _, err := os.Stat(wt.Path); err != nil {
		t.Errorf("worktree directory missing: %v", err)
	}
	if got, err := m.Branch(wt.Path); err != nil || got != "milestone/1a-core" {
		t.Errorf("Branch(path) = %q, %v", got, err)
	}
	if !testutil.BranchExists(t, repo, "milestone/1a-core") {
		t.Error("milestone branch not created")
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.Create("1a-core", "main")
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	// Dirty the worktree so the retry has stale state to tear down.
	stale := filepath.Join(first.Path, "stale.txt")
	if err := os.WriteFile(stale, []byte("leftover"), 0644); err != nil {
		t.Fatal(err)
	}

	second, err := m.Create("1a-core", "main")
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if second.Path != first.Path {
		t.Errorf("retry moved the worktree: %q -> %q", first.Path, second.Path)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale file survived the teardown")
	}
}

func TestCreateEmptyBaseUsesCurrentBranch(t *testing.T) {
	m, _ := newTestManager(t)

	wt, err := m.Create("2-api", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if wt.Branch != "milestone/2-api" {
		t.Errorf("Branch = %q", wt.Branch)
	}
}

func TestMerge(t *testing.T) {
	m, repo := newTestManager(t)

	wt, err := m.Create("1a-core", "main")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	testutil.CommitFile(t, wt.Path, "feature.go", "package feature\n", "Add feature")

	before := testutil.GetCommitCount(t, repo)
	if err := m.Merge("1a-core", "Core types", "main"); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if got := testutil.GetCurrentBranch(t, repo); got != "main" {
		t.Errorf("current branch = %q, want main", got)
	}
	// One feature commit plus the --no-ff merge commit.
	if got := testutil.GetCommitCount(t, repo); got != before+2 {
		t.Errorf("commit count = %d, want %d", got, before+2)
	}
	if _, err := os.Stat(filepath.Join(repo, "feature.go")); err != nil {
		t.Errorf("merged file missing on main: %v", err)
	}
}

func TestMergeConflict(t *testing.T) {
	m, repo := newTestManager(t)

	wt, err := m.Create("1a-core", "main")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Divergent edits to the same file on both branches.
	testutil.CommitFile(t, wt.Path, "shared.txt", "milestone edit\n", "Milestone edit")
	testutil.CommitFile(t, repo, "shared.txt", "main edit\n", "Main edit")

	err = m.Merge("1a-core", "Core types", "main")
	if err == nil {
		t.Fatal("Merge succeeded despite conflicting edits")
	}
	if !errors.Is(err, errors.ErrMergeConflict) {
		t.Errorf("error = %v, want ErrMergeConflict", err)
	}

	// The aborted merge must leave the repository clean for the next one.
	if testutil.HasUncommittedChanges(t, repo) {
		t.Error("conflicted merge left the repository dirty")
	}
}

func TestDestroy(t *testing.T) {
	m, repo := newTestManager(t)

	wt, err := m.Create("1a-core", "main")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := m.Destroy(wt.Path); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if _, err := os.Stat(wt.Path); !os.IsNotExist(err) {
		t.Error("worktree directory still exists")
	}

	for _, path := range testutil.ListWorktrees(t, repo) {
		if path == wt.Path {
			t.Error("worktree still registered after destroy")
		}
	}
}

func TestDeleteBranch(t *testing.T) {
	m, repo := newTestManager(t)

	testutil.CreateBranch(t, repo, "milestone/old")
	if err := m.DeleteBranch("milestone/old"); err != nil {
		t.Fatalf("DeleteBranch failed: %v", err)
	}
	if testutil.BranchExists(t, repo, "milestone/old") {
		t.Error("branch still exists")
	}

	if err := m.DeleteBranch("milestone/never-existed"); err == nil {
		t.Error("DeleteBranch succeeded for missing branch")
	}
}

func TestHasUncommittedChanges(t *testing.T) {
	m, repo := newTestManager(t)

	dirty, err := m.HasUncommittedChanges(repo)
	if err != nil {
		t.Fatalf("HasUncommittedChanges failed: %v", err)
	}
	if dirty {
		t.Error("fresh repo reported dirty")
	}

	if err := os.WriteFile(filepath.Join(repo, "new.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	dirty, err = m.HasUncommittedChanges(repo)
	if err != nil {
		t.Fatalf("HasUncommittedChanges failed: %v", err)
	}
	if !dirty {
		t.Error("untracked file not reported")
	}
}

func TestCommitAll(t *testing.T) {
	m, repo := newTestManager(t)

	// Nothing to commit is success.
	if err := m.CommitAll(repo, "Empty commit attempt"); err != nil {
		t.Fatalf("CommitAll on clean tree failed: %v", err)
	}

	before := testutil.GetCommitCount(t, repo)
	if err := os.WriteFile(filepath.Join(repo, "work.txt"), []byte("done"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.CommitAll(repo, "Implement milestone 1a-core: Core types"); err != nil {
		t.Fatalf("CommitAll failed: %v", err)
	}
	if got := testutil.GetCommitCount(t, repo); got != before+1 {
		t.Errorf("commit count = %d, want %d", got, before+1)
	}
	if testutil.HasUncommittedChanges(t, repo) {
		t.Error("changes left uncommitted")
	}
}

func TestStageCommit(t *testing.T) {
	m, repo := newTestManager(t)

	if err := os.WriteFile(filepath.Join(repo, "stage.txt"), []byte("stage done"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.StageCommit("Complete Stage 1: 2 milestones integrated"); err != nil {
		t.Fatalf("StageCommit failed: %v", err)
	}
	if testutil.HasUncommittedChanges(t, repo) {
		t.Error("stage changes left uncommitted")
	}
}

func TestCurrentBranch(t *testing.T) {
	m, repo := newTestManager(t)

	if got := m.CurrentBranch(); got != "main" {
		t.Errorf("CurrentBranch = %q, want main", got)
	}

	testutil.CreateBranch(t, repo, "develop")
	testutil.CheckoutBranch(t, repo, "develop")
	if got := m.CurrentBranch(); got != "develop" {
		t.Errorf("CurrentBranch = %q, want develop", got)
	}
}

func TestBranchNameAndPathFor(t *testing.T) {
	m, repo := newTestManager(t)

	if got := m.BranchName("2-api"); got != "milestone/2-api" {
		t.Errorf("BranchName = %q", got)
	}
	want := filepath.Join(repo, ".worktrees", "2-api")
	if got := m.PathFor("2-api"); got != want {
		t.Errorf("PathFor = %q, want %q", got, want)
	}
}

func TestMergeMissingBranch(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.Merge("ghost", "Ghost milestone", "main")
	if err == nil {
		t.Fatal("Merge succeeded for nonexistent branch")
	}
	var gitErr *errors.GitError
	if !errors.As(err, &gitErr) {
		t.Errorf("error type = %T, want *errors.GitError", err)
	}
	if !strings.Contains(err.Error(), "milestone/ghost") {
		t.Errorf("error %q does not name the branch", err)
	}
}
