package conflict

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// settleDelay gives fsnotify and the debounce window time to deliver.
const settleDelay = 200 * time.Millisecond

func newTestDetector(t *testing.T) *Detector {
	t.Helper()

	d, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func writeFile(t *testing.T, dir, relPath, content string) {
	t.Helper()

	path := filepath.Join(dir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestNewAndStop(t *testing.T) {
	d, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	d.Start()
	d.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	d, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	d.Start()
	d.Stop()
	d.Stop()
	d.Stop()
}

func TestAddMilestoneValidation(t *testing.T) {
	d := newTestDetector(t)

	t.Run("missing path", func(t *testing.T) {
		err := d.AddMilestone("1a-core", filepath.Join(t.TempDir(), "nope"))
		if err == nil {
			t.Fatal("AddMilestone() expected error for missing path")
		}
		if !strings.Contains(err.Error(), "does not exist") {
			t.Errorf("AddMilestone() error = %q, want mention of missing path", err)
		}
	})

	t.Run("path is a file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "plain.txt", "x")

		err := d.AddMilestone("1a-core", filepath.Join(dir, "plain.txt"))
		if err == nil {
			t.Fatal("AddMilestone() expected error for non-directory path")
		}
		if !strings.Contains(err.Error(), "not a directory") {
			t.Errorf("AddMilestone() error = %q, want mention of non-directory", err)
		}
	})

	t.Run("valid directory", func(t *testing.T) {
		if err := d.AddMilestone("1a-core", t.TempDir()); err != nil {
			t.Errorf("AddMilestone() error = %v", err)
		}
	})
}

func TestDetectsConflict(t *testing.T) {
	d := newTestDetector(t)

	dirA := t.TempDir()
	dirB := t.TempDir()
	if err := d.AddMilestone("1a-core", dirA); err != nil {
		t.Fatalf("AddMilestone(1a-core) error = %v", err)
	}
	if err := d.AddMilestone("1b-api", dirB); err != nil {
		t.Fatalf("AddMilestone(1b-api) error = %v", err)
	}
	d.Start()

	writeFile(t, dirA, "shared.go", "package shared")
	time.Sleep(settleDelay)
	writeFile(t, dirB, "shared.go", "package shared // v2")
	time.Sleep(settleDelay)

	conflicts := d.Conflicts()
	if len(conflicts) != 1 {
		t.Fatalf("Conflicts() returned %d conflicts, want 1: %+v", len(conflicts), conflicts)
	}

	got := conflicts[0]
	if got.RelativePath != "shared.go" {
		t.Errorf("RelativePath = %q, want %q", got.RelativePath, "shared.go")
	}
	want := []string{"1a-core", "1b-api"}
	if len(got.Milestones) != len(want) {
		t.Fatalf("Milestones = %v, want %v", got.Milestones, want)
	}
	for i := range want {
		if got.Milestones[i] != want[i] {
			t.Errorf("Milestones[%d] = %q, want %q", i, got.Milestones[i], want[i])
		}
	}
	if !d.HasConflicts() {
		t.Error("HasConflicts() = false, want true")
	}
}

func TestNoConflictOnDistinctPaths(t *testing.T) {
	d := newTestDetector(t)

	dirA := t.TempDir()
	dirB := t.TempDir()
	if err := d.AddMilestone("1a-core", dirA); err != nil {
		t.Fatalf("AddMilestone(1a-core) error = %v", err)
	}
	if err := d.AddMilestone("1b-api", dirB); err != nil {
		t.Fatalf("AddMilestone(1b-api) error = %v", err)
	}
	d.Start()

	writeFile(t, dirA, "core.go", "package core")
	writeFile(t, dirB, "api.go", "package api")
	time.Sleep(settleDelay)

	if d.HasConflicts() {
		t.Errorf("HasConflicts() = true, want false: %+v", d.Conflicts())
	}
}

func TestFilesModifiedBy(t *testing.T) {
	d := newTestDetector(t)

	dir := t.TempDir()
	if err := d.AddMilestone("1a-core", dir); err != nil {
		t.Fatalf("AddMilestone() error = %v", err)
	}
	d.Start()

	writeFile(t, dir, "b.go", "package b")
	writeFile(t, dir, "a.go", "package a")
	time.Sleep(settleDelay)

	files := d.FilesModifiedBy("1a-core")
	if len(files) != 2 {
		t.Fatalf("FilesModifiedBy() returned %d files, want 2: %v", len(files), files)
	}
	if files[0] != "a.go" || files[1] != "b.go" {
		t.Errorf("FilesModifiedBy() = %v, want sorted [a.go b.go]", files)
	}

	if got := d.FilesModifiedBy("unknown"); len(got) != 0 {
		t.Errorf("FilesModifiedBy(unknown) = %v, want empty", got)
	}
}

func TestRemoveMilestoneResolvesConflict(t *testing.T) {
	d := newTestDetector(t)

	dirA := t.TempDir()
	dirB := t.TempDir()
	if err := d.AddMilestone("1a-core", dirA); err != nil {
		t.Fatalf("AddMilestone(1a-core) error = %v", err)
	}
	if err := d.AddMilestone("1b-api", dirB); err != nil {
		t.Fatalf("AddMilestone(1b-api) error = %v", err)
	}
	d.Start()

	writeFile(t, dirA, "shared.go", "package shared")
	time.Sleep(settleDelay)
	writeFile(t, dirB, "shared.go", "package shared // v2")
	time.Sleep(settleDelay)

	if !d.HasConflicts() {
		t.Fatal("HasConflicts() = false before removal, want true")
	}

	d.RemoveMilestone("1b-api")

	if d.HasConflicts() {
		t.Errorf("HasConflicts() = true after removal, want false: %+v", d.Conflicts())
	}
	if got := d.FilesModifiedBy("1b-api"); len(got) != 0 {
		t.Errorf("FilesModifiedBy(1b-api) = %v after removal, want empty", got)
	}
}

func TestIgnoredPathsAreNotTracked(t *testing.T) {
	d := newTestDetector(t)

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := d.AddMilestone("1a-core", dir); err != nil {
		t.Fatalf("AddMilestone() error = %v", err)
	}
	d.Start()

	writeFile(t, dir, filepath.Join(".git", "config"), "[core]")
	writeFile(t, dir, ".DS_Store", "junk")
	time.Sleep(settleDelay)

	if got := d.FilesModifiedBy("1a-core"); len(got) != 0 {
		t.Errorf("FilesModifiedBy() = %v, want ignored paths untracked", got)
	}
}

func TestWatchesNewSubdirectories(t *testing.T) {
	d := newTestDetector(t)

	dirA := t.TempDir()
	dirB := t.TempDir()
	if err := d.AddMilestone("1a-core", dirA); err != nil {
		t.Fatalf("AddMilestone(1a-core) error = %v", err)
	}
	if err := d.AddMilestone("1b-api", dirB); err != nil {
		t.Fatalf("AddMilestone(1b-api) error = %v", err)
	}
	d.Start()

	if err := os.MkdirAll(filepath.Join(dirA, "pkg"), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dirB, "pkg"), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	time.Sleep(settleDelay)

	writeFile(t, dirA, filepath.Join("pkg", "shared.go"), "package pkg")
	time.Sleep(settleDelay)
	writeFile(t, dirB, filepath.Join("pkg", "shared.go"), "package pkg // v2")
	time.Sleep(settleDelay)

	conflicts := d.Conflicts()
	if len(conflicts) != 1 {
		t.Fatalf("Conflicts() returned %d conflicts, want 1: %+v", len(conflicts), conflicts)
	}
	if got, want := conflicts[0].RelativePath, filepath.Join("pkg", "shared.go"); got != want {
		t.Errorf("RelativePath = %q, want %q", got, want)
	}
}

func TestConflictCallback(t *testing.T) {
	d := newTestDetector(t)

	received := make(chan []FileConflict, 4)
	d.SetConflictCallback(func(conflicts []FileConflict) {
		received <- conflicts
	})

	dirA := t.TempDir()
	dirB := t.TempDir()
	if err := d.AddMilestone("1a-core", dirA); err != nil {
		t.Fatalf("AddMilestone(1a-core) error = %v", err)
	}
	if err := d.AddMilestone("1b-api", dirB); err != nil {
		t.Fatalf("AddMilestone(1b-api) error = %v", err)
	}
	d.Start()

	writeFile(t, dirA, "shared.go", "package shared")
	time.Sleep(settleDelay)
	writeFile(t, dirB, "shared.go", "package shared // v2")

	select {
	case conflicts := <-received:
		if len(conflicts) != 1 {
			t.Fatalf("callback got %d conflicts, want 1: %+v", len(conflicts), conflicts)
		}
		if conflicts[0].RelativePath != "shared.go" {
			t.Errorf("callback RelativePath = %q, want %q", conflicts[0].RelativePath, "shared.go")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("conflict callback never fired")
	}
}
