package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/maestro/internal/milestone"
)

func allSuccessful(m milestone.Milestone) []milestone.TaskResult {
	results := make([]milestone.TaskResult, len(m.Tasks))
	for i, task := range m.Tasks {
		results[i] = milestone.TaskResult{TaskID: task.ID, Status: milestone.TaskCompleted}
	}
	return results
}

func TestProgressWriterSeedsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes", "TASKS.md")
	w := NewProgressWriter(path, nil)

	m := testMilestone("1a-core", 1, 2)
	if err := w.Append(m, allSuccessful(m)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("progress file not created: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Task Progress\n\n") {
		t.Errorf("file = %q, want header first", string(data))
	}
}

func TestProgressWriterEntryFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TASKS.md")
	w := NewProgressWriter(path, nil)

	m := testMilestone("1a-core", 1, 2)
	before := time.Now()
	if err := w.Append(m, allSuccessful(m)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	if !strings.Contains(content, "## 1a-core - Build 1a-core\n") {
		t.Errorf("missing entry heading: %q", content)
	}
	if !strings.Contains(content, "**Tasks:** 2/2 successful\n") {
		t.Errorf("missing task count: %q", content)
	}
	if !strings.Contains(content, "**Status:** ✅ COMPLETED\n") {
		t.Errorf("missing completed status: %q", content)
	}

	// The timestamp parses back and falls inside the call window.
	i := strings.Index(content, "**Completed:** ")
	if i < 0 {
		t.Fatalf("missing timestamp line: %q", content)
	}
	line := content[i+len("**Completed:** "):]
	line = line[:strings.IndexByte(line, '\n')]
	stamp, err := time.ParseInLocation("2006-01-02 15:04:05", line, time.Local)
	if err != nil {
		t.Fatalf("timestamp %q does not parse: %v", line, err)
	}
	if stamp.Before(before.Truncate(time.Second)) || stamp.After(time.Now().Add(time.Second)) {
		t.Errorf("timestamp %v outside call window", stamp)
	}
}

func TestProgressWriterPartialStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TASKS.md")
	w := NewProgressWriter(path, nil)

	m := testMilestone("1a-core", 1, 3)
	results := allSuccessful(m)
	results[2] = milestone.TaskResult{TaskID: m.Tasks[2].ID, Status: milestone.TaskFailed, Error: "did not converge"}

	if err := w.Append(m, results); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, "**Tasks:** 2/3 successful\n") {
		t.Errorf("missing partial count: %q", content)
	}
	if !strings.Contains(content, "**Status:** ⚠️ PARTIALLY COMPLETED\n") {
		t.Errorf("missing partial status: %q", content)
	}
	if strings.Contains(content, "✅ COMPLETED") {
		t.Errorf("partial milestone marked completed: %q", content)
	}
}

func TestProgressWriterAccumulatesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TASKS.md")
	w := NewProgressWriter(path, nil)

	first := testMilestone("1a-core", 1, 1)
	second := testMilestone("1b-api", 1, 1)
	if err := w.Append(first, allSuccessful(first)); err != nil {
		t.Fatal(err)
	}
	if err := w.Append(second, allSuccessful(second)); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	if got := strings.Count(content, "# Task Progress"); got != 1 {
		t.Errorf("header written %d times, want 1", got)
	}
	firstIdx := strings.Index(content, "## 1a-core")
	secondIdx := strings.Index(content, "## 1b-api")
	if firstIdx < 0 || secondIdx < 0 {
		t.Fatalf("missing entries: %q", content)
	}
	if firstIdx > secondIdx {
		t.Error("entries out of append order")
	}
}

func TestProgressWriterKeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TASKS.md")
	existing := "# Task Progress\n\n## 0a-setup - Bootstrap\n**Status:** ✅ COMPLETED\n\n"
	if err := os.WriteFile(path, []byte(existing), 0644); err != nil {
		t.Fatal(err)
	}

	w := NewProgressWriter(path, nil)
	m := testMilestone("1a-core", 1, 1)
	if err := w.Append(m, allSuccessful(m)); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.HasPrefix(content, existing) {
		t.Errorf("existing content rewritten: %q", content)
	}
	if !strings.Contains(content, "## 1a-core") {
		t.Errorf("new entry not appended: %q", content)
	}
}
