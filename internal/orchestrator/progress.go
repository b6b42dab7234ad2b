package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/maestro/internal/logging"
	"github.com/Iron-Ham/maestro/internal/milestone"
)

// progressHeader seeds a fresh progress file.
const progressHeader = "# Task Progress\n\n"

// ProgressWriter appends per-milestone entries to the human-readable
// progress file. Milestones within a stage finish concurrently, so appends
// are serialized.
type ProgressWriter struct {
	mu     sync.Mutex
	path   string
	logger *logging.Logger
}

// NewProgressWriter creates a writer for the given file path.
func NewProgressWriter(path string, logger *logging.Logger) *ProgressWriter {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &ProgressWriter{path: path, logger: logger}
}

// Path returns the progress file path.
func (w *ProgressWriter) Path() string {
	return w.path
}

// Append records a finished milestone. The file is created with a header on
// first use; entries accumulate across runs.
func (w *ProgressWriter) Append(m milestone.Milestone, results []milestone.TaskResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	successes := 0
	for _, r := range results {
		if r.Success() {
			successes++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s - %s\n", m.ID, m.Title)
	fmt.Fprintf(&sb, "**Completed:** %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "**Tasks:** %d/%d successful\n", successes, len(m.Tasks))
	if successes == len(m.Tasks) {
		sb.WriteString("**Status:** ✅ COMPLETED\n\n")
	} else {
		sb.WriteString("**Status:** ⚠️ PARTIALLY COMPLETED\n\n")
	}

	if err := w.ensureHeader(); err != nil {
		return err
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open progress file: %w", err)
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append progress entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close progress file: %w", err)
	}

	w.logger.Debug("progress file updated", "milestone", m.ID, "path", w.path)
	return nil
}

func (w *ProgressWriter) ensureHeader() error {
	if _, err := os.Stat(w.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat progress file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to create progress directory: %w", err)
	}
	if err := os.WriteFile(w.path, []byte(progressHeader), 0644); err != nil {
		return fmt.Errorf("failed to seed progress file: %w", err)
	}
	return nil
}
