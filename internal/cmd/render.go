package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/maestro/internal/checkpoint"
	"github.com/Iron-Ham/maestro/internal/conflict"
	"github.com/Iron-Ham/maestro/internal/milestone"
	"github.com/Iron-Ham/maestro/internal/orchestrator"
	"github.com/Iron-Ham/maestro/internal/util"
)

var (
	// Colors match on both black and dark terminal surfaces.
	accentColor  = lipgloss.Color("#A78BFA") // purple
	successColor = lipgloss.Color("#10B981") // green
	warnColor    = lipgloss.Color("#F59E0B") // amber
	errorColor   = lipgloss.Color("#F87171") // red
	mutedColor   = lipgloss.Color("#9CA3AF") // gray

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warnStyle    = lipgloss.NewStyle().Foreground(warnColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
)

// renderPlan draws the staged execution plan as a tree. Stages below the
// resume cursor are marked as already completed.
func renderPlan(stages []milestone.Stage, cursor int) string {
	var sb strings.Builder

	totalMilestones := 0
	totalTasks := 0
	for _, stage := range stages {
		header := fmt.Sprintf("Stage %d (%d milestones)", stage.Number, len(stage.Milestones))
		if stage.Number < cursor {
			header += mutedStyle.Render("  [completed]")
		}
		sb.WriteString(titleStyle.Render(header))
		sb.WriteByte('\n')

		for i, m := range stage.Milestones {
			totalMilestones++
			totalTasks += len(m.Tasks)

			connector := "├─"
			if i == len(stage.Milestones)-1 {
				connector = "└─"
			}
			line := fmt.Sprintf("%s %s — %s (%d tasks, ~%s)",
				connector, m.ID, m.Title, len(m.Tasks), m.EstimatedTotal())
			if len(m.Dependencies) > 0 {
				line += mutedStyle.Render(fmt.Sprintf("  needs %s", strings.Join(m.Dependencies, ", ")))
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}

	sb.WriteString(mutedStyle.Render(fmt.Sprintf("%d stages, %d milestones, %d tasks",
		len(stages), totalMilestones, totalTasks)))
	sb.WriteByte('\n')
	return sb.String()
}

// renderValidation lists every validation message grouped by severity and
// summarizes the counts.
func renderValidation(result *milestone.ValidationResult) string {
	var sb strings.Builder

	for _, msg := range result.Messages {
		mark := warnStyle.Render("⚠")
		if msg.IsError() {
			mark = errorStyle.Render("✗")
		}

		where := msg.MilestoneID
		if msg.TaskID != "" {
			where = msg.TaskID
		}
		if where != "" {
			fmt.Fprintf(&sb, "%s %s: %s\n", mark, where, msg.Message)
		} else {
			fmt.Fprintf(&sb, "%s %s\n", mark, msg.Message)
		}
		if msg.Suggestion != "" {
			sb.WriteString(mutedStyle.Render("    " + msg.Suggestion))
			sb.WriteByte('\n')
		}
	}

	switch {
	case !result.IsValid:
		sb.WriteString(errorStyle.Render(fmt.Sprintf("invalid plan: %d errors, %d warnings",
			result.ErrorCount, result.WarningCount)))
	case result.WarningCount > 0:
		sb.WriteString(warnStyle.Render(fmt.Sprintf("plan is valid with %d warnings", result.WarningCount)))
	default:
		sb.WriteString(successStyle.Render("plan is valid"))
	}
	sb.WriteByte('\n')
	return sb.String()
}

// renderStatus summarizes a persisted checkpoint.
func renderStatus(state *checkpoint.State) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Run " + state.RunID))
	sb.WriteByte('\n')
	if !state.StartedAt.IsZero() {
		fmt.Fprintf(&sb, "Started:         %s\n", state.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if !state.LastCheckpoint.IsZero() {
		fmt.Fprintf(&sb, "Last checkpoint: %s\n", state.LastCheckpoint.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(&sb, "Stage cursor:    %d\n", state.CurrentStage)
	fmt.Fprintf(&sb, "Tasks:           %s completed, %s failed, %s skipped\n",
		successStyle.Render(fmt.Sprintf("%d", len(state.CompletedTasks))),
		errorStyle.Render(fmt.Sprintf("%d", len(state.FailedTasks))),
		mutedStyle.Render(fmt.Sprintf("%d", len(state.SkippedTasks))))

	if len(state.WorktreePaths) > 0 {
		fmt.Fprintf(&sb, "Worktrees:       %d active\n", len(state.WorktreePaths))
		ids := make([]string, 0, len(state.WorktreePaths))
		for id := range state.WorktreePaths {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(&sb, "  %s → %s\n", id, state.WorktreePaths[id])
		}
	}

	if len(state.StageResults) > 0 {
		sb.WriteString("Stages:\n")
		numbers := make([]int, 0, len(state.StageResults))
		for n := range state.StageResults {
			numbers = append(numbers, n)
		}
		sort.Ints(numbers)
		for _, n := range numbers {
			r := state.StageResults[n]
			mark := successStyle.Render("✓")
			if !r.Success {
				mark = errorStyle.Render("✗")
			}
			fmt.Fprintf(&sb, "  %s Stage %d: %d/%d milestones in %s\n",
				mark, r.Number, r.SuccessfulMilestones, r.TotalMilestones,
				r.Duration.Round(time.Second))
		}
	}

	return sb.String()
}

// renderRunSummary is printed after a run finishes, whatever the outcome.
func renderRunSummary(state *checkpoint.State, reportPath string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tasks: %s completed, %s failed, %s skipped\n",
		successStyle.Render(fmt.Sprintf("%d", len(state.CompletedTasks))),
		errorStyle.Render(fmt.Sprintf("%d", len(state.FailedTasks))),
		mutedStyle.Render(fmt.Sprintf("%d", len(state.SkippedTasks))))
	sb.WriteString(mutedStyle.Render("Report: " + reportPath))
	sb.WriteByte('\n')
	return sb.String()
}

// runPrinter streams execution progress to the terminal. Events arrive from
// concurrent milestones, so writes serialize through a mutex.
type runPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

var _ orchestrator.EventHandler = (*runPrinter)(nil)

func newRunPrinter(w io.Writer, verbose bool) *runPrinter {
	return &runPrinter{w: w, verbose: verbose}
}

func (p *runPrinter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *runPrinter) TaskStarted(milestoneID, taskID, title string) {
	if !p.verbose {
		return
	}
	p.printf("%s\n", mutedStyle.Render(fmt.Sprintf("  · %s started — %s", taskID, title)))
}

func (p *runPrinter) TaskCompleted(milestoneID, taskID string, attempts int) {
	if attempts == 0 {
		// Already completed in a previous run; only worth noting verbosely.
		if p.verbose {
			p.printf("%s\n", mutedStyle.Render(fmt.Sprintf("  · %s already done", taskID)))
		}
		return
	}
	suffix := ""
	if attempts > 1 {
		suffix = fmt.Sprintf(" (attempt %d)", attempts)
	}
	p.printf("  %s %s%s\n", successStyle.Render("✓"), taskID, mutedStyle.Render(suffix))
}

func (p *runPrinter) TaskFailed(milestoneID, taskID, reason string) {
	// Failure reasons carry the agent's first stderr line, which can run long.
	p.printf("  %s %s — %s\n", errorStyle.Render("✗"), taskID, util.TruncateANSI(reason, 120))
}

func (p *runPrinter) MilestonePhaseChanged(milestoneID string, phase orchestrator.MilestonePhase) {
	switch phase {
	case orchestrator.PhaseCommitted:
		p.printf("%s\n", successStyle.Render(fmt.Sprintf("✓ milestone %s committed", milestoneID)))
	case orchestrator.PhaseFailed:
		p.printf("%s\n", errorStyle.Render(fmt.Sprintf("✗ milestone %s failed", milestoneID)))
	default:
		if p.verbose {
			p.printf("%s\n", mutedStyle.Render(fmt.Sprintf("  · %s → %s", milestoneID, phase)))
		}
	}
}

func (p *runPrinter) StageStarted(number, milestones int) {
	p.printf("%s\n", titleStyle.Render(fmt.Sprintf("▶ Stage %d — %d milestones", number, milestones)))
}

func (p *runPrinter) StageCompleted(number int, result checkpoint.StageResult) {
	line := fmt.Sprintf("Stage %d finished: %d/%d milestones in %s",
		number, result.SuccessfulMilestones, result.TotalMilestones,
		result.Duration.Round(time.Second))
	if result.Success {
		p.printf("%s\n", successStyle.Render(line))
	} else {
		p.printf("%s\n", errorStyle.Render(line))
	}
}

func (p *runPrinter) ConflictDetected(conflicts []conflict.FileConflict) {
	for _, fc := range conflicts {
		p.printf("%s\n", warnStyle.Render(fmt.Sprintf("⚠ %s modified by %s",
			fc.RelativePath, strings.Join(fc.Milestones, ", "))))
	}
}
