package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/maestro/internal/checkpoint"
	"github.com/Iron-Ham/maestro/internal/conflict"
	"github.com/Iron-Ham/maestro/internal/milestone"
	"github.com/Iron-Ham/maestro/internal/orchestrator"
)

func planFixture() []milestone.Stage {
	return milestone.OrganizeStages([]milestone.Milestone{
		{
			ID:    "1a-core",
			Title: "Core types",
			Stage: 1,
			Tasks: []milestone.Task{
				{ID: "1a-core-T1", Title: "Define types", EstimatedMinutes: 30},
				{ID: "1a-core-T2", Title: "Add helpers", EstimatedMinutes: 30},
			},
		},
		{
			ID:           "1b-api",
			Title:        "API handlers",
			Stage:        1,
			Dependencies: []string{"1a-core"},
			Tasks: []milestone.Task{
				{ID: "1b-api-T1", Title: "Routes", EstimatedMinutes: 30},
				{ID: "1b-api-T2", Title: "Handlers", EstimatedMinutes: 15},
			},
		},
		{
			ID:    "2a-web",
			Title: "Web frontend",
			Stage: 2,
			Tasks: []milestone.Task{
				{ID: "2a-web-T1", Title: "Pages", EstimatedMinutes: 30},
			},
		},
	})
}

func TestRenderPlan(t *testing.T) {
	out := renderPlan(planFixture(), 0)

	for _, want := range []string{
		"Stage 1 (2 milestones)",
		"├─ 1a-core — Core types (2 tasks, ~1h0m0s)",
		"└─ 1b-api — API handlers (2 tasks, ~45m0s)",
		"needs 1a-core",
		"Stage 2 (1 milestones)",
		"└─ 2a-web — Web frontend (1 tasks, ~30m0s)",
		"2 stages, 3 milestones, 5 tasks",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("plan output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "[completed]") {
		t.Errorf("plan with cursor 0 should not mark stages completed:\n%s", out)
	}
}

func TestRenderPlanMarksCompletedStages(t *testing.T) {
	out := renderPlan(planFixture(), 2)

	idx := strings.Index(out, "[completed]")
	if idx < 0 {
		t.Fatalf("plan with cursor 2 should mark stage 1 completed:\n%s", out)
	}
	if stage2 := strings.Index(out, "Stage 2"); stage2 >= 0 && idx > stage2 {
		t.Errorf("completed marker should precede stage 2:\n%s", out)
	}
}

func TestRenderValidationMessages(t *testing.T) {
	result := &milestone.ValidationResult{
		IsValid:      false,
		ErrorCount:   1,
		WarningCount: 1,
		Messages: []milestone.ValidationMessage{
			{
				Severity:    milestone.SeverityError,
				Message:     "milestone has no title",
				MilestoneID: "1b-api",
				Suggestion:  "set a title",
			},
			{
				Severity:    milestone.SeverityWarning,
				Message:     "task has no requirements",
				MilestoneID: "1b-api",
				TaskID:      "1b-api-T1",
			},
		},
	}

	out := renderValidation(result)

	for _, want := range []string{
		"1b-api: milestone has no title",
		"    set a title",
		"1b-api-T1: task has no requirements",
		"invalid plan: 1 errors, 1 warnings",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("validation output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderValidationSummary(t *testing.T) {
	tests := []struct {
		name   string
		result *milestone.ValidationResult
		want   string
	}{
		{
			name:   "clean",
			result: &milestone.ValidationResult{IsValid: true},
			want:   "plan is valid",
		},
		{
			name:   "warnings only",
			result: &milestone.ValidationResult{IsValid: true, WarningCount: 3},
			want:   "plan is valid with 3 warnings",
		},
		{
			name:   "errors",
			result: &milestone.ValidationResult{IsValid: false, ErrorCount: 2, WarningCount: 1},
			want:   "invalid plan: 2 errors, 1 warnings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := renderValidation(tt.result)
			if !strings.Contains(out, tt.want) {
				t.Errorf("summary missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestRenderStatus(t *testing.T) {
	state := checkpoint.NewState()
	state.RunID = "run-123"
	state.CurrentStage = 2
	state.StartedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local)
	state.LastCheckpoint = time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)
	state.CompletedTasks.Add("1a-core-T1")
	state.CompletedTasks.Add("1a-core-T2")
	state.FailedTasks.Add("1b-api-T1")
	state.WorktreePaths["1a-core"] = "/tmp/wt-1a-core"
	state.StageResults[1] = checkpoint.StageResult{
		Number: 1, Success: true,
		TotalMilestones: 2, SuccessfulMilestones: 2,
		Duration: 90 * time.Second,
	}
	state.StageResults[2] = checkpoint.StageResult{
		Number: 2, Success: false,
		TotalMilestones: 2, SuccessfulMilestones: 1,
		Duration: 45 * time.Second,
	}

	out := renderStatus(state)

	for _, want := range []string{
		"Run run-123",
		"Started:         2026-03-14 09:30:00",
		"Last checkpoint: 2026-03-14 10:00:00",
		"Stage cursor:    2",
		"2 completed, 1 failed, 0 skipped",
		"Worktrees:       1 active",
		"1a-core → /tmp/wt-1a-core",
		"Stage 1: 2/2 milestones in 1m30s",
		"Stage 2: 1/2 milestones in 45s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderRunSummary(t *testing.T) {
	state := checkpoint.NewState()
	state.CompletedTasks.Add("1a-core-T1")

	out := renderRunSummary(state, "/repo/.maestro/execution_report.json")

	if !strings.Contains(out, "1 completed, 0 failed, 0 skipped") {
		t.Errorf("summary missing task counts:\n%s", out)
	}
	if !strings.Contains(out, "Report: /repo/.maestro/execution_report.json") {
		t.Errorf("summary missing report path:\n%s", out)
	}
}

func TestRunPrinterQuiet(t *testing.T) {
	var buf bytes.Buffer
	p := newRunPrinter(&buf, false)

	p.StageStarted(1, 2)
	p.TaskStarted("1a-core", "1a-core-T1", "Define types")
	p.TaskCompleted("1a-core", "1a-core-T1", 1)
	p.TaskCompleted("1a-core", "1a-core-T0", 0)
	p.TaskCompleted("1a-core", "1a-core-T2", 2)
	p.TaskFailed("1b-api", "1b-api-T1", "agent exited with code 1")
	p.MilestonePhaseChanged("1a-core", orchestrator.PhaseTasksRunning)
	p.MilestonePhaseChanged("1a-core", orchestrator.PhaseCommitted)
	p.MilestonePhaseChanged("1b-api", orchestrator.PhaseFailed)
	p.StageCompleted(1, checkpoint.StageResult{
		Number: 1, Success: true,
		TotalMilestones: 2, SuccessfulMilestones: 2,
		Duration: 5 * time.Second,
	})
	p.ConflictDetected([]conflict.FileConflict{
		{RelativePath: "go.mod", Milestones: []string{"1a-core", "1b-api"}},
	})

	out := buf.String()

	for _, want := range []string{
		"▶ Stage 1 — 2 milestones",
		"✓ 1a-core-T1",
		"✓ 1a-core-T2 (attempt 2)",
		"✗ 1b-api-T1 — agent exited with code 1",
		"✓ milestone 1a-core committed",
		"✗ milestone 1b-api failed",
		"Stage 1 finished: 2/2 milestones in 5s",
		"⚠ go.mod modified by 1a-core, 1b-api",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("printer output missing %q:\n%s", want, out)
		}
	}

	// Task starts, resumed tasks, and intermediate phases stay quiet.
	for _, silent := range []string{"started", "1a-core-T0", "tasks_running"} {
		if strings.Contains(out, silent) {
			t.Errorf("quiet printer should not emit %q:\n%s", silent, out)
		}
	}
}

func TestRunPrinterVerbose(t *testing.T) {
	var buf bytes.Buffer
	p := newRunPrinter(&buf, true)

	p.TaskStarted("1a-core", "1a-core-T1", "Define types")
	p.TaskCompleted("1a-core", "1a-core-T0", 0)
	p.MilestonePhaseChanged("1a-core", orchestrator.PhaseTasksRunning)

	out := buf.String()

	for _, want := range []string{
		"· 1a-core-T1 started — Define types",
		"· 1a-core-T0 already done",
		"· 1a-core → tasks_running",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("verbose printer output missing %q:\n%s", want, out)
		}
	}
}
