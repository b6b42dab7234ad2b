package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/maestro/internal/checkpoint"
)

// ReportFileName is the execution report file inside the state directory.
const ReportFileName = "execution_report.json"

// Report is the JSON document summarizing a run. It is written at the end
// of every run, successful or not, so a failed run still leaves a record of
// how far it got.
type Report struct {
	ExecutionSummary Summary                        `json:"execution_summary"`
	StageResults     map[int]checkpoint.StageResult `json:"stage_results"`
	ExecutionLog     []string                       `json:"execution_log"`
}

// Summary aggregates run-level counters.
type Summary struct {
	RunID          string    `json:"run_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	TotalStages    int       `json:"total_stages"`
	CompletedTasks int       `json:"completed_tasks"`
	FailedTasks    int       `json:"failed_tasks"`
	SkippedTasks   int       `json:"skipped_tasks"`
}

// BuildReport assembles a report from a state snapshot, stamping now as the
// end time.
func BuildReport(state *checkpoint.State) Report {
	return Report{
		ExecutionSummary: Summary{
			RunID:          state.RunID,
			StartTime:      state.StartedAt,
			EndTime:        time.Now(),
			TotalStages:    len(state.StageResults),
			CompletedTasks: len(state.CompletedTasks),
			FailedTasks:    len(state.FailedTasks),
			SkippedTasks:   len(state.SkippedTasks),
		},
		StageResults: state.StageResults,
		ExecutionLog: state.ExecutionLog,
	}
}

// WriteReport writes the report as indented JSON to path, creating the
// parent directory if needed.
func WriteReport(path string, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write execution report: %w", err)
	}
	return nil
}
