package agent

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/maestro/internal/milestone"
)

// TaskPrompt builds the execution prompt for a single task. The prompt is
// explicit about file creation because print-mode agents otherwise tend to
// answer with code blocks instead of edits.
func TaskPrompt(task milestone.Task) string {
	requirements := task.Requirements
	if requirements == "" {
		requirements = "No specific requirements provided"
	}
	criteria := task.AcceptanceCriteria
	if criteria == "" {
		criteria = "No specific criteria provided"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("You must implement: %s\n\n", task.Title))
	sb.WriteString(fmt.Sprintf("TASK ID: %s\n", task.ID))
	sb.WriteString(fmt.Sprintf("MILESTONE: %s\n\n", task.MilestoneID))

	sb.WriteString("REQUIREMENTS:\n")
	sb.WriteString(requirements)
	sb.WriteString("\n\n")

	sb.WriteString("ACCEPTANCE CRITERIA:\n")
	sb.WriteString(criteria)
	sb.WriteString("\n\n")

	sb.WriteString(`CRITICAL INSTRUCTIONS:
1. You MUST create or modify actual files in the working directory
2. You MUST NOT just provide code examples or explanations
3. File creation is REQUIRED for this task to be considered complete
4. Use appropriate file paths based on the project structure

IMPLEMENTATION STEPS:
1. Analyze the current project structure
2. Determine the exact file paths needed for implementation
3. Create or modify files accordingly
4. Ensure all created files follow the project's conventions and structure
5. Verify that your implementation meets all requirements and acceptance criteria

IMPORTANT: This task will ONLY be marked as successful if you actually create
or modify files. Acknowledging the task or providing code snippets without
creating files will result in task failure.

Begin implementation now.`)

	return sb.String()
}
