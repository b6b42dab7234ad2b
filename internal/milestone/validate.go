package milestone

import (
	"fmt"
	"regexp"
	"strings"
)

// maxTasks caps how many tasks a single milestone may define. Oversized
// milestones exhaust agent context and should be split.
const maxTasks = 20

var idRe = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)

// ValidationSeverity classifies a validation message.
type ValidationSeverity string

const (
	// SeverityError marks a blocking issue. Plans with errors cannot run.
	SeverityError ValidationSeverity = "error"

	// SeverityWarning marks a potential issue that should be reviewed.
	// Plans with warnings can still run.
	SeverityWarning ValidationSeverity = "warning"
)

// String returns the string representation of the severity.
func (s ValidationSeverity) String() string {
	return string(s)
}

// ValidationMessage is a single issue found while validating a plan.
type ValidationMessage struct {
	// Severity indicates how critical this issue is.
	Severity ValidationSeverity `json:"severity"`

	// Message is a human-readable description of the issue.
	Message string `json:"message"`

	// MilestoneID identifies the milestone this message relates to.
	// Empty for plan-level issues.
	MilestoneID string `json:"milestone_id,omitempty"`

	// TaskID identifies the task this message relates to, if any.
	TaskID string `json:"task_id,omitempty"`

	// Field names the specific field causing the issue.
	Field string `json:"field,omitempty"`

	// RelatedIDs lists other milestones involved, e.g. the members of a
	// dependency cycle.
	RelatedIDs []string `json:"related_ids,omitempty"`

	// Suggestion describes how to fix the issue.
	Suggestion string `json:"suggestion,omitempty"`
}

// IsError returns true if this message is blocking.
func (m *ValidationMessage) IsError() bool {
	return m.Severity == SeverityError
}

// IsWarning returns true if this message is advisory.
func (m *ValidationMessage) IsWarning() bool {
	return m.Severity == SeverityWarning
}

// ValidationResult contains the complete validation results for a plan.
type ValidationResult struct {
	// IsValid is true if there are no errors. Warnings are allowed.
	IsValid bool `json:"is_valid"`

	// Messages contains all validation messages found.
	Messages []ValidationMessage `json:"messages"`

	// ErrorCount is the number of error-level messages.
	ErrorCount int `json:"error_count"`

	// WarningCount is the number of warning-level messages.
	WarningCount int `json:"warning_count"`
}

func (r *ValidationResult) add(msg ValidationMessage) {
	r.Messages = append(r.Messages, msg)
	switch {
	case msg.IsError():
		r.IsValid = false
		r.ErrorCount++
	case msg.IsWarning():
		r.WarningCount++
	}
}

// Errors returns only the blocking messages.
func (r *ValidationResult) Errors() []ValidationMessage {
	var out []ValidationMessage
	for _, m := range r.Messages {
		if m.IsError() {
			out = append(out, m)
		}
	}
	return out
}

// Warnings returns only the advisory messages.
func (r *ValidationResult) Warnings() []ValidationMessage {
	var out []ValidationMessage
	for _, m := range r.Messages {
		if m.IsWarning() {
			out = append(out, m)
		}
	}
	return out
}

// ValidateAll checks every milestone for structural problems plus the
// cross-milestone rules: unique IDs, resolvable dependencies, and an
// acyclic dependency graph.
func ValidateAll(milestones []Milestone) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	if len(milestones) == 0 {
		result.add(ValidationMessage{
			Severity:   SeverityError,
			Message:    "no milestones found",
			Suggestion: "add milestone definitions to the milestones directory",
		})
		return result
	}

	ids := make(map[string]bool, len(milestones))
	for i := range milestones {
		m := &milestones[i]
		for _, msg := range ValidateMilestone(m) {
			result.add(msg)
		}
		if ids[m.ID] {
			result.add(ValidationMessage{
				Severity:    SeverityError,
				Message:     fmt.Sprintf("duplicate milestone ID %q", m.ID),
				MilestoneID: m.ID,
				Field:       "id",
				Suggestion:  "rename one of the definitions",
			})
		}
		ids[m.ID] = true
	}

	for i := range milestones {
		m := &milestones[i]
		for _, dep := range m.Dependencies {
			switch {
			case dep == m.ID:
				result.add(ValidationMessage{
					Severity:    SeverityError,
					Message:     "milestone depends on itself",
					MilestoneID: m.ID,
					Field:       "dependencies",
					RelatedIDs:  []string{m.ID},
					Suggestion:  "remove the self-dependency",
				})
			case !ids[dep]:
				result.add(ValidationMessage{
					Severity:    SeverityError,
					Message:     fmt.Sprintf("depends on unknown milestone %q", dep),
					MilestoneID: m.ID,
					Field:       "dependencies",
					RelatedIDs:  []string{dep},
					Suggestion:  fmt.Sprintf("remove %q from dependencies or add a milestone with that ID", dep),
				})
			}
		}
	}

	if cycle := DetectDependencyCycle(milestones); cycle != nil {
		result.add(ValidationMessage{
			Severity:   SeverityError,
			Message:    fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")),
			RelatedIDs: cycle,
			Field:      "dependencies",
			Suggestion: "remove one of the dependencies to break the cycle",
		})
	}

	return result
}

// ValidateMilestone checks a single milestone for structural problems.
func ValidateMilestone(m *Milestone) []ValidationMessage {
	var messages []ValidationMessage

	if strings.TrimSpace(m.ID) == "" {
		messages = append(messages, ValidationMessage{
			Severity:   SeverityError,
			Message:    "milestone has no ID",
			Field:      "id",
			Suggestion: "set an ID or rename the definition file",
		})
	} else if !idRe.MatchString(m.ID) {
		messages = append(messages, ValidationMessage{
			Severity:    SeverityError,
			Message:     fmt.Sprintf("milestone ID %q contains invalid characters", m.ID),
			MilestoneID: m.ID,
			Field:       "id",
			Suggestion:  "use only letters, digits, hyphens and underscores",
		})
	}

	if strings.TrimSpace(m.Title) == "" {
		messages = append(messages, ValidationMessage{
			Severity:    SeverityError,
			Message:     "milestone has no title",
			MilestoneID: m.ID,
			Field:       "title",
		})
	}

	if strings.TrimSpace(m.Description) == "" {
		messages = append(messages, ValidationMessage{
			Severity:    SeverityWarning,
			Message:     "milestone has no description",
			MilestoneID: m.ID,
			Field:       "description",
			Suggestion:  "add context that task prompts can share",
		})
	}

	if m.Stage < 1 {
		messages = append(messages, ValidationMessage{
			Severity:    SeverityError,
			Message:     fmt.Sprintf("stage must be positive, got %d", m.Stage),
			MilestoneID: m.ID,
			Field:       "stage",
		})
	}

	switch {
	case len(m.Tasks) == 0:
		messages = append(messages, ValidationMessage{
			Severity:    SeverityError,
			Message:     "milestone has no tasks",
			MilestoneID: m.ID,
			Field:       "tasks",
			Suggestion:  "add at least one task",
		})
	case len(m.Tasks) > maxTasks:
		messages = append(messages, ValidationMessage{
			Severity:    SeverityError,
			Message:     fmt.Sprintf("milestone has %d tasks, maximum is %d", len(m.Tasks), maxTasks),
			MilestoneID: m.ID,
			Field:       "tasks",
			Suggestion:  "split the milestone into smaller units",
		})
	}

	taskIDs := make(map[string]bool, len(m.Tasks))
	for _, t := range m.Tasks {
		if strings.TrimSpace(t.ID) == "" {
			messages = append(messages, ValidationMessage{
				Severity:    SeverityError,
				Message:     "task has no ID",
				MilestoneID: m.ID,
				Field:       "tasks",
			})
			continue
		}
		if taskIDs[t.ID] {
			messages = append(messages, ValidationMessage{
				Severity:    SeverityError,
				Message:     fmt.Sprintf("duplicate task ID %q", t.ID),
				MilestoneID: m.ID,
				TaskID:      t.ID,
				Field:       "tasks",
			})
		}
		taskIDs[t.ID] = true

		if strings.TrimSpace(t.Title) == "" {
			messages = append(messages, ValidationMessage{
				Severity:    SeverityError,
				Message:     "task has no title",
				MilestoneID: m.ID,
				TaskID:      t.ID,
				Field:       "title",
			})
		}
		if strings.TrimSpace(t.Requirements) == "" {
			messages = append(messages, ValidationMessage{
				Severity:    SeverityWarning,
				Message:     "task has no requirements",
				MilestoneID: m.ID,
				TaskID:      t.ID,
				Field:       "requirements",
				Suggestion:  "describe what the agent should build",
			})
		}
		if !t.Priority.IsValid() {
			messages = append(messages, ValidationMessage{
				Severity:    SeverityError,
				Message:     fmt.Sprintf("unknown priority %q", t.Priority),
				MilestoneID: m.ID,
				TaskID:      t.ID,
				Field:       "priority",
				Suggestion:  "use high, medium or low",
			})
		}
	}

	return messages
}

// DetectDependencyCycle returns the milestone IDs forming a dependency cycle,
// or nil when the graph is acyclic. The returned slice starts and ends with
// the same ID.
func DetectDependencyCycle(milestones []Milestone) []string {
	byID := make(map[string]*Milestone, len(milestones))
	for i := range milestones {
		byID[milestones[i].ID] = &milestones[i]
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	parent := make(map[string]string)

	var dfs func(id string) []string
	dfs = func(id string) []string {
		visited[id] = true
		recStack[id] = true

		m := byID[id]
		if m == nil {
			recStack[id] = false
			return nil
		}

		for _, dep := range m.Dependencies {
			if !visited[dep] {
				parent[dep] = id
				if cycle := dfs(dep); cycle != nil {
					return cycle
				}
			} else if recStack[dep] {
				// Found a cycle - reconstruct it from the parent chain.
				cycle := []string{dep}
				current := id
				for current != dep {
					cycle = append([]string{current}, cycle...)
					current = parent[current]
				}
				return append([]string{dep}, cycle...)
			}
		}

		recStack[id] = false
		return nil
	}

	for i := range milestones {
		if !visited[milestones[i].ID] {
			if cycle := dfs(milestones[i].ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
