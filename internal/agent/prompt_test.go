package agent

import (
	"strings"
	"testing"

	"github.com/Iron-Ham/maestro/internal/milestone"
)

func TestTaskPrompt(t *testing.T) {
	task := milestone.Task{
		ID:                 "1a-core-T1",
		Title:              "Define core types",
		Requirements:       "Create the type definitions",
		AcceptanceCriteria: "Types compile",
		MilestoneID:        "1a-core",
	}

	prompt := TaskPrompt(task)

	for _, want := range []string{
		"You must implement: Define core types",
		"TASK ID: 1a-core-T1",
		"MILESTONE: 1a-core",
		"Create the type definitions",
		"Types compile",
		"CRITICAL INSTRUCTIONS",
		"Begin implementation now.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestTaskPromptDefaults(t *testing.T) {
	task := milestone.Task{ID: "t1", Title: "Bare task", MilestoneID: "m"}

	prompt := TaskPrompt(task)

	if !strings.Contains(prompt, "No specific requirements provided") {
		t.Error("prompt missing requirements placeholder")
	}
	if !strings.Contains(prompt, "No specific criteria provided") {
		t.Error("prompt missing criteria placeholder")
	}
}
