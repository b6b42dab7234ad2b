package milestone

import "testing"

func TestOrganizeStages(t *testing.T) {
	milestones := []Milestone{
		{ID: "2b-api", Stage: 2},
		{ID: "1-core", Stage: 1},
		{ID: "2a-storage", Stage: 2},
		{ID: "4-polish", Stage: 4},
	}

	stages := OrganizeStages(milestones)
	if len(stages) != 3 {
		t.Fatalf("len(stages) = %d, want 3", len(stages))
	}

	wantNumbers := []int{1, 2, 4}
	for i, want := range wantNumbers {
		if stages[i].Number != want {
			t.Errorf("stages[%d].Number = %d, want %d", i, stages[i].Number, want)
		}
	}

	second := stages[1].Milestones
	if len(second) != 2 || second[0].ID != "2a-storage" || second[1].ID != "2b-api" {
		t.Errorf("stage 2 milestones not sorted by ID: %v", second)
	}
}

func TestSplitByPriority(t *testing.T) {
	m := &Milestone{Tasks: []Task{
		{ID: "t1", Priority: PriorityMedium},
		{ID: "t2", Priority: PriorityHigh},
		{ID: "t3", Priority: PriorityLow},
		{ID: "t4", Priority: PriorityHigh},
	}}

	high, rest := m.SplitByPriority()
	if len(high) != 2 || high[0].ID != "t2" || high[1].ID != "t4" {
		t.Errorf("high = %v, want [t2 t4] in order", high)
	}
	if len(rest) != 2 || rest[0].ID != "t1" || rest[1].ID != "t3" {
		t.Errorf("rest = %v, want [t1 t3] in order", rest)
	}
}

func TestSuccessRatio(t *testing.T) {
	tests := []struct {
		name    string
		results []TaskResult
		want    float64
	}{
		{"empty", nil, 0},
		{"all completed", []TaskResult{
			{Status: TaskCompleted},
			{Status: TaskCompleted},
		}, 1},
		{"three of four", []TaskResult{
			{Status: TaskCompleted},
			{Status: TaskCompleted},
			{Status: TaskCompleted},
			{Status: TaskFailed},
		}, 0.75},
		{"skipped counts as failure", []TaskResult{
			{Status: TaskCompleted},
			{Status: TaskSkipped},
		}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SuccessRatio(tt.results); got != tt.want {
				t.Errorf("SuccessRatio = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTaskByID(t *testing.T) {
	m := &Milestone{Tasks: []Task{{ID: "a"}, {ID: "b"}}}

	if got := m.TaskByID("b"); got == nil || got.ID != "b" {
		t.Errorf("TaskByID(b) = %v", got)
	}
	if got := m.TaskByID("missing"); got != nil {
		t.Errorf("TaskByID(missing) = %v, want nil", got)
	}
}
