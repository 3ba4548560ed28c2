package model

import "testing"

func TestApply_SectionIsolation(t *testing.T) {
	rec := NewDraft(1)
	rec.BasicInfo = Section{"name": "Alice"}

	rec.Apply(Patch{Accommodation: Section{"type": "dorm"}})

	if rec.Accommodation["type"] != "dorm" {
		t.Fatalf("accommodation not applied: %+v", rec.Accommodation)
	}
	if rec.BasicInfo["name"] != "Alice" {
		t.Fatalf("sibling section must stay untouched, got %+v", rec.BasicInfo)
	}
}

func TestApply_CompletedStepsOnlyGrow(t *testing.T) {
	rec := NewDraft(1)
	rec.CompletedSteps = []string{"basic-info", "course-matching"}

	rec.Apply(Patch{CompletedSteps: []string{"course-matching", "accommodation"}})

	want := []string{"basic-info", "course-matching", "accommodation"}
	if len(rec.CompletedSteps) != len(want) {
		t.Fatalf("completed steps = %v, want %v", rec.CompletedSteps, want)
	}
	for i, s := range want {
		if rec.CompletedSteps[i] != s {
			t.Fatalf("completed steps = %v, want %v", rec.CompletedSteps, want)
		}
	}
}

func TestMergeSteps_Deduplicates(t *testing.T) {
	res := MergeSteps([]string{"a"}, []string{"a", "b", "b"})
	if len(res) != 2 || res[0] != "a" || res[1] != "b" {
		t.Fatalf("merged = %v, want [a b]", res)
	}
}

func TestProgressStatus(t *testing.T) {
	tests := []struct {
		name      string
		completed []string
		status    Status
		submit    bool
		want      Status
	}{
		{name: "empty draft stays draft", status: StatusDraft, want: StatusDraft},
		{name: "one step in progress", completed: []string{"basic-info"}, status: StatusDraft, want: StatusInProgress},
		{
			name: "all steps completed",
			completed: []string{
				"basic-info", "course-matching", "accommodation",
				"living-expenses", "experience-sharing",
			},
			status: StatusInProgress,
			want:   StatusCompleted,
		},
		{name: "submit wins", status: StatusDraft, submit: true, want: StatusSubmitted},
		{name: "submitted is terminal", status: StatusSubmitted, want: StatusSubmitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewDraft(1)
			rec.Status = tt.status
			rec.CompletedSteps = tt.completed

			if got := ProgressStatus(rec, tt.submit); got != tt.want {
				t.Fatalf("ProgressStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFullPatch_CarriesAllSections(t *testing.T) {
	rec := NewDraft(1)
	rec.BasicInfo = Section{"name": "Bob"}
	rec.Courses = Section{"list": []any{"math"}}
	rec.CompletedSteps = []string{"basic-info"}

	p := rec.FullPatch()

	if p.BasicInfo["name"] != "Bob" {
		t.Fatalf("basic_info missing from full patch: %+v", p)
	}
	if p.Courses == nil || p.Accommodation == nil {
		t.Fatalf("full patch must carry every section: %+v", p)
	}
	if len(p.CompletedSteps) != 1 || p.CompletedSteps[0] != "basic-info" {
		t.Fatalf("completed steps = %v", p.CompletedSteps)
	}
}

func TestSectionStepMapping_Bijective(t *testing.T) {
	for _, step := range Steps {
		section, ok := SectionForStep(step)
		if !ok {
			t.Fatalf("no section for step %s", step)
		}
		back, ok := StepForSection(section)
		if !ok || back != step {
			t.Fatalf("section %s maps back to %s, want %s", section, back, step)
		}
	}
}
