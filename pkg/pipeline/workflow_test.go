package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testWorkflowYAML = `name: policy
triggers:
  - pull_request
  - push
jobs:
  - id: validate
    on: pull_request
    steps:
      - id: init
        name: Initialize backend
        run: init
      - id: validate
        run: validate
      - id: plan
        run: plan
  - id: apply
    on: push
    branch: main
    steps:
      - id: init
        run: init
      - id: plan
        run: plan
      - id: apply
        run: apply
        if: event == "push" && branch == "main"
`

func TestLoadWorkflow(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "pipeline.yaml")
	if err := os.WriteFile(path, []byte(testWorkflowYAML), 0644); err != nil {
		t.Fatalf("Failed to write workflow file: %v", err)
	}

	wf, err := LoadWorkflow(path)
	if err != nil {
		t.Fatalf("Failed to load workflow: %v", err)
	}

	if wf.Name != "policy" {
		t.Errorf("Expected name 'policy', got '%s'", wf.Name)
	}
	if len(wf.Jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(wf.Jobs))
	}
	if wf.Jobs[0].On != EventPullRequest {
		t.Errorf("Expected pull_request trigger, got %s", wf.Jobs[0].On)
	}
	if wf.Jobs[1].Branch != "main" {
		t.Errorf("Expected branch main, got %s", wf.Jobs[1].Branch)
	}
	if len(wf.Jobs[0].Steps) != 3 {
		t.Errorf("Expected 3 steps, got %d", len(wf.Jobs[0].Steps))
	}
	if wf.Jobs[1].Steps[2].If == "" {
		t.Error("Expected guard on apply step")
	}
}

func TestLoadWorkflow_Missing(t *testing.T) {
	if _, err := LoadWorkflow("/nonexistent/pipeline.yaml"); err == nil {
		t.Error("Expected error for missing workflow file")
	}
}

func TestParseWorkflow_InvalidYAML(t *testing.T) {
	if _, err := ParseWorkflow([]byte("jobs: [whoops")); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestWorkflowValidate(t *testing.T) {
	valid := func() *Workflow {
		return &Workflow{
			Name: "test",
			Jobs: []Job{
				{
					ID: "validate",
					On: EventPullRequest,
					Steps: []Step{
						{Run: StepValidate},
					},
				},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Workflow)
		wantErr string
	}{
		{
			name:   "valid workflow",
			mutate: func(w *Workflow) {},
		},
		{
			name:    "missing name",
			mutate:  func(w *Workflow) { w.Name = "" },
			wantErr: "name is required",
		},
		{
			name:    "no jobs",
			mutate:  func(w *Workflow) { w.Jobs = nil },
			wantErr: "at least one job",
		},
		{
			name: "duplicate job ids",
			mutate: func(w *Workflow) {
				w.Jobs = append(w.Jobs, w.Jobs[0])
			},
			wantErr: "duplicate job id",
		},
		{
			name: "unknown event type",
			mutate: func(w *Workflow) {
				w.Jobs[0].On = "cron"
			},
			wantErr: "invalid event type",
		},
		{
			name: "trigger not listed",
			mutate: func(w *Workflow) {
				w.Triggers = []EventType{EventPush}
			},
			wantErr: "not listed in workflow triggers",
		},
		{
			name: "no steps",
			mutate: func(w *Workflow) {
				w.Jobs[0].Steps = nil
			},
			wantErr: "at least one step",
		},
		{
			name: "unknown step kind",
			mutate: func(w *Workflow) {
				w.Jobs[0].Steps[0].Run = "deploy"
			},
			wantErr: "invalid step kind",
		},
		{
			name: "apply step on pull request job",
			mutate: func(w *Workflow) {
				w.Jobs[0].Steps = append(w.Jobs[0].Steps, Step{Run: StepApply})
			},
			wantErr: "apply steps require a push trigger",
		},
		{
			name: "duplicate step ids",
			mutate: func(w *Workflow) {
				w.Jobs[0].Steps = append(w.Jobs[0].Steps, Step{ID: "validate", Run: StepPlan})
			},
			wantErr: "duplicate step id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := valid()
			tt.mutate(w)
			err := w.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid workflow, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestWorkflowValidate_Defaults(t *testing.T) {
	w := &Workflow{
		Name: "test",
		Jobs: []Job{
			{
				ID: "apply",
				On: EventPush,
				Steps: []Step{
					{Run: StepInit},
					{Run: StepApply},
				},
			},
		},
	}

	if err := w.Validate(); err != nil {
		t.Fatalf("Validation failed: %v", err)
	}

	if w.Jobs[0].Branch != "main" {
		t.Errorf("Expected push job branch to default to main, got %q", w.Jobs[0].Branch)
	}
	if w.Jobs[0].Steps[0].ID != "init" {
		t.Errorf("Expected step id to default to its kind, got %q", w.Jobs[0].Steps[0].ID)
	}
}

func TestDefaultWorkflow(t *testing.T) {
	wf := DefaultWorkflow()
	if err := wf.Validate(); err != nil {
		t.Fatalf("Default workflow must validate: %v", err)
	}

	var prJob, pushJob *Job
	for i := range wf.Jobs {
		switch wf.Jobs[i].On {
		case EventPullRequest:
			prJob = &wf.Jobs[i]
		case EventPush:
			pushJob = &wf.Jobs[i]
		}
	}

	if prJob == nil || pushJob == nil {
		t.Fatal("Default workflow must cover both triggers")
	}
	for _, step := range prJob.Steps {
		if step.Run == StepApply {
			t.Error("Default pull-request job must not apply")
		}
	}
	if pushJob.Branch != "main" {
		t.Errorf("Default push job must target main, got %q", pushJob.Branch)
	}
	if pushJob.Steps[len(pushJob.Steps)-1].Run != StepApply {
		t.Error("Default push job must end with apply")
	}
}
