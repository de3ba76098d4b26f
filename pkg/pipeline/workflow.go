package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StepKind names a well-known pipeline step.
type StepKind string

const (
	// StepInit opens the backend and verifies credentials.
	StepInit StepKind = "init"

	// StepValidate checks every declared document.
	StepValidate StepKind = "validate"

	// StepPlan computes the change set against the snapshot.
	StepPlan StepKind = "plan"

	// StepApply executes a plan against the state store.
	StepApply StepKind = "apply"

	// StepEval runs an admission check against the declared assignments.
	StepEval StepKind = "eval"
)

// Validate checks if the step kind is known.
func (k StepKind) Validate() error {
	switch k {
	case StepInit, StepValidate, StepPlan, StepApply, StepEval:
		return nil
	default:
		return fmt.Errorf("invalid step kind: %s", k)
	}
}

// Step is one sequential unit of a job.
type Step struct {
	// ID identifies the step within its job. Defaults to the step kind.
	ID string `yaml:"id,omitempty"`

	// Name is an optional human-readable label.
	Name string `yaml:"name,omitempty"`

	// Run names the step kind to execute.
	Run StepKind `yaml:"run"`

	// If is an optional guard expression over event, branch, and state.
	// A false guard skips the step.
	If string `yaml:"if,omitempty"`
}

// Job is a sequence of steps bound to one trigger.
type Job struct {
	// ID identifies the job.
	ID string `yaml:"id"`

	// On is the event type that triggers the job.
	On EventType `yaml:"on"`

	// Branch restricts push-triggered jobs to one branch. Defaults to
	// main for push jobs and is ignored for pull-request jobs.
	Branch string `yaml:"branch,omitempty"`

	// Steps run sequentially and fail-stop.
	Steps []Step `yaml:"steps"`
}

// Workflow is a pipeline definition parsed from YAML.
type Workflow struct {
	// Name identifies the workflow.
	Name string `yaml:"name"`

	// Triggers optionally lists the event types the workflow responds to.
	// When set, every job trigger must appear in it.
	Triggers []EventType `yaml:"triggers,omitempty"`

	// Jobs are matched against the trigger event in order.
	Jobs []Job `yaml:"jobs"`
}

// LoadWorkflow reads and validates a workflow from a YAML file.
func LoadWorkflow(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	wf, err := ParseWorkflow(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", path, err)
	}
	return wf, nil
}

// ParseWorkflow parses workflow YAML and validates it.
func ParseWorkflow(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to parse workflow YAML: %w", err)
	}
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}
	return &wf, nil
}

// Validate checks structural invariants and applies defaults. Apply steps
// are only valid in push-triggered jobs, which closes the validated to
// applying edge at the document level too.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(w.Jobs) == 0 {
		return fmt.Errorf("at least one job is required")
	}
	for _, t := range w.Triggers {
		if err := t.Validate(); err != nil {
			return err
		}
	}

	jobIDs := make(map[string]bool, len(w.Jobs))
	for i := range w.Jobs {
		job := &w.Jobs[i]
		if job.ID == "" {
			return fmt.Errorf("job %d: id is required", i)
		}
		if jobIDs[job.ID] {
			return fmt.Errorf("duplicate job id: %s", job.ID)
		}
		jobIDs[job.ID] = true

		if err := job.On.Validate(); err != nil {
			return fmt.Errorf("job %s: %w", job.ID, err)
		}
		if len(w.Triggers) > 0 && !w.triggered(job.On) {
			return fmt.Errorf("job %s: trigger %s is not listed in workflow triggers", job.ID, job.On)
		}
		if job.On == EventPush && job.Branch == "" {
			job.Branch = "main"
		}
		if len(job.Steps) == 0 {
			return fmt.Errorf("job %s: at least one step is required", job.ID)
		}

		stepIDs := make(map[string]bool, len(job.Steps))
		for j := range job.Steps {
			step := &job.Steps[j]
			if step.ID == "" {
				step.ID = string(step.Run)
			}
			if stepIDs[step.ID] {
				return fmt.Errorf("job %s: duplicate step id: %s", job.ID, step.ID)
			}
			stepIDs[step.ID] = true

			if err := step.Run.Validate(); err != nil {
				return fmt.Errorf("job %s step %s: %w", job.ID, step.ID, err)
			}
			if step.Run == StepApply && job.On != EventPush {
				return fmt.Errorf("job %s step %s: apply steps require a push trigger", job.ID, step.ID)
			}
		}
	}
	return nil
}

func (w *Workflow) triggered(t EventType) bool {
	for _, trigger := range w.Triggers {
		if trigger == t {
			return true
		}
	}
	return false
}

// DefaultWorkflow returns the built-in two-phase workflow: validate on pull
// request, apply on push to main.
func DefaultWorkflow() *Workflow {
	return &Workflow{
		Name:     "warden",
		Triggers: []EventType{EventPullRequest, EventPush},
		Jobs: []Job{
			{
				ID: "validate",
				On: EventPullRequest,
				Steps: []Step{
					{ID: "init", Name: "Initialize backend", Run: StepInit},
					{ID: "validate", Name: "Validate documents", Run: StepValidate},
					{ID: "plan", Name: "Compute plan", Run: StepPlan},
				},
			},
			{
				ID:     "apply",
				On:     EventPush,
				Branch: "main",
				Steps: []Step{
					{ID: "init", Name: "Initialize backend", Run: StepInit},
					{ID: "plan", Name: "Compute plan", Run: StepPlan},
					{ID: "apply", Name: "Apply plan", Run: StepApply},
				},
			},
		},
	}
}
