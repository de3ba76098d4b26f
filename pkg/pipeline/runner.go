package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"
)

// StepFunc executes one pipeline step kind.
type StepFunc func(ctx context.Context, event Event) error

// StepResult records the outcome of one step.
type StepResult struct {
	// JobID is the job the step belongs to.
	JobID string `json:"job_id"`

	// StepID identifies the step within the job.
	StepID string `json:"step_id"`

	// Kind is the step kind that ran.
	Kind StepKind `json:"kind"`

	// Skipped is true when the step's guard evaluated to false.
	Skipped bool `json:"skipped,omitempty"`

	// Error is the step failure, if any.
	Error string `json:"error,omitempty"`

	// Duration is how long the step ran.
	Duration time.Duration `json:"duration"`
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	// State is the run's final state. A run no job matched stays idle.
	State RunState `json:"state"`

	// Event is the trigger that started the run.
	Event Event `json:"event"`

	// Steps records every step in execution order, skipped ones included.
	Steps []StepResult `json:"steps"`

	// FailedStep names the job/step that halted the run, if any.
	FailedStep string `json:"failed_step,omitempty"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run finished.
	FinishedAt time.Time `json:"finished_at"`
}

// Runner executes a workflow for trigger events. Runs are entirely
// sequential; a failing step halts the run at that step and no later step
// executes.
type Runner struct {
	workflow *Workflow
	steps    map[StepKind]StepFunc
	guards   map[string]*vm.Program
	logger   zerolog.Logger
}

// NewRunner builds a runner, compiling every step guard up front. Every
// step kind the workflow names must have a StepFunc.
func NewRunner(workflow *Workflow, steps map[StepKind]StepFunc, logger zerolog.Logger) (*Runner, error) {
	if workflow == nil {
		return nil, fmt.Errorf("workflow is required")
	}
	if err := workflow.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}

	r := &Runner{
		workflow: workflow,
		steps:    steps,
		guards:   make(map[string]*vm.Program),
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}

	for _, job := range workflow.Jobs {
		for _, step := range job.Steps {
			if _, ok := steps[step.Run]; !ok {
				return nil, fmt.Errorf("no step function for kind %s (job %s step %s)", step.Run, job.ID, step.ID)
			}
			if step.If == "" {
				continue
			}
			program, err := expr.Compile(step.If,
				expr.Env(map[string]any{}),
				expr.AllowUndefinedVariables(),
				expr.AsBool(),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to compile guard for job %s step %s: %w", job.ID, step.ID, err)
			}
			r.guards[stepKey(job.ID, step.ID)] = program
		}
	}

	return r, nil
}

func stepKey(jobID, stepID string) string {
	return jobID + "/" + stepID
}

// Run executes the jobs matching the event. A pull-request event enters
// validating and ends validated or rejected; a push to a job's branch
// enters applying and ends applied or failed. An event no job matches
// leaves the run idle and is not an error.
func (r *Runner) Run(ctx context.Context, event Event) (*RunResult, error) {
	result := &RunResult{
		State:     StateIdle,
		Event:     event,
		StartedAt: time.Now(),
	}

	if err := event.Validate(); err != nil {
		result.FinishedAt = time.Now()
		return result, fmt.Errorf("invalid event: %w", err)
	}

	jobs := r.matchJobs(event)
	if len(jobs) == 0 {
		r.logger.Info().
			Str("event", string(event.Type)).
			Str("branch", event.Branch).
			Msg("No job matches event, skipping run")
		result.FinishedAt = time.Now()
		return result, nil
	}

	active, succeeded, failed := StateValidating, StateValidated, StateRejected
	if event.Type == EventPush {
		active, succeeded, failed = StateApplying, StateApplied, StateFailed
	}

	state, err := Transition(result.State, active)
	if err != nil {
		result.FinishedAt = time.Now()
		return result, err
	}
	result.State = state

	r.logger.Info().
		Str("workflow", r.workflow.Name).
		Str("event", string(event.Type)).
		Str("branch", event.Branch).
		Str("state", string(result.State)).
		Msg("Pipeline run started")

	for _, job := range jobs {
		for i := range job.Steps {
			step := &job.Steps[i]
			sr := StepResult{JobID: job.ID, StepID: step.ID, Kind: step.Run}

			allowed, err := r.evalGuard(job.ID, step, event, result.State)
			if err != nil {
				sr.Error = err.Error()
				result.Steps = append(result.Steps, sr)
				return r.halt(result, job.ID, step.ID, failed, err)
			}
			if !allowed {
				sr.Skipped = true
				result.Steps = append(result.Steps, sr)
				r.logger.Debug().
					Str("job", job.ID).
					Str("step", step.ID).
					Msg("Step skipped by guard")
				continue
			}

			stepStart := time.Now()
			stepErr := r.steps[step.Run](ctx, event)
			sr.Duration = time.Since(stepStart)

			if stepErr != nil {
				sr.Error = stepErr.Error()
				result.Steps = append(result.Steps, sr)
				return r.halt(result, job.ID, step.ID, failed,
					fmt.Errorf("step %s failed: %w", step.ID, stepErr))
			}

			result.Steps = append(result.Steps, sr)
			r.logger.Info().
				Str("job", job.ID).
				Str("step", step.ID).
				Dur("duration", sr.Duration).
				Msg("Step completed")
		}
	}

	result.State, err = Transition(result.State, succeeded)
	if err != nil {
		result.FinishedAt = time.Now()
		return result, err
	}
	result.FinishedAt = time.Now()

	r.logger.Info().
		Str("workflow", r.workflow.Name).
		Str("state", string(result.State)).
		Int("steps", len(result.Steps)).
		Msg("Pipeline run completed")

	return result, nil
}

// halt records the failing step, moves the run to its failure state, and
// surfaces the error verbatim.
func (r *Runner) halt(result *RunResult, jobID, stepID string, failed RunState, err error) (*RunResult, error) {
	result.FailedStep = stepKey(jobID, stepID)
	if next, terr := Transition(result.State, failed); terr == nil {
		result.State = next
	}
	result.FinishedAt = time.Now()

	r.logger.Error().
		Err(err).
		Str("job", jobID).
		Str("step", stepID).
		Str("state", string(result.State)).
		Msg("Pipeline run halted")

	return result, err
}

// matchJobs selects the jobs triggered by the event, in workflow order.
// Push jobs additionally require a branch match.
func (r *Runner) matchJobs(event Event) []Job {
	var jobs []Job
	for _, job := range r.workflow.Jobs {
		if job.On != event.Type {
			continue
		}
		if job.On == EventPush && job.Branch != event.Branch {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// evalGuard evaluates a step's guard against the event, branch, and run
// state. Steps without a guard always run.
func (r *Runner) evalGuard(jobID string, step *Step, event Event, state RunState) (bool, error) {
	program, ok := r.guards[stepKey(jobID, step.ID)]
	if !ok {
		return true, nil
	}

	output, err := expr.Run(program, map[string]any{
		"event":  string(event.Type),
		"branch": event.Branch,
		"state":  string(state),
	})
	if err != nil {
		return false, fmt.Errorf("guard for step %s failed: %w", step.ID, err)
	}

	allowed, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("guard for step %s did not return a boolean", step.ID)
	}
	return allowed, nil
}
