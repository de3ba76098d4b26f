package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/policywarden/warden/pkg/rule"
)

// recordingSteps returns a full StepFunc map that appends each executed
// kind to calls. Kinds listed in failures return their error.
func recordingSteps(calls *[]StepKind, failures map[StepKind]error) map[StepKind]StepFunc {
	steps := make(map[StepKind]StepFunc)
	for _, kind := range []StepKind{StepInit, StepValidate, StepPlan, StepApply, StepEval} {
		kind := kind
		steps[kind] = func(ctx context.Context, event Event) error {
			*calls = append(*calls, kind)
			if failures != nil {
				if err, ok := failures[kind]; ok {
					return err
				}
			}
			return nil
		}
	}
	return steps
}

func newTestRunner(t *testing.T, wf *Workflow, calls *[]StepKind, failures map[StepKind]error) *Runner {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	runner, err := NewRunner(wf, recordingSteps(calls, failures), logger)
	if err != nil {
		t.Fatalf("Failed to create runner: %v", err)
	}
	return runner
}

func TestRunValidatePath(t *testing.T) {
	var calls []StepKind
	runner := newTestRunner(t, DefaultWorkflow(), &calls, nil)

	result, err := runner.Run(context.Background(), Event{
		Type:   EventPullRequest,
		Branch: "feature/allowed-locations",
		SHA:    "abc123",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.State != StateValidated {
		t.Errorf("Expected state validated, got %s", result.State)
	}

	want := []StepKind{StepInit, StepValidate, StepPlan}
	if len(calls) != len(want) {
		t.Fatalf("Expected calls %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("Step %d: expected %s, got %s", i, want[i], calls[i])
		}
	}

	for _, kind := range calls {
		if kind == StepApply {
			t.Error("Pull-request run must never apply")
		}
	}
}

func TestRunApplyPath(t *testing.T) {
	var calls []StepKind
	runner := newTestRunner(t, DefaultWorkflow(), &calls, nil)

	result, err := runner.Run(context.Background(), Event{
		Type:   EventPush,
		Branch: "main",
		SHA:    "def456",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.State != StateApplied {
		t.Errorf("Expected state applied, got %s", result.State)
	}

	want := []StepKind{StepInit, StepPlan, StepApply}
	if len(calls) != len(want) {
		t.Fatalf("Expected calls %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("Step %d: expected %s, got %s", i, want[i], calls[i])
		}
	}
}

// A pull-request run over a broken rule document rejects and never reaches
// apply; the push run after the fix applies.
func TestRunRejectsBrokenDocument(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	var applied bool
	brokenDoc := []byte(`{"if": {"field": "location", "notEquals": }`)

	steps := map[StepKind]StepFunc{
		StepInit: func(ctx context.Context, event Event) error { return nil },
		StepValidate: func(ctx context.Context, event Event) error {
			_, err := rule.Parse(brokenDoc)
			return err
		},
		StepPlan: func(ctx context.Context, event Event) error {
			t.Error("Plan must not run after a failed validate")
			return nil
		},
		StepApply: func(ctx context.Context, event Event) error {
			applied = true
			return nil
		},
	}

	runner, err := NewRunner(DefaultWorkflow(), steps, logger)
	if err != nil {
		t.Fatalf("Failed to create runner: %v", err)
	}

	result, err := runner.Run(context.Background(), Event{
		Type:   EventPullRequest,
		Branch: "feature/broken",
	})
	if err == nil {
		t.Fatal("Expected run to fail")
	}

	if result.State != StateRejected {
		t.Errorf("Expected state rejected, got %s", result.State)
	}
	if result.FailedStep != "validate/validate" {
		t.Errorf("Expected failing step validate/validate, got %s", result.FailedStep)
	}
	if applied {
		t.Error("Apply must never run for a pull-request event")
	}

	// The merge triggers a separate apply run; the rejected run never
	// transitions into it.
	brokenDoc = []byte(`{"if": {"field": "location", "notEquals": "eastus"}, "then": {"effect": "deny"}}`)
	result, err = runner.Run(context.Background(), Event{Type: EventPush, Branch: "main"})
	if err != nil {
		t.Fatalf("Apply run failed: %v", err)
	}
	if result.State != StateApplied {
		t.Errorf("Expected state applied, got %s", result.State)
	}
	if !applied {
		t.Error("Push to main must reach the apply step")
	}
}

func TestRunApplyFailureHalts(t *testing.T) {
	var calls []StepKind
	stepErr := errors.New("lock is held by runner-2")
	runner := newTestRunner(t, DefaultWorkflow(), &calls, map[StepKind]error{
		StepApply: stepErr,
	})

	result, err := runner.Run(context.Background(), Event{Type: EventPush, Branch: "main"})
	if err == nil {
		t.Fatal("Expected run to fail")
	}
	if !errors.Is(err, stepErr) {
		t.Errorf("Expected step error to be surfaced verbatim, got %v", err)
	}

	if result.State != StateFailed {
		t.Errorf("Expected state failed, got %s", result.State)
	}
	if result.FailedStep != "apply/apply" {
		t.Errorf("Expected failing step apply/apply, got %s", result.FailedStep)
	}

	last := result.Steps[len(result.Steps)-1]
	if last.Error == "" || !strings.Contains(last.Error, "lock is held") {
		t.Errorf("Expected step result to record the error, got %+v", last)
	}
}

func TestRunPushToFeatureBranchSkipped(t *testing.T) {
	var calls []StepKind
	runner := newTestRunner(t, DefaultWorkflow(), &calls, nil)

	result, err := runner.Run(context.Background(), Event{
		Type:   EventPush,
		Branch: "feature/not-main",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.State != StateIdle {
		t.Errorf("Push to a feature branch must stay idle, got %s", result.State)
	}
	if len(calls) != 0 {
		t.Errorf("Expected no steps to run, got %v", calls)
	}
}

func TestRunInvalidEvent(t *testing.T) {
	var calls []StepKind
	runner := newTestRunner(t, DefaultWorkflow(), &calls, nil)

	result, err := runner.Run(context.Background(), Event{Type: "cron"})
	if err == nil {
		t.Fatal("Expected error for invalid event")
	}
	if result.State != StateIdle {
		t.Errorf("Expected state idle, got %s", result.State)
	}
}

func TestStepGuardSkips(t *testing.T) {
	wf := &Workflow{
		Name: "guarded",
		Jobs: []Job{
			{
				ID: "validate",
				On: EventPullRequest,
				Steps: []Step{
					{ID: "validate", Run: StepValidate},
					{ID: "eval", Run: StepEval, If: `event == "push"`},
					{ID: "plan", Run: StepPlan, If: `state == "validating"`},
				},
			},
		},
	}

	var calls []StepKind
	runner := newTestRunner(t, wf, &calls, nil)

	result, err := runner.Run(context.Background(), Event{Type: EventPullRequest, Branch: "feature/x"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.State != StateValidated {
		t.Errorf("Expected state validated, got %s", result.State)
	}

	// eval is guarded on push and skipped; plan's guard sees the
	// validating state and runs.
	want := []StepKind{StepValidate, StepPlan}
	if len(calls) != len(want) || calls[0] != want[0] || calls[1] != want[1] {
		t.Fatalf("Expected calls %v, got %v", want, calls)
	}

	if len(result.Steps) != 3 {
		t.Fatalf("Expected 3 step results, got %d", len(result.Steps))
	}
	if !result.Steps[1].Skipped {
		t.Error("Expected eval step to be recorded as skipped")
	}
	if result.Steps[2].Skipped {
		t.Error("Expected plan step to run")
	}
}

func TestNewRunnerMissingStepFunc(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	_, err := NewRunner(DefaultWorkflow(), map[StepKind]StepFunc{
		StepInit: func(ctx context.Context, event Event) error { return nil },
	}, logger)
	if err == nil {
		t.Fatal("Expected error for missing step functions")
	}
	if !strings.Contains(err.Error(), "no step function") {
		t.Errorf("Expected missing step function error, got %v", err)
	}
}

func TestNewRunnerInvalidGuard(t *testing.T) {
	wf := &Workflow{
		Name: "bad-guard",
		Jobs: []Job{
			{
				ID: "validate",
				On: EventPullRequest,
				Steps: []Step{
					{ID: "validate", Run: StepValidate, If: "(("},
				},
			},
		},
	}

	var calls []StepKind
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	_, err := NewRunner(wf, recordingSteps(&calls, nil), logger)
	if err == nil {
		t.Fatal("Expected error for invalid guard expression")
	}
	if !strings.Contains(err.Error(), "failed to compile guard") {
		t.Errorf("Expected guard compile error, got %v", err)
	}
}
