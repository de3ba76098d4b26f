// Package pipeline implements the two-phase CI state machine that drives
// Warden runs: validate on pull request, apply on push to main.
//
// A run is an explicit enum-tagged state machine, not a set of
// job-conditional flags. Pull-request events enter validating and end
// validated or rejected; pushes to main enter applying and end applied or
// failed. There is deliberately no edge from validated to applying: the
// merge itself is the trigger for an apply run.
//
// Workflows are YAML documents of jobs with sequential steps. Each step
// names a well-known kind (init, validate, plan, apply, eval) and may
// carry an `if:` guard compiled with expr-lang against the event type,
// branch, and run state. Step execution is single-threaded and fail-stop:
// the first failing step halts the run and its error is surfaced verbatim.
//
//	wf, err := pipeline.LoadWorkflow("warden-pipeline.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	runner, err := pipeline.NewRunner(wf, map[pipeline.StepKind]pipeline.StepFunc{
//	    pipeline.StepInit:     initStep,
//	    pipeline.StepValidate: validateStep,
//	    pipeline.StepPlan:     planStep,
//	    pipeline.StepApply:    applyStep,
//	}, logger)
//
//	result, err := runner.Run(ctx, pipeline.Event{
//	    Type:   pipeline.EventPush,
//	    Branch: "main",
//	})
//
// Concurrent runs against the same scope are serialized by the state
// store's lock, not by the pipeline: the second apply fails fast with a
// lock-contention error and mutates nothing.
package pipeline
