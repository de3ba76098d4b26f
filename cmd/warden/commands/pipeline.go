package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/policywarden/warden/pkg/cloud"
	"github.com/policywarden/warden/pkg/config"
	"github.com/policywarden/warden/pkg/pipeline"
	"github.com/policywarden/warden/pkg/reconcile"
	"github.com/policywarden/warden/pkg/resource"
	"github.com/policywarden/warden/pkg/state"
)

func newPipelineCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run CI pipeline workflows",
	}

	cmd.AddCommand(newPipelineRunCommand())

	return cmd
}

func newPipelineRunCommand() *cobra.Command {
	var (
		eventType string
		branch    string
		sha       string
		actor     string
		file      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the workflow for a trigger event",
		Long: `Execute the pipeline workflow for one trigger event.

The workflow comes from --file, from the workspace's documents.pipeline
entry, or falls back to the built-in two-phase workflow: validate on pull
request, apply on push to main. Pull-request events run the validate phase
and never apply; push events to a matching branch run the apply phase. An
event no job matches leaves the run idle and exits 0.

A failing step halts the run at that step, the run ends rejected or failed,
and the command exits non-zero.`,
		Example: `  # Run the validate phase, as CI would on a pull request
  warden pipeline run --event pull_request

  # Run the apply phase for a merge to main
  warden pipeline run --event push --branch main --actor ci-bot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log.Info().
				Str("event", eventType).
				Str("branch", branch).
				Msg("Starting pipeline run")

			wf, err := resolveWorkflow(ctx, file)
			if err != nil {
				return err
			}

			env := &stepEnv{}
			defer env.close()

			runner, err := pipeline.NewRunner(wf, pipelineSteps(env), log.Logger)
			if err != nil {
				return err
			}

			event := pipeline.Event{
				Type:   pipeline.EventType(eventType),
				Branch: branch,
				SHA:    sha,
				Actor:  actor,
			}

			result, runErr := runner.Run(ctx, event)

			if jsonOutput {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to render result: %w", err)
				}
				fmt.Println(string(data))
			} else {
				renderRunResult(result)
			}

			return runErr
		},
	}

	cmd.Flags().StringVar(&eventType, "event", "", "trigger event type (pull_request or push)")
	cmd.Flags().StringVar(&branch, "branch", "", "branch the event happened on")
	cmd.Flags().StringVar(&sha, "sha", "", "commit the run operates on")
	cmd.Flags().StringVar(&actor, "actor", "", "who caused the event")
	cmd.Flags().StringVar(&file, "file", "", "workflow file (default: the workspace documents.pipeline entry)")
	cmd.MarkFlagRequired("event")

	return cmd
}

// resolveWorkflow picks the workflow to run: the --file flag, the workspace's
// pipeline document, or the built-in two-phase workflow. Workspace errors are
// not fatal here; the validate step reports them so a broken workspace still
// produces a rejected run instead of no run.
func resolveWorkflow(ctx context.Context, file string) (*pipeline.Workflow, error) {
	if file != "" {
		return pipeline.LoadWorkflow(file)
	}

	cfg, baseDir, err := loadWorkspace(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Workspace.Documents.Pipeline == "" {
		return pipeline.DefaultWorkflow(), nil
	}

	path := cfg.Workspace.Documents.Pipeline
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return pipeline.LoadWorkflow(path)
}

func renderRunResult(result *pipeline.RunResult) {
	for _, sr := range result.Steps {
		switch {
		case sr.Skipped:
			fmt.Printf("  - %s/%s skipped\n", sr.JobID, sr.StepID)
		case sr.Error != "":
			fmt.Printf("  ✗ %s/%s failed after %s\n", sr.JobID, sr.StepID, sr.Duration)
		default:
			fmt.Printf("  ✓ %s/%s (%s)\n", sr.JobID, sr.StepID, sr.Duration)
		}
	}
	fmt.Printf("\nRun finished: %s\n", result.State)
}

// stepEnv lazily builds and shares the workspace plumbing between the steps
// of one pipeline run.
type stepEnv struct {
	cfg     *config.Config
	baseDir string
	store   *state.SQLiteStore
	driver  *reconcile.Driver
	plan    *reconcile.Plan
}

func (e *stepEnv) ensureWorkspace(ctx context.Context) error {
	if e.cfg != nil {
		return nil
	}
	cfg, baseDir, err := loadWorkspace(ctx)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.baseDir = baseDir
	return nil
}

func (e *stepEnv) ensureDriver(ctx context.Context) error {
	if e.driver != nil {
		return nil
	}
	if err := e.ensureWorkspace(ctx); err != nil {
		return err
	}
	if len(e.cfg.Errors) > 0 {
		return printConfigErrors(e.cfg.Errors)
	}

	store, err := openStore(ctx, e.cfg, e.baseDir)
	if err != nil {
		return fmt.Errorf("failed to open state backend: %w", err)
	}
	e.store = store

	driver, err := buildDriver(ctx, e.cfg, store, e.baseDir)
	if err != nil {
		return err
	}
	if err := driver.Init(ctx); err != nil {
		return err
	}
	e.driver = driver
	return nil
}

func (e *stepEnv) close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

// pipelineSteps binds the well-known step kinds to the shared environment.
func pipelineSteps(env *stepEnv) map[pipeline.StepKind]pipeline.StepFunc {
	return map[pipeline.StepKind]pipeline.StepFunc{
		pipeline.StepInit: func(ctx context.Context, _ pipeline.Event) error {
			return env.ensureDriver(ctx)
		},
		pipeline.StepValidate: func(ctx context.Context, _ pipeline.Event) error {
			return env.validateDocuments(ctx)
		},
		pipeline.StepPlan: func(ctx context.Context, _ pipeline.Event) error {
			return env.computePlan(ctx)
		},
		pipeline.StepApply: func(ctx context.Context, _ pipeline.Event) error {
			return env.applyPlan(ctx)
		},
		pipeline.StepEval: func(ctx context.Context, _ pipeline.Event) error {
			return env.checkInventory(ctx)
		},
	}
}

// validateDocuments runs the same checks as the validate command.
func (e *stepEnv) validateDocuments(ctx context.Context) error {
	if err := e.ensureWorkspace(ctx); err != nil {
		return err
	}

	report := validationReport{
		Workspace: e.cfg.Workspace.Name,
		Errors:    append([]config.ValidationError(nil), e.cfg.Errors...),
	}
	if len(e.cfg.Errors) == 0 {
		report.Rules = checkRuleDocuments(e.cfg, e.baseDir, &report)
		checkPipelineDocument(e.cfg, e.baseDir, &report)
		checkDesired(ctx, e.cfg, e.baseDir, &report)
	}

	if len(report.Errors) > 0 {
		for _, ve := range report.Errors {
			fmt.Printf("✗ %s\n", formatConfigError(ve))
		}
		return fmt.Errorf("%d document error(s)", len(report.Errors))
	}
	return nil
}

func (e *stepEnv) computePlan(ctx context.Context) error {
	if err := e.ensureDriver(ctx); err != nil {
		return err
	}

	desired, err := desiredState(e.cfg, e.baseDir)
	if err != nil {
		return err
	}

	plan, err := e.driver.Plan(ctx, desired, reconcile.PlanOptions{})
	if err != nil {
		return err
	}
	e.plan = plan
	renderPlan(plan)
	return nil
}

// applyPlan applies the plan the plan step computed, computing one first if
// the workflow skipped that step.
func (e *stepEnv) applyPlan(ctx context.Context) error {
	if e.plan == nil {
		if err := e.computePlan(ctx); err != nil {
			return err
		}
	}

	snap, err := e.driver.Apply(ctx, e.plan)
	if err != nil {
		return describeApplyError(err)
	}
	fmt.Printf("✅ Applied: state is at serial %d\n", snap.Serial)
	return nil
}

// checkInventory re-checks every resource recorded at the workspace scope
// against the assignments now in force. A record a deny rule matches fails
// the step: an assignment applied after the resource was admitted has
// outlawed it.
func (e *stepEnv) checkInventory(ctx context.Context) error {
	if err := e.ensureDriver(ctx); err != nil {
		return err
	}

	records, err := e.store.ListResources(ctx, e.driver.Scope().String())
	if err != nil {
		return fmt.Errorf("failed to list resource inventory: %w", err)
	}

	admission := cloud.NewAdmission(e.store, log.Logger)
	denied := 0
	for _, rec := range records {
		req, err := admissionRequest(rec)
		if err != nil {
			return err
		}
		result, err := admission.Check(ctx, *req)
		if err != nil {
			return err
		}
		if !result.Allowed {
			denied++
			for _, d := range result.Denials {
				fmt.Printf("✗ %s %q: %s\n", rec.Type, rec.Name, d)
			}
		}
	}

	if denied > 0 {
		return fmt.Errorf("%d recorded resource(s) violate the assignments in force", denied)
	}
	fmt.Printf("✓ %d recorded resource(s) comply with the assignments in force\n", len(records))
	return nil
}

// admissionRequest rebuilds the admission input from an inventory record.
// The record's properties blob already carries the flattened field map the
// original request was admitted with.
func admissionRequest(rec *state.ResourceRecord) (*cloud.ResourceRequest, error) {
	scope, err := resource.ParseScope(rec.Scope)
	if err != nil {
		return nil, fmt.Errorf("inventory record %s has an invalid scope: %w", rec.ID, err)
	}

	req := &cloud.ResourceRequest{
		Scope:    scope,
		Type:     rec.Type,
		Name:     rec.Name,
		Location: rec.Location,
	}
	if rec.Properties != "" {
		if err := json.Unmarshal([]byte(rec.Properties), &req.Properties); err != nil {
			return nil, fmt.Errorf("inventory record %s has invalid properties: %w", rec.ID, err)
		}
	}
	return req, nil
}
