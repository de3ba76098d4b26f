package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/policywarden/warden/pkg/reconcile"
)

func newPlanCommand() *cobra.Command {
	var (
		destroy          bool
		detailedExitcode bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the changes required to reach the desired state",
		Long: `Compute the change set that would move the state snapshot to the desired
state, without applying anything.

The plan is pinned to the snapshot's current serial; apply refuses to run it
if the serial moves in between. With --detailed-exitcode the command exits 0
for an empty plan, 2 when changes are pending, and 1 on error, letting CI
distinguish "nothing to do" from "review needed".`,
		Example: `  # Show pending changes
  warden plan

  # CI: exit 2 when changes are pending
  warden plan --detailed-exitcode

  # Plan the removal of every managed resource
  warden plan --destroy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log.Info().
				Str("config", configPath).
				Bool("destroy", destroy).
				Msg("Computing plan")

			cfg, baseDir, err := loadWorkspace(ctx)
			if err != nil {
				return err
			}
			if len(cfg.Errors) > 0 {
				return printConfigErrors(cfg.Errors)
			}

			store, err := openStore(ctx, cfg, baseDir)
			if err != nil {
				return fmt.Errorf("failed to open state backend: %w", err)
			}
			defer store.Close()

			driver, err := buildDriver(ctx, cfg, store, baseDir)
			if err != nil {
				return err
			}
			if err := driver.Init(ctx); err != nil {
				return err
			}

			desired, err := desiredState(cfg, baseDir)
			if err != nil {
				return err
			}

			plan, err := driver.Plan(ctx, desired, reconcile.PlanOptions{Destroy: destroy})
			if err != nil {
				return err
			}

			if jsonOutput {
				data, err := json.MarshalIndent(plan, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to render plan: %w", err)
				}
				fmt.Println(string(data))
			} else {
				renderPlan(plan)
			}

			if detailedExitcode && plan.HasChanges() {
				return &exitError{code: ExitChanges, message: "plan has pending changes"}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&destroy, "destroy", false, "plan the removal of every managed resource")
	cmd.Flags().BoolVar(&detailedExitcode, "detailed-exitcode", false, "exit 2 when the plan contains changes")

	return cmd
}

// actionSymbols maps plan actions to their rendered prefix.
var actionSymbols = map[reconcile.Action]string{
	reconcile.ActionCreate: "+",
	reconcile.ActionUpdate: "~",
	reconcile.ActionDelete: "-",
}

// renderPlan prints a plan in execution order, noops omitted.
func renderPlan(plan *reconcile.Plan) {
	if !plan.HasChanges() {
		fmt.Printf("No changes. Desired state matches the snapshot at serial %d.\n", plan.Serial)
		return
	}

	fmt.Printf("Plan for %s (serial %d):\n\n", plan.Scope, plan.Serial)
	for i := range plan.Changes {
		c := &plan.Changes[i]
		symbol, ok := actionSymbols[c.Action]
		if !ok {
			continue
		}
		fmt.Printf("  %s %s %q\n", symbol, c.Kind, c.Name)
		for _, d := range c.Diffs {
			fmt.Printf("      %s: %s -> %s\n", d.Path, renderValue(d.Before), renderValue(d.After))
		}
		if len(c.ReferencedBy) > 0 {
			fmt.Printf("      still referenced by: %s\n", strings.Join(c.ReferencedBy, ", "))
		}
	}
	fmt.Printf("\nSummary: %d to create, %d to update, %d to delete, %d unchanged.\n",
		plan.Summary.ToCreate, plan.Summary.ToUpdate, plan.Summary.ToDelete, plan.Summary.NoChange)
}

func renderValue(v interface{}) string {
	if v == nil {
		return "(none)"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}
