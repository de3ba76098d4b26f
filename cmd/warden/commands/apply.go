package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/policywarden/warden/pkg/reconcile"
)

func newApplyCommand() *cobra.Command {
	var (
		autoApprove bool
		destroy     bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the changes required to reach the desired state",
		Long: `Compute a plan, evaluate the plan gates, and apply the change set under
the scope lock.

Apply re-reads the snapshot under the lock and refuses to run if its serial
moved since the plan was computed; the losing run of a race fails fast with
lock contention and mutates nothing. Gate violations at error severity or
above deny the apply before any change executes.

Unless --auto-approve is set, apply shows the plan and asks for confirmation
before changing anything.`,
		Example: `  # Review and apply pending changes
  warden apply

  # CI: apply without interactive approval
  warden apply --auto-approve

  # Remove every managed resource
  warden apply --destroy --auto-approve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log.Info().
				Str("config", configPath).
				Bool("destroy", destroy).
				Msg("Applying changes")

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

			renderPlan(plan)
			if !plan.HasChanges() {
				return nil
			}

			if !autoApprove {
				approved, err := confirm(cmd, "Do you want to perform these actions?")
				if err != nil {
					return err
				}
				if !approved {
					fmt.Println("\nApply cancelled.")
					return nil
				}
			}

			snap, err := driver.Apply(ctx, plan)
			if err != nil {
				return describeApplyError(err)
			}

			fmt.Printf("\n✅ Apply complete. State is at serial %d: %d created, %d updated, %d deleted.\n",
				snap.Serial, plan.Summary.ToCreate, plan.Summary.ToUpdate, plan.Summary.ToDelete)
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip interactive approval")
	cmd.Flags().BoolVar(&destroy, "destroy", false, "remove every managed resource")

	return cmd
}

// confirm prompts on the command's input stream and accepts only "yes".
func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	fmt.Printf("\n%s Only \"yes\" is accepted: ", prompt)

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read approval: %w", err)
	}
	return strings.TrimSpace(line) == "yes", nil
}

// describeApplyError attaches a recovery hint to the common apply failures.
func describeApplyError(err error) error {
	switch {
	case reconcile.IsLockContention(err):
		return fmt.Errorf("%w\n\nanother run holds the scope lock; wait for it to finish, or run \"warden state unlock\" if its holder crashed", err)
	case reconcile.IsStaleSerial(err):
		return fmt.Errorf("%w\n\nthe snapshot moved after this plan was computed; re-run \"warden plan\" and apply the fresh plan", err)
	case reconcile.IsGateDenied(err):
		return fmt.Errorf("%w\n\na plan gate denied this change set; review the reported violations", err)
	default:
		return err
	}
}
