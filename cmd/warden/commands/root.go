package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// ExitChanges is the exit code plan --detailed-exitcode reports when the
// plan contains changes. It signals "review needed", not failure.
const ExitChanges = 2

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

// ExitCode maps a command error to a process exit code. Plain errors exit 1.
func ExitCode(err error) int {
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return 1
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "warden",
		Short: "Warden - Policy-as-Code Control Plane",
		Long: `Warden manages cloud governance policy as code: JSON rule documents become
policy definitions and assignments, a reconciliation driver converges them
against a locked, serial-versioned state snapshot, and Rego plan gates decide
whether a change set may be applied.

Features:
  - Typed workspace configs via CUE
  - Policy rules with a single-operator condition language
  - validate / plan / apply against locked, versioned state
  - Plan gates evaluated between plan and apply
  - Two-phase CI pipeline: validate on pull request, apply on merge
  - Admission evaluation of proposed resources`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		// main logs command failures itself; cobra's own reporting would
		// print them twice.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "workspace file path (default warden.cue)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newEvalCommand())
	rootCmd.AddCommand(newPipelineCommand())
	rootCmd.AddCommand(newStateCommand())

	return rootCmd
}
