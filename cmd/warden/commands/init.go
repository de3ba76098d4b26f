package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the workspace backend",
		Long: `Initialize the state backend for a workspace and verify that the
environment can run plans against it.

Init opens (or creates) the SQLite backend named by the workspace file, runs
schema migrations, loads credentials from the ARM_* environment variables,
and checks that the acting subject may read the workspace scope. A missing
credential is an authentication failure; a missing read grant is an
authorization failure.`,
		Example: `  # Initialize the workspace in the current directory
  warden init

  # Initialize a specific workspace file
  warden init --config infra/warden.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log.Info().
				Str("config", configPath).
				Msg("Initializing workspace")

			cfg, baseDir, err := loadWorkspace(ctx)
			if err != nil {
				return err
			}
			if len(cfg.Errors) > 0 {
				return printConfigErrors(cfg.Errors)
			}
			for _, d := range cfg.Deprecations {
				log.Warn().Msg(d)
			}

			store, err := openStore(ctx, cfg, baseDir)
			if err != nil {
				return fmt.Errorf("failed to open state backend: %w", err)
			}
			defer store.Close()

			backend := cfg.Workspace.BackendOrDefault()
			fmt.Printf("✓ State backend ready: %s (%s)\n", backend.Path, backend.Type)

			driver, err := buildDriver(ctx, cfg, store, baseDir)
			if err != nil {
				return err
			}
			if err := driver.Init(ctx); err != nil {
				return err
			}
			fmt.Printf("✓ Credentials verified for %s\n", driver.Subject())

			snap, err := store.ReadSnapshot(ctx, driver.Scope().String())
			if err != nil {
				return fmt.Errorf("failed to read snapshot: %w", err)
			}
			fmt.Printf("✓ Workspace %q at %s, state serial %d\n",
				cfg.Workspace.Name, driver.Scope(), snap.Serial)

			fmt.Printf("\n✅ Workspace initialized successfully!\n\n")
			fmt.Printf("Next steps:\n")
			fmt.Printf("  1. Check the declared documents:\n")
			fmt.Printf("     warden validate\n\n")
			fmt.Printf("  2. Review the pending changes:\n")
			fmt.Printf("     warden plan\n\n")

			return nil
		},
	}

	return cmd
}
