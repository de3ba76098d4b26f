package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/policywarden/warden/pkg/resource"
	"github.com/policywarden/warden/pkg/state"
)

func newStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and manage workspace state",
	}

	cmd.AddCommand(newStateShowCommand())
	cmd.AddCommand(newStateAuditCommand())
	cmd.AddCommand(newStateUnlockCommand())

	return cmd
}

func newStateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current snapshot, lock, and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

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

			scope, err := resource.ParseScope(cfg.Workspace.Scope)
			if err != nil {
				return fmt.Errorf("invalid workspace scope: %w", err)
			}

			snap, err := store.ReadSnapshot(ctx, scope.String())
			if err != nil {
				return fmt.Errorf("failed to read snapshot: %w", err)
			}

			lock, err := store.GetLock(ctx, scope.String())
			if err != nil && !errors.Is(err, state.ErrLockNotFound) {
				return fmt.Errorf("failed to read lock: %w", err)
			}

			runs, err := store.ListRuns(ctx, 5, 0)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if jsonOutput {
				out := struct {
					Workspace string          `json:"workspace"`
					Snapshot  *state.Snapshot `json:"snapshot"`
					Lock      *state.Lock     `json:"lock,omitempty"`
					Runs      []*state.Run    `json:"runs,omitempty"`
				}{cfg.Workspace.Name, snap, lock, runs}

				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to render state: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			renderStateShow(cfg.Workspace.Name, snap, lock, runs)
			return nil
		},
	}
}

func renderStateShow(workspace string, snap *state.Snapshot, lock *state.Lock, runs []*state.Run) {
	fmt.Printf("Workspace %q\n", workspace)
	fmt.Printf("Scope:  %s\n", snap.Scope)

	if snap.Serial == 0 {
		fmt.Println("Serial: 0 (never written; run 'warden apply')")
	} else {
		fmt.Printf("Serial: %d (taken %s)\n", snap.Serial, snap.TakenAt.Format(time.RFC3339))
	}

	if lock != nil {
		fmt.Printf("Lock:   held by %s since %s (id %s)\n",
			lock.Holder, lock.CreatedAt.Format(time.RFC3339), lock.ID)
	} else {
		fmt.Println("Lock:   not held")
	}

	fmt.Printf("\nDefinitions (%d):\n", len(snap.Definitions))
	for _, def := range snap.Definitions {
		fmt.Printf("  %s", def.Name)
		if def.DisplayName != "" {
			fmt.Printf("  %q", def.DisplayName)
		}
		fmt.Println()
	}

	fmt.Printf("\nAssignments (%d):\n", len(snap.Assignments))
	for _, asn := range snap.Assignments {
		fmt.Printf("  %s -> %s at %s\n", asn.Name, asn.DefinitionRef, asn.Scope.String())
	}

	if len(runs) > 0 {
		fmt.Println("\nRecent runs:")
		for _, run := range runs {
			fmt.Printf("  %-8s %-9s %s  %d change(s)\n",
				run.Phase, run.Status, run.StartedAt.Format(time.RFC3339), run.Changes)
		}
	}
}

func newStateAuditCommand() *cobra.Command {
	var (
		scopeFlag string
		all       bool
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail",
		Long: `Show the audit trail: admission decisions, applied changes, lock breaks.

Entries are scoped to the workspace scope unless --scope narrows or --all
widens the filter. Newest entries come first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

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

			var scopeFilter *string
			if !all {
				raw := scopeFlag
				if raw == "" {
					raw = cfg.Workspace.Scope
				}
				scope, err := resource.ParseScope(raw)
				if err != nil {
					return fmt.Errorf("invalid scope: %w", err)
				}
				s := scope.String()
				scopeFilter = &s
			}

			entries, err := store.ListAudit(ctx, scopeFilter, limit, 0)
			if err != nil {
				return fmt.Errorf("failed to list audit entries: %w", err)
			}

			if jsonOutput {
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to render audit trail: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			if len(entries) == 0 {
				fmt.Println("No audit entries.")
				return nil
			}
			for _, entry := range entries {
				fmt.Printf("%s  %-20s %-12s actor=%s",
					entry.Timestamp.Format(time.RFC3339), entry.Action, entry.Outcome, entry.Actor)
				if entry.Resource != nil {
					fmt.Printf("  resource=%s", *entry.Resource)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "filter entries to this scope (default: the workspace scope)")
	cmd.Flags().BoolVar(&all, "all", false, "show entries for every scope")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")

	return cmd
}

func newStateUnlockCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "unlock [lock-id]",
		Short: "Break a held state lock",
		Long: `Break a held state lock.

Without a lock id the lock held at the workspace scope is broken. Only break
a lock whose holder is gone for good; breaking a live holder's lock lets two
writers race and one of them will fail with a stale serial.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

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

			scope, err := resource.ParseScope(cfg.Workspace.Scope)
			if err != nil {
				return fmt.Errorf("invalid workspace scope: %w", err)
			}

			lockID := ""
			if len(args) == 1 {
				lockID = args[0]
			} else {
				lock, err := store.GetLock(ctx, scope.String())
				if err != nil {
					if errors.Is(err, state.ErrLockNotFound) {
						return fmt.Errorf("no lock is held at %s", scope.String())
					}
					return fmt.Errorf("failed to read lock: %w", err)
				}
				lockID = lock.ID
				fmt.Printf("Lock %s held by %s since %s\n",
					lock.ID, lock.Holder, lock.CreatedAt.Format(time.RFC3339))
			}

			if !force {
				ok, err := confirm(cmd, "Break this lock? Only do this when the holder is gone.")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Unlock cancelled.")
					return nil
				}
			}

			if err := store.BreakLock(ctx, lockID); err != nil {
				if errors.Is(err, state.ErrLockNotFound) {
					return fmt.Errorf("lock %s not found", lockID)
				}
				return fmt.Errorf("failed to break lock: %w", err)
			}

			if err := store.AppendAudit(ctx, &state.AuditEntry{
				Scope:    scope.String(),
				Actor:    "cli",
				Action:   "lock.broken",
				Resource: &lockID,
				Outcome:  "broken",
			}); err != nil {
				log.Warn().Err(err).Msg("Failed to record audit entry")
			}

			fmt.Printf("✅ Lock %s broken.\n", lockID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "break the lock without confirmation")

	return cmd
}
