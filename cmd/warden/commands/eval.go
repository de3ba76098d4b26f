package commands

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/policywarden/warden/pkg/cloud"
	"github.com/policywarden/warden/pkg/resource"
)

func newEvalCommand() *cobra.Command {
	var (
		resourceType string
		name         string
		kind         string
		location     string
		scopeStr     string
		requester    string
		tags         map[string]string
		propsJSON    string
		record       bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a proposed resource against the assignments in force",
		Long: `Run admission control for a proposed resource without a cloud round trip.

The request is checked against every applied assignment whose scope contains
the request's scope. A deny match blocks the request and the command exits
non-zero, naming the assignment and definition that denied it. Audit matches
are reported as findings; append matches merge their details into the
effective properties.

With --record, an allowed request is also written to the resource inventory
and the decision lands in the audit trail, as a provisioning pipeline would
do.`,
		Example: `  # Would this resource group be admitted?
  warden eval --type Microsoft.Resources/resourceGroups --name app-rg \
    --location westus

  # Check a resource against a narrower scope, with tags
  warden eval --type Microsoft.Storage/storageAccounts --name appdata \
    --scope /subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/app-rg \
    --location eastus --tag env=prod --tag costCenter=cc-42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log.Info().
				Str("type", resourceType).
				Str("name", name).
				Msg("Evaluating resource request")

			cfg, baseDir, err := loadWorkspace(ctx)
			if err != nil {
				return err
			}
			if len(cfg.Errors) > 0 {
				return printConfigErrors(cfg.Errors)
			}

			if scopeStr == "" {
				scopeStr = cfg.Workspace.Scope
			}
			scope, err := resource.ParseScope(scopeStr)
			if err != nil {
				return err
			}

			var properties map[string]any
			if propsJSON != "" {
				if err := json.Unmarshal([]byte(propsJSON), &properties); err != nil {
					return fmt.Errorf("invalid --properties JSON: %w", err)
				}
			}

			store, err := openStore(ctx, cfg, baseDir)
			if err != nil {
				return fmt.Errorf("failed to open state backend: %w", err)
			}
			defer store.Close()

			req := cloud.ResourceRequest{
				Scope:      scope,
				Type:       resourceType,
				Name:       name,
				Kind:       kind,
				Location:   location,
				Tags:       tags,
				Properties: properties,
				Requester:  requester,
			}

			admission := cloud.NewAdmission(store, log.Logger)
			var result *cloud.AdmissionResult
			if record {
				result, err = admission.Create(ctx, req)
			} else {
				result, err = admission.Check(ctx, req)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to render result: %w", err)
				}
				fmt.Println(string(data))
			} else {
				renderAdmission(&req, result)
			}

			if !result.Allowed {
				return fmt.Errorf("resource request denied")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&resourceType, "type", "", "resource type, e.g. Microsoft.Resources/resourceGroups")
	cmd.Flags().StringVar(&name, "name", "", "resource name")
	cmd.Flags().StringVar(&kind, "kind", "", "provider-specific sub-type")
	cmd.Flags().StringVar(&location, "location", "", "resource location")
	cmd.Flags().StringVar(&scopeStr, "scope", "", "scope the resource would live at (default: workspace scope)")
	cmd.Flags().StringVar(&requester, "requester", "cli", "requester identity for the audit trail")
	cmd.Flags().StringToStringVar(&tags, "tag", nil, "resource tag as key=value (repeatable)")
	cmd.Flags().StringVar(&propsJSON, "properties", "", "additional resource properties as a JSON object")
	cmd.Flags().BoolVar(&record, "record", false, "record the decision and, when allowed, the inventory entry")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("name")

	return cmd
}

func renderAdmission(req *cloud.ResourceRequest, result *cloud.AdmissionResult) {
	if result.Allowed {
		fmt.Printf("✓ admitted: %s %q at %s\n", req.Type, req.Name, req.Scope)
	} else {
		fmt.Printf("✗ denied: %s %q at %s\n", req.Type, req.Name, req.Scope)
		for _, d := range result.Denials {
			fmt.Printf("    %s\n", d)
		}
	}
	for _, f := range result.Findings {
		fmt.Printf("    [%s] assignment %q (definition %q): %s\n",
			f.Effect, f.Assignment, f.Definition, f.Message)
	}
}
