package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/policywarden/warden/pkg/config"
	"github.com/policywarden/warden/pkg/pipeline"
	"github.com/policywarden/warden/pkg/rule"
	"github.com/policywarden/warden/pkg/state"
)

// validationReport is the machine-readable validate output.
type validationReport struct {
	OK          bool                     `json:"ok"`
	Workspace   string                   `json:"workspace,omitempty"`
	Definitions int                      `json:"definitions"`
	Assignments int                      `json:"assignments"`
	Rules       int                      `json:"rules"`
	Errors      []config.ValidationError `json:"errors,omitempty"`
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace documents",
		Long: `Validate the workspace file and every document it declares.

Validation parses the CUE workspace, checks every rule document listed under
documents.rules, loads the declared gates and the pipeline workflow, converts
the declared definitions and assignments into resources, and runs the
driver's semantic checks. Every problem is reported, not just the first, and
any problem makes the command exit non-zero.

Validation never needs credentials: it is the pull-request phase of the
pipeline.`,
		Example: `  # Validate the workspace in the current directory
  warden validate

  # Validate a specific workspace, reporting as JSON
  warden validate --config infra/warden.cue --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log.Info().
				Str("config", configPath).
				Msg("Validating workspace")

			cfg, baseDir, err := loadWorkspace(ctx)
			if err != nil {
				return err
			}

			report := validationReport{
				Workspace: cfg.Workspace.Name,
				Errors:    append([]config.ValidationError(nil), cfg.Errors...),
			}

			// Document checks only make sense over a workspace that
			// parsed; a broken workspace is reported as-is.
			if len(cfg.Errors) == 0 {
				report.Rules = checkRuleDocuments(cfg, baseDir, &report)
				checkPipelineDocument(cfg, baseDir, &report)
				checkDesired(ctx, cfg, baseDir, &report)
			}
			report.Definitions = len(cfg.Definitions)
			report.Assignments = len(cfg.Assignments)
			report.OK = len(report.Errors) == 0

			if jsonOutput {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to render report: %w", err)
				}
				fmt.Println(string(data))
			} else {
				printValidationReport(&report)
			}

			if !report.OK {
				return fmt.Errorf("validation failed with %d error(s)", len(report.Errors))
			}
			return nil
		},
	}

	return cmd
}

// checkRuleDocuments parses every standalone rule document listed under
// documents.rules, collecting an error per bad file instead of stopping at
// the first. Returns how many rules parsed.
func checkRuleDocuments(cfg *config.Config, baseDir string, report *validationReport) int {
	count := 0
	for _, entry := range resolvePaths(cfg.Workspace.Documents.Rules, baseDir) {
		info, err := os.Stat(entry)
		if err != nil {
			report.Errors = append(report.Errors, config.ValidationError{
				File:     entry,
				Message:  fmt.Sprintf("failed to stat rule path: %v", err),
				Severity: "error",
			})
			continue
		}

		files := []string{entry}
		if info.IsDir() {
			files = nil
			walkErr := filepath.Walk(entry, func(path string, fi os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !fi.IsDir() && strings.HasSuffix(path, ".json") {
					files = append(files, path)
				}
				return nil
			})
			if walkErr != nil {
				report.Errors = append(report.Errors, config.ValidationError{
					File:     entry,
					Message:  fmt.Sprintf("failed to walk rule directory: %v", walkErr),
					Severity: "error",
				})
				continue
			}
		}

		for _, file := range files {
			if _, err := rule.LoadFile(file); err != nil {
				report.Errors = append(report.Errors, config.ValidationError{
					File:     file,
					Message:  err.Error(),
					Severity: "error",
				})
				continue
			}
			count++
		}
	}
	return count
}

// checkPipelineDocument loads the declared workflow file, if any.
func checkPipelineDocument(cfg *config.Config, baseDir string, report *validationReport) {
	if cfg.Workspace.Documents.Pipeline == "" {
		return
	}
	path := cfg.Workspace.Documents.Pipeline
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	if _, err := pipeline.LoadWorkflow(path); err != nil {
		report.Errors = append(report.Errors, config.ValidationError{
			File:     path,
			Message:  err.Error(),
			Severity: "error",
		})
	}
}

// checkDesired converts the declared documents into resources and runs the
// driver's semantic checks over them. Building the driver also compiles the
// declared gates.
func checkDesired(ctx context.Context, cfg *config.Config, baseDir string, report *validationReport) {
	desired, err := desiredState(cfg, baseDir)
	if err != nil {
		report.Errors = append(report.Errors, config.ValidationError{
			Message:  err.Error(),
			Severity: "error",
		})
		return
	}

	// Semantic checks never touch the backend; a throwaway store
	// satisfies the driver.
	store, err := state.NewMemory(ctx)
	if err != nil {
		report.Errors = append(report.Errors, config.ValidationError{
			Message:  fmt.Sprintf("failed to open scratch store: %v", err),
			Severity: "error",
		})
		return
	}
	defer store.Close()

	driver, err := buildDriver(ctx, cfg, store, baseDir)
	if err != nil {
		report.Errors = append(report.Errors, config.ValidationError{
			Message:  err.Error(),
			Severity: "error",
		})
		return
	}

	for _, err := range driver.Validate(ctx, desired) {
		report.Errors = append(report.Errors, config.ValidationError{
			Message:  err.Error(),
			Severity: "error",
		})
	}
}

func printValidationReport(r *validationReport) {
	if r.OK {
		fmt.Printf("✓ Workspace %q is valid\n", r.Workspace)
		fmt.Printf("  %d definition(s), %d assignment(s), %d standalone rule(s)\n",
			r.Definitions, r.Assignments, r.Rules)
		return
	}
	for _, e := range r.Errors {
		fmt.Printf("✗ %s\n", formatConfigError(e))
	}
}
