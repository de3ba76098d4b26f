package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/policywarden/warden/pkg/cloud"
	"github.com/policywarden/warden/pkg/config"
	"github.com/policywarden/warden/pkg/gate"
	"github.com/policywarden/warden/pkg/reconcile"
	"github.com/policywarden/warden/pkg/resource"
	"github.com/policywarden/warden/pkg/state"
)

// defaultWorkspaceFile is looked up in the working directory when --config
// is not given.
const defaultWorkspaceFile = "warden.cue"

// locateWorkspace resolves the workspace file path from the --config flag
// or the working directory.
func locateWorkspace() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	if _, err := os.Stat(defaultWorkspaceFile); err != nil {
		return "", fmt.Errorf("no workspace file found: pass --config or create %s", defaultWorkspaceFile)
	}
	return defaultWorkspaceFile, nil
}

// loadWorkspace parses the workspace file. The returned baseDir anchors
// relative document and backend paths.
func loadWorkspace(ctx context.Context) (*config.Config, string, error) {
	path, err := locateWorkspace()
	if err != nil {
		return nil, "", err
	}

	parser := config.NewCUEParser(log.Logger)
	cfg, err := parser.Load(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load workspace: %w", err)
	}
	return cfg, filepath.Dir(path), nil
}

// printConfigErrors renders configuration errors for humans and returns an
// error carrying the count.
func printConfigErrors(errs []config.ValidationError) error {
	for _, e := range errs {
		fmt.Printf("✗ %s\n", formatConfigError(e))
	}
	return fmt.Errorf("workspace has %d configuration error(s)", len(errs))
}

func formatConfigError(e config.ValidationError) string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		fmt.Fprintf(&b, "%s: ", e.Path)
	}
	b.WriteString(strings.TrimSpace(e.Message))
	return b.String()
}

// openStore opens the configured state backend and runs migrations.
// Relative local paths resolve against the workspace directory.
func openStore(ctx context.Context, cfg *config.Config, baseDir string) (*state.SQLiteStore, error) {
	backend := cfg.Workspace.BackendOrDefault()
	if backend.Type == "memory" {
		return state.NewMemory(ctx)
	}

	path := backend.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return state.New(ctx, path)
}

// buildDriver wires the store, the authorizer, and the gate engine into a
// reconciliation driver. Init is left to the caller: validate-only paths
// run without credentials.
func buildDriver(ctx context.Context, cfg *config.Config, store state.Store, baseDir string) (*reconcile.Driver, error) {
	scope, err := resource.ParseScope(cfg.Workspace.Scope)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace scope: %w", err)
	}

	authz, err := buildAuthorizer(cfg)
	if err != nil {
		return nil, err
	}

	engine, err := gate.NewEngine(log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build gate engine: %w", err)
	}
	if paths := resolvePaths(cfg.Workspace.Documents.Gates, baseDir); len(paths) > 0 {
		if err := engine.LoadPaths(ctx, paths); err != nil {
			return nil, err
		}
	}

	return reconcile.NewDriver(reconcile.Config{
		Store:      store,
		Scope:      scope,
		Authorizer: authz,
		Gates:      engine,
		Logger:     log.Logger,
	})
}

// buildAuthorizer seeds an authorizer from the workspace grants. A workspace
// without grants runs without an authorizer, which allows everything.
func buildAuthorizer(cfg *config.Config) (*cloud.Authorizer, error) {
	if len(cfg.Workspace.Grants) == 0 {
		return nil, nil
	}

	grants := make([]cloud.Grant, 0, len(cfg.Workspace.Grants))
	for _, g := range cfg.Workspace.Grants {
		scope := g.Scope
		if scope == "" {
			scope = cfg.Workspace.Scope
		}
		grants = append(grants, cloud.Grant{Subject: g.Subject, Role: g.Role, Scope: scope})
	}
	return cloud.NewAuthorizer(grants)
}

// resolvePaths anchors relative paths at the workspace directory.
func resolvePaths(paths []string, baseDir string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		out = append(out, p)
	}
	return out
}

// desiredState converts the declared documents into the desired resources.
func desiredState(cfg *config.Config, baseDir string) (*reconcile.Desired, error) {
	defs, asgs, err := cfg.Desired(baseDir)
	if err != nil {
		return nil, err
	}
	return &reconcile.Desired{Definitions: defs, Assignments: asgs}, nil
}
