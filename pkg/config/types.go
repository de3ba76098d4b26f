package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/policywarden/warden/pkg/resource"
	"github.com/policywarden/warden/pkg/rule"
)

// Backend configures the state store. The local path backend is the only
// canonical form; anything else in a workspace file is a schema error.
type Backend struct {
	// Type is the backend type. Only "local" and "memory" are known;
	// memory exists for tests and throwaway runs.
	Type string `json:"type" validate:"required,oneof=local memory"`

	// Path is the SQLite database path for the local backend.
	Path string `json:"path,omitempty"`

	// LockTimeout bounds how long an apply waits on the state lock,
	// as a Go duration string.
	LockTimeout string `json:"lockTimeout,omitempty"`
}

// LockTimeoutDuration parses the lock timeout, defaulting to 30s.
func (b *Backend) LockTimeoutDuration() (time.Duration, error) {
	if b == nil || b.LockTimeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(b.LockTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid lockTimeout %q: %w", b.LockTimeout, err)
	}
	return d, nil
}

// RemoteWorkspace is the deprecated remote backend block. It is decoded so
// init can warn about it, and otherwise ignored: the local backend block is
// canonical.
type RemoteWorkspace struct {
	// Organization is the remote organization name.
	Organization string `json:"organization,omitempty"`

	// Name is the remote workspace name.
	Name string `json:"name,omitempty"`
}

// Documents points at the on-disk policy documents a workspace manages.
type Documents struct {
	// Rules lists files and directories of JSON rule documents.
	Rules []string `json:"rules,omitempty"`

	// Generators lists Starlark files that produce definition documents.
	Generators []string `json:"generators,omitempty"`

	// Gates lists files and directories of plan gate policies.
	Gates []string `json:"gates,omitempty"`

	// Pipeline is the workflow YAML file for pipeline runs.
	Pipeline string `json:"pipeline,omitempty"`
}

// GrantConfig seeds one authorization grant from the workspace file.
type GrantConfig struct {
	// Subject is the client id receiving the role.
	Subject string `json:"subject" validate:"required"`

	// Role is one of the built-in role names.
	Role string `json:"role" validate:"required,oneof=owner policy-contributor auditor"`

	// Scope is the scope the role applies at. Defaults to the workspace
	// scope.
	Scope string `json:"scope,omitempty"`
}

// Workspace is the decoded workspace block of a warden.cue file.
type Workspace struct {
	// Name is the workspace name.
	Name string `json:"name" validate:"required"`

	// Scope is the default scope for documents that do not declare one.
	Scope string `json:"scope" validate:"required"`

	// Backend configures state storage.
	Backend *Backend `json:"backend,omitempty"`

	// RemoteWorkspace is the deprecated remote backend block.
	RemoteWorkspace *RemoteWorkspace `json:"remoteWorkspace,omitempty"`

	// Documents points at rule, generator, gate, and pipeline files.
	Documents Documents `json:"documents,omitempty"`

	// Grants seed the authorizer.
	Grants []GrantConfig `json:"grants,omitempty" validate:"omitempty,dive"`

	// Variables are workspace-level variables passed to generators.
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// BackendOrDefault returns the canonical backend, defaulting to a local
// store at warden.db next to the workspace file.
func (w *Workspace) BackendOrDefault() Backend {
	if w.Backend != nil {
		return *w.Backend
	}
	return Backend{Type: "local", Path: "warden.db"}
}

// DefinitionDoc declares a policy definition in the workspace file. The
// rule may be inline or referenced by file.
type DefinitionDoc struct {
	// Name uniquely identifies the definition within its scope.
	Name string `json:"name" validate:"required"`

	// DisplayName is the human-readable name.
	DisplayName string `json:"displayName,omitempty"`

	// Description explains what the policy enforces.
	Description string `json:"description,omitempty"`

	// Scope overrides the workspace scope for this definition.
	Scope string `json:"scope,omitempty"`

	// Mode is All or Indexed. Defaults to All.
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=All Indexed"`

	// PolicyType is Custom or BuiltIn. Defaults to Custom.
	PolicyType string `json:"policyType,omitempty" validate:"omitempty,oneof=Custom BuiltIn"`

	// Rule is the inline rule document.
	Rule json.RawMessage `json:"rule,omitempty"`

	// RuleFile references a rule document on disk, relative to the
	// workspace file.
	RuleFile string `json:"ruleFile,omitempty"`
}

// AssignmentDoc declares a policy assignment in the workspace file.
type AssignmentDoc struct {
	// Name uniquely identifies the assignment within its scope.
	Name string `json:"name" validate:"required"`

	// DisplayName is the human-readable name.
	DisplayName string `json:"displayName,omitempty"`

	// Definition names the policy definition this assignment enforces.
	Definition string `json:"definition" validate:"required"`

	// Scope overrides the workspace scope for this assignment.
	Scope string `json:"scope,omitempty"`
}

// ValidationError is a configuration error with source location.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g. "workspace.backend").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is error, warning, or info.
	Severity string `json:"severity"`
}

// Config is the fully parsed workspace configuration.
type Config struct {
	// Workspace is the workspace block.
	Workspace Workspace `json:"workspace"`

	// Definitions are the declared policy definitions.
	Definitions []DefinitionDoc `json:"definitions,omitempty"`

	// Assignments are the declared policy assignments.
	Assignments []AssignmentDoc `json:"assignments,omitempty"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the configuration was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists validation errors. A config with errors must not be
	// planned or applied.
	Errors []ValidationError `json:"errors,omitempty"`

	// Deprecations lists accepted-but-deprecated constructs for init to
	// warn about.
	Deprecations []string `json:"deprecations,omitempty"`
}

// StarlarkResult is the outcome of one generator evaluation.
type StarlarkResult struct {
	// Output holds the script's exported globals.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script ran.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}

// Desired converts the declared documents into policy resources. Relative
// rule files resolve against baseDir. Scopes default to the workspace
// scope.
func (c *Config) Desired(baseDir string) ([]resource.PolicyDefinition, []resource.PolicyAssignment, error) {
	defs := make([]resource.PolicyDefinition, 0, len(c.Definitions))
	for i := range c.Definitions {
		def, err := c.Definitions[i].ToResource(c.Workspace.Scope, baseDir)
		if err != nil {
			return nil, nil, err
		}
		defs = append(defs, *def)
	}

	asgs := make([]resource.PolicyAssignment, 0, len(c.Assignments))
	for i := range c.Assignments {
		asg, err := c.Assignments[i].ToResource(c.Workspace.Scope)
		if err != nil {
			return nil, nil, err
		}
		asgs = append(asgs, *asg)
	}

	return defs, asgs, nil
}

// ToResource converts the document into a policy definition, loading the
// rule from disk when referenced by file.
func (d *DefinitionDoc) ToResource(defaultScope, baseDir string) (*resource.PolicyDefinition, error) {
	scopeStr := d.Scope
	if scopeStr == "" {
		scopeStr = defaultScope
	}
	scope, err := resource.ParseScope(scopeStr)
	if err != nil {
		return nil, fmt.Errorf("definition %q: %w", d.Name, err)
	}

	var r *rule.Rule
	switch {
	case len(d.Rule) > 0 && d.RuleFile != "":
		return nil, fmt.Errorf("definition %q: rule and ruleFile are mutually exclusive", d.Name)
	case len(d.Rule) > 0:
		r, err = rule.Parse(d.Rule)
		if err != nil {
			return nil, fmt.Errorf("definition %q: %w", d.Name, err)
		}
	case d.RuleFile != "":
		path := d.RuleFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		r, err = rule.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("definition %q: %w", d.Name, err)
		}
	default:
		return nil, fmt.Errorf("definition %q: one of rule or ruleFile is required", d.Name)
	}

	mode := resource.ModeAll
	if d.Mode != "" {
		mode = resource.Mode(d.Mode)
	}
	policyType := resource.PolicyTypeCustom
	if d.PolicyType != "" {
		policyType = resource.PolicyType(d.PolicyType)
	}

	def := &resource.PolicyDefinition{
		Name:        d.Name,
		Scope:       scope,
		PolicyType:  policyType,
		Mode:        mode,
		DisplayName: d.DisplayName,
		Description: d.Description,
		Rule:        r,
	}
	def.ID = resource.DefinitionID(def.Name, def.Scope)
	return def, nil
}

// ToResource converts the document into a policy assignment.
func (a *AssignmentDoc) ToResource(defaultScope string) (*resource.PolicyAssignment, error) {
	scopeStr := a.Scope
	if scopeStr == "" {
		scopeStr = defaultScope
	}
	scope, err := resource.ParseScope(scopeStr)
	if err != nil {
		return nil, fmt.Errorf("assignment %q: %w", a.Name, err)
	}

	asg := &resource.PolicyAssignment{
		Name:          a.Name,
		DisplayName:   a.DisplayName,
		DefinitionRef: a.Definition,
		Scope:         scope,
	}
	asg.ID = resource.AssignmentID(asg.Name, asg.Scope)
	return asg, nil
}
