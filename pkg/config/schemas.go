package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	sr.RegisterSchema("workspace", builtinWorkspaceSchema)
	sr.RegisterSchema("definition", builtinDefinitionSchema)
	sr.RegisterSchema("assignment", builtinAssignmentSchema)
	sr.RegisterSchema("grant", builtinGrantSchema)
	sr.RegisterSchema("rule", builtinRuleSchema)
}

// RegisterSchema registers a CUE schema with the given name. The schema
// source must declare a #Schema definition; that definition is what data
// unifies against.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	root := val.LookupPath(cue.ParsePath("#Schema"))
	if !root.Exists() {
		return fmt.Errorf("schema %s does not declare #Schema", name)
	}

	sr.schemas[name] = root
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// Built-in schema definitions

const builtinWorkspaceSchema = `
// Workspace schema for warden workspace configuration
#Grant: {
	subject: string & !=""
	role:    "owner" | "policy-contributor" | "auditor"
	scope?:  string & =~"^/"
}

#Schema: {
	// Name is the workspace name
	name: string & =~"^[a-zA-Z0-9_-]+$"

	// Scope is the default scope for documents
	scope: string & =~"^/"

	// Backend configures state storage
	backend?: {
		type:         "local" | "memory"
		path?:        string
		lockTimeout?: string
	}

	// RemoteWorkspace is deprecated and ignored
	remoteWorkspace?: {
		organization?: string
		name?:         string
	}

	// Documents points at rule, generator, gate, and pipeline files
	documents?: {
		rules?:      [...string]
		generators?: [...string]
		gates?:      [...string]
		pipeline?:   string
	}

	// Grants seed the authorizer
	grants?: [...#Grant]

	// Variables are workspace-level variables passed to generators
	variables?: {[string]: _}
}
`

const builtinDefinitionSchema = `
// Definition schema for policy definition documents
#Schema: {
	// Name uniquely identifies the definition within its scope
	name: string & =~"^[a-zA-Z0-9]([a-zA-Z0-9._-]*[a-zA-Z0-9])?$"

	// DisplayName is the human-readable name
	displayName?: string

	// Description explains what the policy enforces
	description?: string

	// Scope overrides the workspace scope
	scope?: string & =~"^/"

	// Mode selects which resources the rule evaluates
	mode?: "All" | "Indexed"

	// PolicyType distinguishes custom from built-in definitions
	policyType?: "Custom" | "BuiltIn"

	// Rule is the inline rule document
	rule?: {...}

	// RuleFile references a rule document on disk
	ruleFile?: string & !=""
}
`

const builtinAssignmentSchema = `
// Assignment schema for policy assignment documents
#Schema: {
	// Name uniquely identifies the assignment within its scope
	name: string & =~"^[a-zA-Z0-9]([a-zA-Z0-9._-]*[a-zA-Z0-9])?$"

	// DisplayName is the human-readable name
	displayName?: string

	// Definition names the policy definition to enforce
	definition: string & !=""

	// Scope overrides the workspace scope
	scope?: string & =~"^/"
}
`

const builtinGrantSchema = `
// Grant schema for authorization role seeds
#Schema: {
	// Subject is the client id receiving the role
	subject: string & !=""

	// Role is one of the built-in role names
	role: "owner" | "policy-contributor" | "auditor"

	// Scope is where the role applies
	scope?: string & =~"^/"
}
`

const builtinRuleSchema = `
// Rule schema for policy rule documents. "if" is quoted because it is
// a CUE keyword.
#Schema: {
	// The condition: a field selector plus exactly one operator
	"if": {
		field: string & !=""
		...
	}

	// The enforcement action
	then: {
		effect: "deny" | "audit" | "append" | "modify" | "disabled" |
			"auditIfNotExists" | "deployIfNotExists"
		details?: [...{
			field: string & !=""
			value: _
		}]
	}
}
`

// ValidateWorkspace validates a workspace block against the workspace schema.
func (sr *SchemaRegistry) ValidateWorkspace(ctx context.Context, workspace Workspace) error {
	return sr.ValidateAgainstSchema(ctx, "workspace", workspace)
}

// ValidateDefinition validates a definition document against the definition schema.
func (sr *SchemaRegistry) ValidateDefinition(ctx context.Context, doc DefinitionDoc) error {
	return sr.ValidateAgainstSchema(ctx, "definition", doc)
}

// ValidateAssignment validates an assignment document against the assignment schema.
func (sr *SchemaRegistry) ValidateAssignment(ctx context.Context, doc AssignmentDoc) error {
	return sr.ValidateAgainstSchema(ctx, "assignment", doc)
}

// ValidateGrant validates a grant against the grant schema.
func (sr *SchemaRegistry) ValidateGrant(ctx context.Context, grant GrantConfig) error {
	return sr.ValidateAgainstSchema(ctx, "grant", grant)
}
