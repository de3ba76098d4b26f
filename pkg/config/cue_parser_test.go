package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/policywarden/warden/pkg/resource"
	"github.com/policywarden/warden/pkg/rule"
)

func newTestParser() *CUEParser {
	return NewCUEParser(zerolog.New(nil).Level(zerolog.Disabled))
}

const validWorkspaceCUE = `
workspace: {
	name:  "platform-policies"
	scope: "/subscriptions/sub-1"
	backend: {
		type:        "local"
		path:        "state/warden.db"
		lockTimeout: "30s"
	}
	grants: [
		{subject: "ci-runner", role: "policy-contributor"},
	]
}

definitions: {
	"allowed-locations": {
		displayName: "Allowed locations"
		rule: {
			"if": {field: "location", notIn: ["eastus", "westus"]}
			then: {effect: "deny"}
		}
	}
}

assignments: {
	"enforce-locations": {definition: "allowed-locations"}
}
`

func TestCUEParser_ParseInline(t *testing.T) {
	parser := newTestParser()
	ctx := context.Background()

	tests := []struct {
		name      string
		content   string
		errCount  int
		checkFunc func(*testing.T, *Config)
	}{
		{
			name:    "valid workspace",
			content: validWorkspaceCUE,
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Workspace.Name != "platform-policies" {
					t.Errorf("expected workspace name 'platform-policies', got %s", cfg.Workspace.Name)
				}
				if cfg.Workspace.Scope != "/subscriptions/sub-1" {
					t.Errorf("unexpected scope %s", cfg.Workspace.Scope)
				}
				backend := cfg.Workspace.BackendOrDefault()
				if backend.Type != "local" || backend.Path != "state/warden.db" {
					t.Errorf("unexpected backend %+v", backend)
				}
				if len(cfg.Definitions) != 1 {
					t.Fatalf("expected 1 definition, got %d", len(cfg.Definitions))
				}
				if cfg.Definitions[0].Name != "allowed-locations" {
					t.Errorf("definition name should come from the struct key, got %s", cfg.Definitions[0].Name)
				}
				if len(cfg.Assignments) != 1 {
					t.Fatalf("expected 1 assignment, got %d", len(cfg.Assignments))
				}
				if cfg.Assignments[0].Definition != "allowed-locations" {
					t.Errorf("unexpected assignment definition %s", cfg.Assignments[0].Definition)
				}
				if len(cfg.Workspace.Grants) != 1 {
					t.Errorf("expected 1 grant, got %d", len(cfg.Workspace.Grants))
				}
			},
		},
		{
			name: "definitions as list",
			content: `
workspace: {
	name:  "ws"
	scope: "/subscriptions/sub-1"
}

definitions: [
	{
		name: "require-tags"
		rule: {
			"if": {field: "tags[env]", exists: "false"}
			then: {effect: "audit"}
		}
	},
]
`,
			checkFunc: func(t *testing.T, cfg *Config) {
				if len(cfg.Definitions) != 1 || cfg.Definitions[0].Name != "require-tags" {
					t.Errorf("unexpected definitions %+v", cfg.Definitions)
				}
			},
		},
		{
			name: "missing workspace block",
			content: `
definitions: {}
`,
			errCount: 1,
		},
		{
			name: "workspace missing scope",
			content: `
workspace: {
	name: "ws"
}
`,
			errCount: 1,
		},
		{
			name: "unknown effect rejected by rule schema",
			content: `
workspace: {
	name:  "ws"
	scope: "/subscriptions/sub-1"
}

definitions: {
	bad: {
		rule: {
			"if": {field: "location", equals: "eastus"}
			then: {effect: "destroy"}
		}
	}
}
`,
			errCount: 1,
		},
		{
			name: "rule and ruleFile are mutually exclusive",
			content: `
workspace: {
	name:  "ws"
	scope: "/subscriptions/sub-1"
}

definitions: {
	both: {
		ruleFile: "rules/both.json"
		rule: {
			"if": {field: "location", equals: "eastus"}
			then: {effect: "deny"}
		}
	}
}
`,
			errCount: 1,
		},
		{
			name: "definition without a rule source",
			content: `
workspace: {
	name:  "ws"
	scope: "/subscriptions/sub-1"
}

definitions: {
	empty: {displayName: "no rule"}
}
`,
			errCount: 1,
		},
		{
			name: "duplicate definition names",
			content: `
workspace: {
	name:  "ws"
	scope: "/subscriptions/sub-1"
}

definitions: [
	{
		name: "dup"
		rule: {"if": {field: "location", equals: "a"}, then: {effect: "deny"}}
	},
	{
		name: "dup"
		rule: {"if": {field: "location", equals: "b"}, then: {effect: "deny"}}
	},
]
`,
			errCount: 1,
		},
		{
			name: "invalid grant role",
			content: `
workspace: {
	name:  "ws"
	scope: "/subscriptions/sub-1"
	grants: [{subject: "ci", role: "root"}]
}
`,
			errCount: 1,
		},
		{
			name: "invalid lock timeout",
			content: `
workspace: {
	name:  "ws"
	scope: "/subscriptions/sub-1"
	backend: {type: "local", path: "warden.db", lockTimeout: "soon"}
}
`,
			errCount: 1,
		},
		{
			name: "assignment missing definition ref",
			content: `
workspace: {
	name:  "ws"
	scope: "/subscriptions/sub-1"
}

assignments: {
	dangling: {displayName: "no ref"}
}
`,
			errCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parser.ParseInline(ctx, tt.content)
			if err != nil {
				t.Fatalf("ParseInline returned error: %v", err)
			}
			if len(cfg.Errors) != tt.errCount {
				t.Fatalf("expected %d errors, got %d: %+v", tt.errCount, len(cfg.Errors), cfg.Errors)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, cfg)
			}
		})
	}
}

func TestCUEParser_ParseInline_SyntaxError(t *testing.T) {
	parser := newTestParser()

	cfg, err := parser.ParseInline(context.Background(), `workspace: { name: `)
	if err != nil {
		t.Fatalf("ParseInline returned error: %v", err)
	}
	if len(cfg.Errors) == 0 {
		t.Fatal("expected syntax errors")
	}
	if cfg.Errors[0].Severity != "error" {
		t.Errorf("unexpected severity %s", cfg.Errors[0].Severity)
	}
}

func TestCUEParser_ParseInline_Deprecation(t *testing.T) {
	parser := newTestParser()

	cfg, err := parser.ParseInline(context.Background(), `
workspace: {
	name:  "ws"
	scope: "/subscriptions/sub-1"
	remoteWorkspace: {organization: "acme", name: "prod"}
}
`)
	if err != nil {
		t.Fatalf("ParseInline returned error: %v", err)
	}
	if len(cfg.Errors) != 0 {
		t.Fatalf("deprecated block must not be an error: %+v", cfg.Errors)
	}
	if len(cfg.Deprecations) != 1 || cfg.Deprecations[0] != DeprecationRemoteWorkspace {
		t.Errorf("expected remoteWorkspace deprecation, got %v", cfg.Deprecations)
	}
}

func TestCUEParser_ParseFile(t *testing.T) {
	parser := newTestParser()
	dir := t.TempDir()

	path := filepath.Join(dir, "warden.cue")
	if err := os.WriteFile(path, []byte(validWorkspaceCUE), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parser.Parse(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(cfg.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", cfg.Errors)
	}
	if len(cfg.SourceFiles) != 1 || cfg.SourceFiles[0] != path {
		t.Errorf("unexpected source files %v", cfg.SourceFiles)
	}
	if cfg.Workspace.Name != "platform-policies" {
		t.Errorf("unexpected workspace name %s", cfg.Workspace.Name)
	}
}

func TestCUEParser_Parse_MissingSource(t *testing.T) {
	parser := newTestParser()

	if _, err := parser.Parse(context.Background(), []string{"/nonexistent/warden.cue"}); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := parser.Parse(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty sources")
	}
}

func TestCUEParser_Load_Generators(t *testing.T) {
	parser := newTestParser()
	dir := t.TempDir()

	generator := `
definitions = [{
    "name": "require-tag-" + tag,
    "displayName": "Require tag " + tag,
    "rule": {
        "if": {"field": "tags[" + tag + "]", "exists": "false"},
        "then": {"effect": "audit"},
    },
} for tag in vars["required_tags"]]
`
	if err := os.WriteFile(filepath.Join(dir, "tags.star"), []byte(generator), 0o644); err != nil {
		t.Fatal(err)
	}

	workspace := `
workspace: {
	name:  "ws"
	scope: "/subscriptions/sub-1"
	documents: generators: ["tags.star"]
	variables: required_tags: ["env", "costCenter"]
}

definitions: {
	"allowed-locations": {
		rule: {
			"if": {field: "location", notIn: ["eastus"]}
			then: {effect: "deny"}
		}
	}
}
`
	path := filepath.Join(dir, "warden.cue")
	if err := os.WriteFile(path, []byte(workspace), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parser.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", cfg.Errors)
	}
	if len(cfg.Definitions) != 3 {
		t.Fatalf("expected 3 definitions (1 declared + 2 generated), got %d", len(cfg.Definitions))
	}
	// Declared documents come first, generated ones follow.
	if cfg.Definitions[0].Name != "allowed-locations" {
		t.Errorf("unexpected first definition %s", cfg.Definitions[0].Name)
	}
	names := map[string]bool{}
	for _, def := range cfg.Definitions[1:] {
		names[def.Name] = true
	}
	if !names["require-tag-env"] || !names["require-tag-costCenter"] {
		t.Errorf("generated definitions missing: %v", names)
	}
}

func TestCUEParser_Load_GeneratorError(t *testing.T) {
	parser := newTestParser()
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "broken.star"), []byte(`definitions = [`), 0o644); err != nil {
		t.Fatal(err)
	}

	workspace := `
workspace: {
	name:  "ws"
	scope: "/subscriptions/sub-1"
	documents: generators: ["broken.star"]
}
`
	path := filepath.Join(dir, "warden.cue")
	if err := os.WriteFile(path, []byte(workspace), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parser.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Errors) != 1 {
		t.Fatalf("expected 1 error, got %+v", cfg.Errors)
	}
	if !strings.Contains(cfg.Errors[0].File, "broken.star") {
		t.Errorf("error should name the generator file, got %s", cfg.Errors[0].File)
	}
}

func TestConfig_Desired(t *testing.T) {
	parser := newTestParser()
	dir := t.TempDir()

	ruleDoc := `{"if": {"field": "location", "notEquals": "eastus"}, "then": {"effect": "deny"}}`
	if err := os.WriteFile(filepath.Join(dir, "locations.json"), []byte(ruleDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	content := `
workspace: {
	name:  "ws"
	scope: "/subscriptions/sub-1"
}

definitions: {
	inline: {
		displayName: "Inline rule"
		rule: {
			"if": {field: "name", like: "prod-*"}
			then: {effect: "audit"}
		}
	}
	fromfile: {
		ruleFile: "locations.json"
		scope:    "/subscriptions/sub-1/resourceGroups/rg-app"
	}
}

assignments: {
	"enforce-inline": {definition: "inline"}
}
`
	cfg, err := parser.ParseInline(context.Background(), content)
	if err != nil {
		t.Fatalf("ParseInline returned error: %v", err)
	}
	if len(cfg.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", cfg.Errors)
	}

	defs, asgs, err := cfg.Desired(dir)
	if err != nil {
		t.Fatalf("Desired returned error: %v", err)
	}
	if len(defs) != 2 || len(asgs) != 1 {
		t.Fatalf("expected 2 definitions and 1 assignment, got %d and %d", len(defs), len(asgs))
	}

	byName := map[string]resource.PolicyDefinition{}
	for _, def := range defs {
		byName[def.Name] = def
	}

	inline := byName["inline"]
	if inline.ID == "" {
		t.Error("definition ID should be derived")
	}
	if inline.Scope.String() != "/subscriptions/sub-1" {
		t.Errorf("definition should default to the workspace scope, got %s", inline.Scope)
	}
	if inline.Mode != resource.ModeAll || inline.PolicyType != resource.PolicyTypeCustom {
		t.Errorf("expected default mode and type, got %s/%s", inline.Mode, inline.PolicyType)
	}
	if inline.Rule == nil || inline.Rule.Then.Effect != rule.EffectAudit {
		t.Errorf("inline rule not parsed: %+v", inline.Rule)
	}

	fromFile := byName["fromfile"]
	if fromFile.Scope.String() != "/subscriptions/sub-1/resourceGroups/rg-app" {
		t.Errorf("scope override lost: %s", fromFile.Scope)
	}
	if fromFile.Rule == nil || fromFile.Rule.If.Field != "location" {
		t.Errorf("rule file not loaded: %+v", fromFile.Rule)
	}

	asg := asgs[0]
	if asg.Name != "enforce-inline" || asg.DefinitionRef != "inline" {
		t.Errorf("unexpected assignment %+v", asg)
	}
	if asg.Scope.String() != "/subscriptions/sub-1" {
		t.Errorf("assignment should default to the workspace scope, got %s", asg.Scope)
	}
	if asg.ID == "" {
		t.Error("assignment ID should be derived")
	}
}

func TestConfig_Desired_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		doc     DefinitionDoc
		wantErr string
	}{
		{
			name:    "bad scope",
			doc:     DefinitionDoc{Name: "d", Scope: "subscriptions/sub-1", Rule: []byte(`{"if":{"field":"name","equals":"x"},"then":{"effect":"deny"}}`)},
			wantErr: "scope",
		},
		{
			name:    "missing rule file",
			doc:     DefinitionDoc{Name: "d", RuleFile: "does-not-exist.json"},
			wantErr: "does-not-exist.json",
		},
		{
			name:    "invalid rule document",
			doc:     DefinitionDoc{Name: "d", Rule: []byte(`{"if": {"field": "name"}, "then": {"effect": "deny"}}`)},
			wantErr: "operator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Workspace:   Workspace{Name: "ws", Scope: "/subscriptions/sub-1"},
				Definitions: []DefinitionDoc{tt.doc},
			}
			_, _, err := cfg.Desired(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestBackend_LockTimeoutDuration(t *testing.T) {
	var nilBackend *Backend
	d, err := nilBackend.LockTimeoutDuration()
	if err != nil || d.Seconds() != 30 {
		t.Errorf("nil backend should default to 30s, got %v %v", d, err)
	}

	b := &Backend{Type: "local", Path: "warden.db", LockTimeout: "2m"}
	d, err = b.LockTimeoutDuration()
	if err != nil || d.Minutes() != 2 {
		t.Errorf("expected 2m, got %v %v", d, err)
	}

	b.LockTimeout = "never"
	if _, err := b.LockTimeoutDuration(); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestCUEParser_ExtractValue(t *testing.T) {
	parser := newTestParser()

	val := parser.ctx.CompileString(`a: b: c: "deep"`)
	out, err := parser.ExtractValue(val, "a.b.c")
	if err != nil {
		t.Fatalf("ExtractValue returned error: %v", err)
	}
	if s, ok := out.(string); !ok || s != "deep" {
		t.Errorf("unexpected value %v (%T)", out, out)
	}

	if _, err := parser.ExtractValue(val, "a.x"); err == nil {
		t.Error("expected error for missing path")
	}
}
