package config

import (
	"context"
	"testing"
)

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()

	customSchema := `
#Schema: {
	field1: string
	field2: int
}
`

	err := sr.RegisterSchema("custom", customSchema)
	if err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	schema, ok := sr.GetSchema("custom")
	if !ok {
		t.Fatal("expected to find custom schema")
	}

	if schema.Err() != nil {
		t.Errorf("schema has errors: %v", schema.Err())
	}
}

func TestSchemaRegistry_RejectsSchemaWithoutRoot(t *testing.T) {
	sr := NewSchemaRegistry()

	if err := sr.RegisterSchema("rootless", `#Other: {a: string}`); err == nil {
		t.Fatal("expected error for schema without #Schema")
	}
}

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	builtins := []string{
		"workspace",
		"definition",
		"assignment",
		"grant",
		"rule",
	}

	for _, name := range builtins {
		t.Run(name, func(t *testing.T) {
			schema, ok := sr.GetSchema(name)
			if !ok {
				t.Fatalf("built-in schema %s not found", name)
			}

			if schema.Err() != nil {
				t.Errorf("built-in schema %s has errors: %v", name, schema.Err())
			}
		})
	}
}

func TestSchemaRegistry_ValidateWorkspace(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name      string
		workspace Workspace
		wantErr   bool
	}{
		{
			name: "valid workspace",
			workspace: Workspace{
				Name:  "platform-policies",
				Scope: "/subscriptions/sub-1",
				Backend: &Backend{
					Type: "local",
					Path: "warden.db",
				},
			},
			wantErr: false,
		},
		{
			name: "invalid name with spaces",
			workspace: Workspace{
				Name:  "my workspace",
				Scope: "/subscriptions/sub-1",
			},
			wantErr: true,
		},
		{
			name: "scope without leading slash",
			workspace: Workspace{
				Name:  "ws",
				Scope: "subscriptions/sub-1",
			},
			wantErr: true,
		},
		{
			name: "unknown backend type",
			workspace: Workspace{
				Name:    "ws",
				Scope:   "/subscriptions/sub-1",
				Backend: &Backend{Type: "s3"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateWorkspace(ctx, tt.workspace)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWorkspace() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_ValidateDefinition(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		doc     DefinitionDoc
		wantErr bool
	}{
		{
			name: "valid definition",
			doc: DefinitionDoc{
				Name:        "allowed-locations",
				DisplayName: "Allowed locations",
				Rule:        []byte(`{"if":{"field":"location","equals":"eastus"},"then":{"effect":"deny"}}`),
			},
			wantErr: false,
		},
		{
			name: "name starting with a dash",
			doc: DefinitionDoc{
				Name:     "-bad",
				RuleFile: "r.json",
			},
			wantErr: true,
		},
		{
			name: "unknown mode",
			doc: DefinitionDoc{
				Name:     "d",
				Mode:     "Some",
				RuleFile: "r.json",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateDefinition(ctx, tt.doc)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDefinition() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_ValidateGrant(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	valid := GrantConfig{Subject: "ci-runner", Role: "auditor", Scope: "/subscriptions/sub-1"}
	if err := sr.ValidateGrant(ctx, valid); err != nil {
		t.Errorf("valid grant rejected: %v", err)
	}

	invalid := GrantConfig{Subject: "ci-runner", Role: "superuser"}
	if err := sr.ValidateGrant(ctx, invalid); err == nil {
		t.Error("unknown role accepted")
	}
}

func TestSchemaRegistry_ValidateRule(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		doc     map[string]interface{}
		wantErr bool
	}{
		{
			name: "valid deny rule",
			doc: map[string]interface{}{
				"if":   map[string]interface{}{"field": "location", "notEquals": "eastus"},
				"then": map[string]interface{}{"effect": "deny"},
			},
			wantErr: false,
		},
		{
			name: "valid append rule with details",
			doc: map[string]interface{}{
				"if": map[string]interface{}{"field": "tags[env]", "exists": "false"},
				"then": map[string]interface{}{
					"effect": "append",
					"details": []interface{}{
						map[string]interface{}{"field": "tags[env]", "value": "unknown"},
					},
				},
			},
			wantErr: false,
		},
		{
			name: "unknown effect",
			doc: map[string]interface{}{
				"if":   map[string]interface{}{"field": "location", "equals": "x"},
				"then": map[string]interface{}{"effect": "explode"},
			},
			wantErr: true,
		},
		{
			name: "missing condition",
			doc: map[string]interface{}{
				"then": map[string]interface{}{"effect": "deny"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateAgainstSchema(ctx, "rule", tt.doc)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAgainstSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_UnknownSchema(t *testing.T) {
	sr := NewSchemaRegistry()

	if err := sr.ValidateAgainstSchema(context.Background(), "nope", map[string]interface{}{}); err == nil {
		t.Error("expected error for unknown schema")
	}
}

func TestSchemaRegistry_ListSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	names := sr.ListSchemas()
	if len(names) != 5 {
		t.Errorf("expected 5 built-in schemas, got %d: %v", len(names), names)
	}
}
