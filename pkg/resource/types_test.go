package resource

import (
	"errors"
	"strings"
	"testing"

	"github.com/policywarden/warden/pkg/rule"
)

// testRule is a test helper that parses a small valid rule document.
func testRule(t *testing.T) *rule.Rule {
	t.Helper()
	r, err := rule.Parse([]byte(`{"if": {"field": "location", "notEquals": "eastus"}, "then": {"effect": "deny"}}`))
	if err != nil {
		t.Fatalf("failed to parse test rule: %v", err)
	}
	return r
}

func validDefinition(t *testing.T) *PolicyDefinition {
	t.Helper()
	return &PolicyDefinition{
		Name:        "allowed-locations",
		Scope:       MustParseScope("/subscriptions/s-dev"),
		PolicyType:  PolicyTypeCustom,
		Mode:        ModeAll,
		DisplayName: "Allowed locations",
		Rule:        testRule(t),
	}
}

func TestPolicyDefinitionValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*PolicyDefinition)
		wantErr   error
		errSubstr string
	}{
		{
			name:   "valid definition",
			mutate: func(d *PolicyDefinition) {},
		},
		{
			name:      "missing name",
			mutate:    func(d *PolicyDefinition) { d.Name = "" },
			errSubstr: "Name",
		},
		{
			name:    "bad name shape",
			mutate:  func(d *PolicyDefinition) { d.Name = "-leading-hyphen" },
			wantErr: ErrInvalidName,
		},
		{
			name:    "trailing dot rejected",
			mutate:  func(d *PolicyDefinition) { d.Name = "name." },
			wantErr: ErrInvalidName,
		},
		{
			name:      "unknown policy type",
			mutate:    func(d *PolicyDefinition) { d.PolicyType = "Imported" },
			errSubstr: "invalid policy type",
		},
		{
			name:      "unknown mode",
			mutate:    func(d *PolicyDefinition) { d.Mode = "Some" },
			errSubstr: "invalid mode",
		},
		{
			name:    "missing scope",
			mutate:  func(d *PolicyDefinition) { d.Scope = Scope{} },
			wantErr: ErrMissingScope,
		},
		{
			name:    "missing rule",
			mutate:  func(d *PolicyDefinition) { d.Rule = nil },
			wantErr: ErrMissingRule,
		},
		{
			name: "invalid embedded rule",
			mutate: func(d *PolicyDefinition) {
				d.Rule = &rule.Rule{}
			},
			errSubstr: "rule schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDefinition(t)
			tt.mutate(d)
			err := d.Validate()
			if tt.wantErr == nil && tt.errSubstr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v in chain, got %v", tt.wantErr, err)
			}
			if tt.errSubstr != "" && !strings.Contains(err.Error(), tt.errSubstr) {
				t.Errorf("expected error containing %q, got %q", tt.errSubstr, err.Error())
			}
		})
	}
}

func TestPolicyAssignmentValidate(t *testing.T) {
	valid := PolicyAssignment{
		Name:          "enforce-locations",
		DisplayName:   "Enforce allowed locations",
		DefinitionRef: "allowed-locations",
		Scope:         MustParseScope("/subscriptions/s-dev"),
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tooLong := valid
	tooLong.Name = strings.Repeat("a", 25)
	if err := tooLong.Validate(); err == nil {
		t.Error("expected error for a 25-character assignment name")
	}

	noRef := valid
	noRef.DefinitionRef = ""
	if err := noRef.Validate(); err == nil {
		t.Error("expected error for missing definition reference")
	}

	noScope := valid
	noScope.Scope = Scope{}
	if err := noScope.Validate(); !errors.Is(err, ErrMissingScope) {
		t.Errorf("expected ErrMissingScope, got %v", err)
	}
}

func TestDefinitionEqual(t *testing.T) {
	a := validDefinition(t)
	b := validDefinition(t)

	if !a.Equal(b) {
		t.Error("identical definitions reported unequal")
	}

	b.DisplayName = "changed"
	if a.Equal(b) {
		t.Error("definitions with different display names reported equal")
	}

	b = validDefinition(t)
	changed, err := rule.Parse([]byte(`{"if": {"field": "location", "notEquals": "westus"}, "then": {"effect": "deny"}}`))
	if err != nil {
		t.Fatalf("failed to parse rule: %v", err)
	}
	b.Rule = changed
	if a.Equal(b) {
		t.Error("definitions with different rules reported equal")
	}
}

func TestDeterministicIDs(t *testing.T) {
	scope := MustParseScope("/subscriptions/s-dev")
	other := MustParseScope("/subscriptions/s-prod")

	if DefinitionID("allowed-locations", scope) != DefinitionID("allowed-locations", scope) {
		t.Error("same name and scope must derive the same definition id")
	}
	if DefinitionID("allowed-locations", scope) == DefinitionID("allowed-locations", other) {
		t.Error("different scopes must derive different definition ids")
	}
	if DefinitionID("allowed-locations", scope) == DefinitionID("required-tags", scope) {
		t.Error("different names must derive different definition ids")
	}
	if DefinitionID("allowed-locations", scope) == AssignmentID("allowed-locations", scope) {
		t.Error("definition and assignment ids must not collide for the same name")
	}
}
