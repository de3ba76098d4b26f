package rule

import (
	"testing"
)

// mustParse is a test helper that parses a rule document or fails the test.
func mustParse(t *testing.T, doc string) *Rule {
	t.Helper()
	r, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("failed to parse rule: %v", err)
	}
	return r
}

func TestEvaluate_NotEqualsLocation(t *testing.T) {
	r := mustParse(t, `{
		"if": {"field": "location", "notEquals": "eastus"},
		"then": {"effect": "deny"}
	}`)

	tests := []struct {
		name    string
		props   map[string]any
		matched bool
	}{
		{
			name:    "westus matches and denies",
			props:   map[string]any{"location": "westus"},
			matched: true,
		},
		{
			name:    "eastus does not match",
			props:   map[string]any{"location": "eastus"},
			matched: false,
		},
		{
			name:    "case-insensitive comparison",
			props:   map[string]any{"location": "EastUS"},
			matched: false,
		},
		{
			name:    "absent location matches the negated operator",
			props:   map[string]any{"name": "rg-1"},
			matched: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Evaluate(tt.props)
			if d.Matched != tt.matched {
				t.Errorf("Matched = %v, want %v", d.Matched, tt.matched)
			}
			if d.Effect != EffectDeny {
				t.Errorf("Effect = %q, want deny", d.Effect)
			}
			if d.Matched && !d.Effect.Blocks() {
				t.Error("matched deny decision should block")
			}
		})
	}
}

func TestEvaluate_Operators(t *testing.T) {
	props := map[string]any{
		"location": "eastus2",
		"name":     "storage-prod-001",
		"type":     "Microsoft.Storage/storageAccounts",
		"kind":     "StorageV2",
		"tags": map[string]any{
			"env":        "prod",
			"costCenter": "cc-42",
		},
	}

	tests := []struct {
		name    string
		doc     string
		matched bool
	}{
		{
			name:    "equals on type",
			doc:     `{"if": {"field": "type", "equals": "Microsoft.Storage/storageAccounts"}, "then": {"effect": "audit"}}`,
			matched: true,
		},
		{
			name:    "like with glob star",
			doc:     `{"if": {"field": "location", "like": "eastus*"}, "then": {"effect": "audit"}}`,
			matched: true,
		},
		{
			name:    "like with inner star",
			doc:     `{"if": {"field": "name", "like": "storage*001"}, "then": {"effect": "audit"}}`,
			matched: true,
		},
		{
			name:    "like that misses",
			doc:     `{"if": {"field": "location", "like": "westus*"}, "then": {"effect": "audit"}}`,
			matched: false,
		},
		{
			name:    "notLike on kind",
			doc:     `{"if": {"field": "kind", "notLike": "Blob*"}, "then": {"effect": "audit"}}`,
			matched: true,
		},
		{
			name:    "in membership",
			doc:     `{"if": {"field": "location", "in": ["eastus", "eastus2"]}, "then": {"effect": "audit"}}`,
			matched: true,
		},
		{
			name:    "notIn rejects member",
			doc:     `{"if": {"field": "location", "notIn": ["eastus", "eastus2"]}, "then": {"effect": "audit"}}`,
			matched: false,
		},
		{
			name:    "contains substring on name",
			doc:     `{"if": {"field": "name", "contains": "prod"}, "then": {"effect": "audit"}}`,
			matched: true,
		},
		{
			name:    "notContains substring",
			doc:     `{"if": {"field": "name", "notContains": "dev"}, "then": {"effect": "audit"}}`,
			matched: true,
		},
		{
			name:    "exists true on tag",
			doc:     `{"if": {"field": "tags[env]", "exists": "true"}, "then": {"effect": "audit"}}`,
			matched: true,
		},
		{
			name:    "exists false on missing tag",
			doc:     `{"if": {"field": "tags[owner]", "exists": "false"}, "then": {"effect": "audit"}}`,
			matched: true,
		},
		{
			name:    "tag value equals",
			doc:     `{"if": {"field": "tags[env]", "equals": "prod"}, "then": {"effect": "audit"}}`,
			matched: true,
		},
		{
			name:    "tag value notEquals on present tag",
			doc:     `{"if": {"field": "tags[env]", "notEquals": "dev"}, "then": {"effect": "audit"}}`,
			matched: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustParse(t, tt.doc)
			d := r.Evaluate(props)
			if d.Matched != tt.matched {
				t.Errorf("Matched = %v, want %v", d.Matched, tt.matched)
			}
		})
	}
}

func TestEvaluate_AppendCarriesDetails(t *testing.T) {
	r := mustParse(t, `{
		"if": {"field": "tags[costCenter]", "exists": "false"},
		"then": {
			"effect": "append",
			"details": [{"field": "tags[costCenter]", "value": "unassigned"}]
		}
	}`)

	d := r.Evaluate(map[string]any{"location": "eastus", "tags": map[string]any{}})
	if !d.Matched {
		t.Fatal("expected append rule to match resource without the tag")
	}
	if d.Effect != EffectAppend {
		t.Fatalf("Effect = %q, want append", d.Effect)
	}
	if len(d.Details) != 1 || d.Details[0].Field != "tags[costCenter]" {
		t.Fatalf("expected append details to carry the tag field, got %+v", d.Details)
	}

	// The tag is present: the append rule must not fire.
	d = r.Evaluate(map[string]any{"tags": map[string]any{"costCenter": "cc-7"}})
	if d.Matched {
		t.Error("append rule matched a resource that already carries the tag")
	}
	if len(d.Details) != 0 {
		t.Error("unmatched decision must not carry details")
	}
}

func TestEvaluate_DisabledNeverMatches(t *testing.T) {
	r := mustParse(t, `{
		"if": {"field": "location", "notEquals": "eastus"},
		"then": {"effect": "disabled"}
	}`)

	d := r.Evaluate(map[string]any{"location": "westus"})
	if d.Matched {
		t.Error("disabled rule must never match")
	}
	if d.Effect != EffectDisabled {
		t.Errorf("Effect = %q, want disabled", d.Effect)
	}
}

func TestEvaluate_NumericOperands(t *testing.T) {
	r := mustParse(t, `{
		"if": {"field": "capacity", "equals": 3},
		"then": {"effect": "audit"}
	}`)

	// JSON decoding hands the evaluator float64 values.
	if d := r.Evaluate(map[string]any{"capacity": float64(3)}); !d.Matched {
		t.Error("expected numeric equals to match float64(3)")
	}
	if d := r.Evaluate(map[string]any{"capacity": 3}); !d.Matched {
		t.Error("expected numeric equals to match int 3")
	}
	if d := r.Evaluate(map[string]any{"capacity": float64(4)}); d.Matched {
		t.Error("numeric equals matched the wrong value")
	}
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"eastus*", "eastus2", true},
		{"eastus*", "eastus", true},
		{"eastus*", "westus", false},
		{"*-prod", "rg-prod", true},
		{"*-prod", "rg-dev", false},
		{"st*acct*", "storage-acct-7", true},
		{"exact", "exact", true},
		{"exact", "EXACT", true},
		{"exact", "other", false},
		{"*", "anything", true},
		{"a*b*c", "aXbYc", true},
		{"a*b*c", "acb", false},
	}

	for _, tt := range tests {
		if got := globMatch(tt.pattern, tt.value); got != tt.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", tt.pattern, tt.value, got, tt.want)
		}
	}
}
