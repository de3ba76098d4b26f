package rule

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Effect is the enforcement action taken when a rule condition matches.
type Effect string

const (
	// EffectDeny blocks the resource request.
	EffectDeny Effect = "deny"
	// EffectAudit admits the request and records a compliance finding.
	EffectAudit Effect = "audit"
	// EffectAppend admits the request after merging the rule's details
	// into the resource properties.
	EffectAppend Effect = "append"
	// EffectModify admits the request; the remediation is recorded as a
	// finding because there is no deployment plane to execute it.
	EffectModify Effect = "modify"
	// EffectDisabled keeps the rule in place but never matches.
	EffectDisabled Effect = "disabled"
	// EffectAuditIfNotExists records a finding keyed on absence.
	EffectAuditIfNotExists Effect = "auditIfNotExists"
	// EffectDeployIfNotExists is accepted for compatibility and evaluated
	// like auditIfNotExists.
	EffectDeployIfNotExists Effect = "deployIfNotExists"
)

// knownEffects maps the lowercase spelling of every valid effect to its
// canonical form.
var knownEffects = map[string]Effect{
	"deny":              EffectDeny,
	"audit":             EffectAudit,
	"append":            EffectAppend,
	"modify":            EffectModify,
	"disabled":          EffectDisabled,
	"auditifnotexists":  EffectAuditIfNotExists,
	"deployifnotexists": EffectDeployIfNotExists,
}

// NormalizeEffect resolves a case-insensitive effect name to its canonical
// form.
func NormalizeEffect(s string) (Effect, error) {
	if e, ok := knownEffects[strings.ToLower(strings.TrimSpace(s))]; ok {
		return e, nil
	}
	return "", fmt.Errorf("unknown effect %q", s)
}

// Validate checks that the effect is a known enforcement action.
func (e Effect) Validate() error {
	_, err := NormalizeEffect(string(e))
	return err
}

// Blocks reports whether the effect denies the request outright.
func (e Effect) Blocks() bool {
	return strings.EqualFold(string(e), string(EffectDeny))
}

// Operator is a condition comparison kind. The operator appears as the JSON
// key of the condition object, e.g. {"field": "location", "notEquals": "eastus"}.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpLike        Operator = "like"
	OpNotLike     Operator = "notLike"
	OpIn          Operator = "in"
	OpNotIn       Operator = "notIn"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpExists      Operator = "exists"
)

// operators lists every comparison key a condition object may carry.
var operators = []Operator{
	OpEquals, OpNotEquals,
	OpLike, OpNotLike,
	OpIn, OpNotIn,
	OpContains, OpNotContains,
	OpExists,
}

// Condition is a single field comparison. A condition carries exactly one
// operator; documents with zero or several operator keys are rejected.
type Condition struct {
	// Field selects the resource property under comparison, e.g.
	// "location", "name", "type", or "tags[costCenter]".
	Field string
	// Operator is the comparison kind.
	Operator Operator
	// Value is the comparison operand: a list for in/notIn, the string
	// "true" or "false" for exists, a scalar otherwise.
	Value any
}

// UnmarshalJSON decodes the {"field": ..., "<operator>": ...} condition
// shape and enforces the exactly-one-operator invariant.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode condition: %w", err)
	}
	if f, ok := raw["field"]; ok {
		if err := json.Unmarshal(f, &c.Field); err != nil {
			return &SchemaError{Path: "if.field", Msg: "field must be a string"}
		}
		delete(raw, "field")
	}
	var found []Operator
	for _, op := range operators {
		v, ok := raw[string(op)]
		if !ok {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("failed to decode condition operand %q: %w", op, err)
		}
		found = append(found, op)
		c.Operator = op
		c.Value = val
		delete(raw, string(op))
	}
	switch len(found) {
	case 0:
		return &SchemaError{Path: "if", Msg: "condition carries no comparison operator"}
	case 1:
	default:
		return &SchemaError{
			Path: "if",
			Msg:  fmt.Sprintf("condition carries %d comparison operators, want exactly one", len(found)),
		}
	}
	if len(raw) > 0 {
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return &SchemaError{Path: "if", Msg: fmt.Sprintf("unknown condition key %q", keys[0])}
	}
	return nil
}

// MarshalJSON renders the condition back into its document form.
func (c Condition) MarshalJSON() ([]byte, error) {
	m := map[string]any{"field": c.Field}
	if c.Operator != "" {
		m[string(c.Operator)] = c.Value
	}
	return json.Marshal(m)
}

// AppendDetail names one property the append effect merges into admitted
// resources.
type AppendDetail struct {
	// Field is the property to set, e.g. "tags[costCenter]".
	Field string `json:"field"`
	// Value is the property value to merge in.
	Value any `json:"value"`
}

// Then is the action half of a rule.
type Then struct {
	// Effect is the enforcement action.
	Effect Effect `json:"effect"`
	// Details carries the properties merged in by the append effect.
	Details []AppendDetail `json:"details,omitempty"`
}

// Rule is a policy rule document: exactly one condition and one effect.
type Rule struct {
	If   Condition `json:"if"`
	Then Then      `json:"then"`
}

// Validate checks the structural invariants of the rule: a populated field
// selector, exactly one operator with a well-shaped operand, and a known
// effect with details only where the effect consumes them.
func (r *Rule) Validate() error {
	if r.If.Field == "" {
		return &SchemaError{Path: "if.field", Msg: "field is required"}
	}
	if r.If.Operator == "" {
		return &SchemaError{Path: "if", Msg: "condition carries no comparison operator"}
	}
	if err := r.If.validateOperand(); err != nil {
		return err
	}
	if r.Then.Effect == "" {
		return &SchemaError{Path: "then.effect", Msg: "effect is required"}
	}
	effect, err := NormalizeEffect(string(r.Then.Effect))
	if err != nil {
		return &SchemaError{Path: "then.effect", Msg: err.Error()}
	}
	switch effect {
	case EffectAppend:
		if len(r.Then.Details) == 0 {
			return &SchemaError{Path: "then.details", Msg: "append requires at least one detail"}
		}
	case EffectDeny, EffectAudit, EffectDisabled:
		if len(r.Then.Details) != 0 {
			return &SchemaError{
				Path: "then.details",
				Msg:  fmt.Sprintf("details are not allowed with effect %q", effect),
			}
		}
	}
	for i, d := range r.Then.Details {
		if d.Field == "" {
			return &SchemaError{
				Path: fmt.Sprintf("then.details[%d].field", i),
				Msg:  "field is required",
			}
		}
	}
	return nil
}

func (c *Condition) validateOperand() error {
	path := "if." + string(c.Operator)
	switch c.Operator {
	case OpIn, OpNotIn:
		list, ok := c.Value.([]any)
		if !ok {
			return &SchemaError{Path: path, Msg: "operand must be a list"}
		}
		if len(list) == 0 {
			return &SchemaError{Path: path, Msg: "operand list is empty"}
		}
	case OpExists:
		s, ok := c.Value.(string)
		if !ok || (!strings.EqualFold(s, "true") && !strings.EqualFold(s, "false")) {
			return &SchemaError{Path: path, Msg: `operand must be "true" or "false"`}
		}
	case OpEquals, OpNotEquals, OpLike, OpNotLike, OpContains, OpNotContains:
		switch c.Value.(type) {
		case string, float64, bool, int, int64:
		default:
			return &SchemaError{Path: path, Msg: "operand must be a scalar"}
		}
	default:
		return &SchemaError{Path: "if", Msg: fmt.Sprintf("unknown operator %q", c.Operator)}
	}
	return nil
}
