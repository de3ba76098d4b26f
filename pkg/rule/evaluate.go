package rule

import (
	"fmt"
	"strings"
)

// Decision is the outcome of evaluating a rule against resource properties.
type Decision struct {
	// Matched reports whether the rule condition matched the resource.
	Matched bool
	// Effect is the canonical enforcement action the rule carries.
	Effect Effect
	// Details carries the append payload when the effect is append and the
	// condition matched.
	Details []AppendDetail
}

// Evaluate checks the rule condition against a resource property map and
// returns the effect decision. Property maps carry the well-known keys
// "location", "name", "type", "kind", and "tags" (a map addressed through
// "tags[key]" field selectors).
//
// A disabled rule never matches. Negated operators (notEquals, notLike,
// notIn, notContains) match when the selected field is absent; their
// positive counterparts require the field to be present.
func (r *Rule) Evaluate(props map[string]any) Decision {
	effect, err := NormalizeEffect(string(r.Then.Effect))
	if err != nil {
		// Unvalidated documents keep their verbatim effect so callers can
		// still observe what the rule asked for.
		effect = r.Then.Effect
	}
	d := Decision{Effect: effect}
	if effect == EffectDisabled {
		return d
	}
	if !r.If.match(props) {
		return d
	}
	d.Matched = true
	if effect == EffectAppend {
		d.Details = r.Then.Details
	}
	return d
}

// match evaluates a single condition against the property map.
func (c *Condition) match(props map[string]any) bool {
	val, present := resolveField(c.Field, props)

	switch c.Operator {
	case OpExists:
		want := strings.EqualFold(fmt.Sprint(c.Value), "true")
		return present == want
	case OpEquals:
		return present && scalarEqual(val, c.Value)
	case OpNotEquals:
		return !present || !scalarEqual(val, c.Value)
	case OpLike:
		return present && globMatch(stringify(c.Value), stringify(val))
	case OpNotLike:
		return !present || !globMatch(stringify(c.Value), stringify(val))
	case OpIn:
		return present && memberOf(val, c.Value)
	case OpNotIn:
		return !present || !memberOf(val, c.Value)
	case OpContains:
		return present && containsValue(val, c.Value)
	case OpNotContains:
		return !present || !containsValue(val, c.Value)
	}
	return false
}

// resolveField looks up a field selector in the property map. Selectors of
// the form "tags[key]" address individual tag values; every other selector
// is a direct property key.
func resolveField(field string, props map[string]any) (any, bool) {
	if key, ok := tagKey(field); ok {
		tags, found := props["tags"]
		if !found {
			return nil, false
		}
		switch m := tags.(type) {
		case map[string]any:
			v, ok := m[key]
			return v, ok
		case map[string]string:
			v, ok := m[key]
			return v, ok
		}
		return nil, false
	}
	v, ok := props[field]
	return v, ok
}

// tagKey extracts the key from a "tags[key]" selector. The key may be
// quoted, as in "tags['costCenter']".
func tagKey(field string) (string, bool) {
	if !strings.HasPrefix(field, "tags[") || !strings.HasSuffix(field, "]") {
		return "", false
	}
	key := strings.Trim(field[len("tags["):len(field)-1], "'\"")
	if key == "" {
		return "", false
	}
	return key, true
}

// scalarEqual compares two scalar operands. String comparison is
// case-insensitive; numeric operands compare by value regardless of the
// concrete Go type JSON decoding produced.
func scalarEqual(a, b any) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.EqualFold(as, bs)
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// memberOf reports whether val equals any element of the operand list.
func memberOf(val, operand any) bool {
	list, ok := operand.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if scalarEqual(val, item) {
			return true
		}
	}
	return false
}

// containsValue implements the contains operator: substring match on string
// fields, membership on list fields.
func containsValue(val, operand any) bool {
	switch v := val.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), strings.ToLower(stringify(operand)))
	case []any:
		for _, item := range v {
			if scalarEqual(item, operand) {
				return true
			}
		}
	}
	return false
}

// globMatch matches a value against a pattern where "*" spans any run of
// characters, case-insensitively. Patterns without "*" compare whole.
func globMatch(pattern, value string) bool {
	p := strings.ToLower(pattern)
	v := strings.ToLower(value)
	parts := strings.Split(p, "*")
	if len(parts) == 1 {
		return p == v
	}
	if !strings.HasPrefix(v, parts[0]) {
		return false
	}
	v = v[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(v, part)
		if idx < 0 {
			return false
		}
		v = v[idx+len(part):]
	}
	return strings.HasSuffix(v, parts[len(parts)-1])
}
