package resource

import (
	"fmt"
	"strings"
)

// ScopeLevel ranks scopes from widest to narrowest blast radius.
type ScopeLevel int

const (
	// LevelManagementGroup is a management group scope.
	LevelManagementGroup ScopeLevel = iota
	// LevelSubscription is a subscription scope.
	LevelSubscription
	// LevelResourceGroup is a resource group scope.
	LevelResourceGroup
)

// String returns the level name.
func (l ScopeLevel) String() string {
	switch l {
	case LevelManagementGroup:
		return "managementGroup"
	case LevelSubscription:
		return "subscription"
	case LevelResourceGroup:
		return "resourceGroup"
	}
	return fmt.Sprintf("ScopeLevel(%d)", int(l))
}

// managementGroupPrefix is the resource path prefix of management group
// scope identifiers.
const managementGroupPrefix = "/providers/Microsoft.Management/managementGroups/"

// Scope is a parsed scope identifier. Exactly one of the three forms is
// populated: management group, subscription, or subscription plus resource
// group.
type Scope struct {
	// ManagementGroup is the management group id for management group
	// scopes.
	ManagementGroup string
	// Subscription is the subscription id for subscription and resource
	// group scopes.
	Subscription string
	// ResourceGroup is the resource group name for resource group scopes.
	ResourceGroup string
}

// ParseScope parses a scope identifier. Accepted forms:
//
//	/providers/Microsoft.Management/managementGroups/<id>
//	/subscriptions/<id>
//	/subscriptions/<id>/resourceGroups/<name>
//
// Path literals are matched case-insensitively; ids are kept verbatim.
func ParseScope(s string) (Scope, error) {
	trimmed := strings.TrimRight(s, "/")
	if trimmed == "" {
		return Scope{}, fmt.Errorf("scope is empty")
	}

	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, strings.ToLower(managementGroupPrefix)) {
		id := trimmed[len(managementGroupPrefix):]
		if id == "" || strings.Contains(id, "/") {
			return Scope{}, fmt.Errorf("invalid management group scope %q", s)
		}
		return Scope{ManagementGroup: id}, nil
	}

	parts := strings.Split(strings.TrimPrefix(trimmed, "/"), "/")
	if len(parts) >= 2 && strings.EqualFold(parts[0], "subscriptions") {
		sub := parts[1]
		if sub == "" {
			return Scope{}, fmt.Errorf("invalid subscription scope %q", s)
		}
		switch len(parts) {
		case 2:
			return Scope{Subscription: sub}, nil
		case 4:
			if !strings.EqualFold(parts[2], "resourceGroups") || parts[3] == "" {
				return Scope{}, fmt.Errorf("invalid resource group scope %q", s)
			}
			return Scope{Subscription: sub, ResourceGroup: parts[3]}, nil
		}
	}

	return Scope{}, fmt.Errorf("unrecognized scope %q", s)
}

// MustParseScope parses a scope identifier and panics on failure. Intended
// for fixed scopes in tests and seed data.
func MustParseScope(s string) Scope {
	scope, err := ParseScope(s)
	if err != nil {
		panic(err)
	}
	return scope
}

// String renders the canonical scope identifier.
func (s Scope) String() string {
	switch {
	case s.ManagementGroup != "":
		return managementGroupPrefix + s.ManagementGroup
	case s.ResourceGroup != "":
		return "/subscriptions/" + s.Subscription + "/resourceGroups/" + s.ResourceGroup
	case s.Subscription != "":
		return "/subscriptions/" + s.Subscription
	}
	return ""
}

// IsZero reports whether the scope is unset.
func (s Scope) IsZero() bool {
	return s.ManagementGroup == "" && s.Subscription == ""
}

// Level returns the scope's hierarchy level.
func (s Scope) Level() ScopeLevel {
	switch {
	case s.ManagementGroup != "":
		return LevelManagementGroup
	case s.ResourceGroup != "":
		return LevelResourceGroup
	}
	return LevelSubscription
}

// Contains reports whether other falls inside this scope. A subscription
// contains its resource groups; every scope contains itself. Management
// group membership is not modeled, so a management group scope contains
// only itself.
func (s Scope) Contains(other Scope) bool {
	if s == other {
		return true
	}
	if s.Level() == LevelSubscription && other.Level() == LevelResourceGroup {
		return strings.EqualFold(s.Subscription, other.Subscription)
	}
	return false
}

// Parent returns the next wider scope, if one exists. Resource groups roll
// up to their subscription; subscriptions and management groups have no
// modeled parent.
func (s Scope) Parent() (Scope, bool) {
	if s.Level() == LevelResourceGroup {
		return Scope{Subscription: s.Subscription}, true
	}
	return Scope{}, false
}

// SelfAndAncestors returns the scope followed by each wider scope up the
// hierarchy, narrowest first.
func (s Scope) SelfAndAncestors() []Scope {
	chain := []Scope{s}
	for cur := s; ; {
		parent, ok := cur.Parent()
		if !ok {
			break
		}
		chain = append(chain, parent)
		cur = parent
	}
	return chain
}

// MarshalText renders the scope as its canonical identifier so scopes
// embed naturally in JSON documents and database columns.
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a canonical scope identifier.
func (s *Scope) UnmarshalText(text []byte) error {
	parsed, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
