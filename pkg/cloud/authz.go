package cloud

import (
	"errors"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/policywarden/warden/pkg/resource"
)

// ErrPermissionDenied reports a caller lacking the permission an operation
// requires. Authorization failures are never retried.
var ErrPermissionDenied = errors.New("permission denied")

// Object is an authorization object kind.
type Object string

const (
	// ObjectDefinitions covers policy definition operations.
	ObjectDefinitions Object = "policyDefinitions"
	// ObjectAssignments covers policy assignment operations.
	ObjectAssignments Object = "policyAssignments"
)

// Action is an authorization action.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// Built-in role names.
const (
	// RoleOwner may read and write definitions and assignments.
	RoleOwner = "owner"
	// RoleContributor may write definitions but only read assignments.
	RoleContributor = "policy-contributor"
	// RoleAuditor may read everything and write nothing.
	RoleAuditor = "auditor"
)

// rbacModel is RBAC with domains: the domain is a scope identifier, the
// subject is a client id or role, the object is a resource kind, and the
// action is read or write.
const rbacModel = `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub, r.dom) && r.dom == p.dom && r.obj == p.obj && r.act == p.act
`

// rolePermissions maps each built-in role to the object/action pairs it
// grants within its domain.
var rolePermissions = map[string][]struct {
	obj Object
	act Action
}{
	RoleOwner: {
		{ObjectDefinitions, ActionRead},
		{ObjectDefinitions, ActionWrite},
		{ObjectAssignments, ActionRead},
		{ObjectAssignments, ActionWrite},
	},
	RoleContributor: {
		{ObjectDefinitions, ActionRead},
		{ObjectDefinitions, ActionWrite},
		{ObjectAssignments, ActionRead},
	},
	RoleAuditor: {
		{ObjectDefinitions, ActionRead},
		{ObjectAssignments, ActionRead},
	},
}

// Grant seeds a role for a subject at a scope. Grants at a subscription
// cover the subscription's resource groups through scope ancestry.
type Grant struct {
	// Subject is the client id receiving the role.
	Subject string
	// Role is one of the built-in role names.
	Role string
	// Scope is the canonical scope identifier the role applies at.
	Scope string
}

// Authorizer answers permission checks with scope-hierarchy awareness: a
// request at a resource group is allowed when the subject holds the
// permission at the resource group, its subscription, or any wider scope.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

// NewAuthorizer builds an authorizer seeded with the given grants.
func NewAuthorizer(grants []Grant) (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to build authorization model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to build enforcer: %w", err)
	}

	a := &Authorizer{enforcer: enforcer}
	for _, g := range grants {
		if err := a.AddGrant(g); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// AddGrant assigns a built-in role to a subject at a scope.
func (a *Authorizer) AddGrant(g Grant) error {
	perms, ok := rolePermissions[g.Role]
	if !ok {
		return fmt.Errorf("unknown role %q", g.Role)
	}
	scope, err := resource.ParseScope(g.Scope)
	if err != nil {
		return fmt.Errorf("grant for %s: %w", g.Subject, err)
	}
	domain := scope.String()

	role := "role:" + g.Role
	if _, err := a.enforcer.AddRoleForUserInDomain(g.Subject, role, domain); err != nil {
		return fmt.Errorf("failed to grant %s to %s: %w", g.Role, g.Subject, err)
	}
	for _, p := range perms {
		if _, err := a.enforcer.AddPolicy(role, domain, string(p.obj), string(p.act)); err != nil {
			return fmt.Errorf("failed to seed %s permissions: %w", g.Role, err)
		}
	}
	return nil
}

// Can reports whether the subject holds the permission at the scope or
// any of its ancestors.
func (a *Authorizer) Can(subject string, scope resource.Scope, obj Object, act Action) (bool, error) {
	for _, s := range scope.SelfAndAncestors() {
		ok, err := a.enforcer.Enforce(subject, s.String(), string(obj), string(act))
		if err != nil {
			return false, fmt.Errorf("authorization check failed: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Require returns ErrPermissionDenied when the subject lacks the
// permission at the scope.
func (a *Authorizer) Require(subject string, scope resource.Scope, obj Object, act Action) error {
	ok, err := a.Can(subject, scope, obj, act)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s lacks %s on %s at %s: %w", subject, act, obj, scope, ErrPermissionDenied)
	}
	return nil
}
