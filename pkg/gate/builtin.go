package gate

import (
	"time"
)

// BuiltinGates returns the gates every engine starts with.
func BuiltinGates() []Gate {
	return []Gate{
		destroyProtectionGate(),
		displayNameGate(),
		scopeLevelEffectsGate(),
	}
}

// destroyProtectionGate blocks deleting a definition that still has
// assignments.
func destroyProtectionGate() Gate {
	return Gate{
		Name:        "destroy-protection",
		Description: "Forbids deleting a policy definition that still has assignments",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"safety", "destroy"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package warden.gates

import rego.v1

deny contains violation if {
	some change in input.changes
	change.kind == "policyDefinition"
	change.action == "delete"
	count(change.referenced_by) > 0

	violation := {
		"message": sprintf("definition %s still has %d assignment(s): %s",
			[change.name, count(change.referenced_by), concat(", ", change.referenced_by)]),
		"severity": "error",
		"resource": change.name,
	}
}`,
	}
}

// displayNameGate warns about resources created without a display name.
func displayNameGate() Gate {
	return Gate{
		Name:        "require-display-name",
		Description: "Warns when a definition or assignment is created without a display name",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"metadata", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package warden.gates

import rego.v1

deny contains violation if {
	some change in input.changes
	change.action == "create"
	object.get(change, "display_name", "") == ""

	violation := {
		"message": sprintf("%s %s is created without a display name", [change.kind, change.name]),
		"severity": "warning",
		"resource": change.name,
	}
}`,
	}
}

// scopeLevelEffectsGate restricts remediating effects to scopes narrower
// than a management group.
func scopeLevelEffectsGate() Gate {
	return Gate{
		Name:        "scope-level-effects",
		Description: "Restricts modify and deployIfNotExists effects at management group scope",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"effects", "scopes"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package warden.gates

import rego.v1

restricted_effects := {"modify", "deployIfNotExists"}

deny contains violation if {
	some change in input.changes
	change.kind == "policyDefinition"
	change.action in {"create", "update"}
	change.scope_level == "managementGroup"
	restricted_effects[change.effect]

	violation := {
		"message": sprintf("effect %s is not allowed at management group scope (definition %s)",
			[change.effect, change.name]),
		"severity": "error",
		"resource": change.name,
	}
}`,
	}
}
