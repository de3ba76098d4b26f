package reconcile

import (
	"fmt"
	"time"

	"github.com/policywarden/warden/pkg/resource"
)

// Action is the operation a change performs on a resource.
type Action string

const (
	// ActionCreate adds a resource absent from the snapshot.
	ActionCreate Action = "create"
	// ActionUpdate replaces a resource present with different content.
	ActionUpdate Action = "update"
	// ActionDelete removes a resource. Deletes are planned only in destroy
	// mode.
	ActionDelete Action = "delete"
	// ActionNoop marks a resource already in its desired state.
	ActionNoop Action = "noop"
)

// Kind is the resource kind a change operates on.
type Kind string

const (
	KindDefinition Kind = "policyDefinition"
	KindAssignment Kind = "policyAssignment"
)

// FieldDiff records one field-level difference between the live and desired
// resource.
type FieldDiff struct {
	// Path is the field that differs, e.g. "displayName".
	Path string `json:"path"`
	// Before is the live value.
	Before interface{} `json:"before,omitempty"`
	// After is the desired value.
	After interface{} `json:"after,omitempty"`
}

// Change is a unit of work in a plan: one action on one resource.
type Change struct {
	// Kind is the resource kind.
	Kind Kind `json:"kind"`

	// Action is the operation to perform.
	Action Action `json:"action"`

	// ResourceID is the deterministic resource identifier.
	ResourceID string `json:"resource_id"`

	// Name is the resource name.
	Name string `json:"name"`

	// Scope is the canonical scope the resource lives at.
	Scope string `json:"scope"`

	// Diffs lists field-level differences for updates.
	Diffs []FieldDiff `json:"diffs,omitempty"`

	// Definition is the desired definition for create and update changes.
	Definition *resource.PolicyDefinition `json:"definition,omitempty"`

	// Assignment is the desired assignment for create and update changes.
	Assignment *resource.PolicyAssignment `json:"assignment,omitempty"`

	// ReferencedBy names assignments that reference a definition being
	// deleted and are not themselves deleted by this plan.
	ReferencedBy []string `json:"referenced_by,omitempty"`
}

// Summary counts a plan's changes by action.
type Summary struct {
	ToCreate int `json:"to_create"`
	ToUpdate int `json:"to_update"`
	ToDelete int `json:"to_delete"`
	NoChange int `json:"no_change"`
}

// Plan is an ordered set of changes that moves the snapshot to the desired
// state. Changes appear in execution order: definitions before the
// assignments that reference them, reversed for deletes.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`

	// Scope is the workspace scope the plan was computed for.
	Scope string `json:"scope"`

	// Serial is the snapshot serial the plan was computed against. Apply
	// refuses to run against any other serial.
	Serial uint64 `json:"serial"`

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time `json:"created_at"`

	// Destroy marks a plan that removes every managed resource.
	Destroy bool `json:"destroy"`

	// Changes are the planned operations in execution order, noops included.
	Changes []Change `json:"changes"`

	// Summary counts changes by action.
	Summary Summary `json:"summary"`
}

// HasChanges reports whether the plan performs any operation.
func (p *Plan) HasChanges() bool {
	return p.Summary.ToCreate+p.Summary.ToUpdate+p.Summary.ToDelete > 0
}

// String renders the plan summary in one line.
func (p *Plan) String() string {
	return fmt.Sprintf("plan %s for %s at serial %d: %d to create, %d to update, %d to delete, %d unchanged",
		p.ID, p.Scope, p.Serial, p.Summary.ToCreate, p.Summary.ToUpdate, p.Summary.ToDelete, p.Summary.NoChange)
}

// GateInput renders the plan as the input document plan gates evaluate.
func (p *Plan) GateInput() map[string]interface{} {
	changes := make([]interface{}, 0, len(p.Changes))
	for i := range p.Changes {
		c := &p.Changes[i]
		entry := map[string]interface{}{
			"kind":     string(c.Kind),
			"action":   string(c.Action),
			"name":     c.Name,
			"scope":    c.Scope,
			"resource": c.ResourceID,
		}
		if sc, err := resource.ParseScope(c.Scope); err == nil {
			entry["scope_level"] = sc.Level().String()
		}
		if c.Definition != nil {
			entry["display_name"] = c.Definition.DisplayName
			if c.Definition.Rule != nil {
				entry["effect"] = string(c.Definition.Rule.Then.Effect)
			}
		}
		if c.Assignment != nil {
			entry["display_name"] = c.Assignment.DisplayName
			entry["definition_ref"] = c.Assignment.DefinitionRef
		}
		if len(c.ReferencedBy) > 0 {
			entry["referenced_by"] = toInterfaces(c.ReferencedBy)
		}
		changes = append(changes, entry)
	}

	return map[string]interface{}{
		"scope":   p.Scope,
		"serial":  int(p.Serial),
		"destroy": p.Destroy,
		"summary": map[string]interface{}{
			"create": p.Summary.ToCreate,
			"update": p.Summary.ToUpdate,
			"delete": p.Summary.ToDelete,
			"noop":   p.Summary.NoChange,
		},
		"changes": changes,
	}
}

func toInterfaces(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// Desired is the full desired state for a workspace scope.
type Desired struct {
	// Definitions are the policy definitions the workspace manages.
	Definitions []resource.PolicyDefinition `json:"definitions"`

	// Assignments are the policy assignments the workspace manages.
	Assignments []resource.PolicyAssignment `json:"assignments"`
}

// PlanOptions modify how a plan is computed.
type PlanOptions struct {
	// Destroy plans the removal of every managed resource instead of
	// converging on the desired state.
	Destroy bool
}
