package resource

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/policywarden/warden/pkg/rule"
)

// Validation sentinel errors.
var (
	// ErrInvalidName reports a name that violates the allowed shape.
	ErrInvalidName = errors.New("name must start and end with an alphanumeric and contain only alphanumerics, dots, underscores, and hyphens")

	// ErrMissingScope reports a resource declared without a scope.
	ErrMissingScope = errors.New("scope is required")

	// ErrMissingRule reports a definition without a policy rule.
	ErrMissingRule = errors.New("policy rule is required")
)

// validate is the shared struct validator.
var validate = validator.New()

// nameShape constrains definition and assignment names: alphanumeric
// bookends, with dots, underscores, and hyphens allowed inside.
var nameShape = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9._-]*[a-zA-Z0-9])?$`)

// PolicyType distinguishes user-authored definitions from built-in ones.
type PolicyType string

const (
	// PolicyTypeCustom marks a definition authored in this workspace.
	PolicyTypeCustom PolicyType = "Custom"
	// PolicyTypeBuiltIn marks a definition shipped with the platform.
	PolicyTypeBuiltIn PolicyType = "BuiltIn"
)

// Validate checks that the policy type is a known value.
func (pt PolicyType) Validate() error {
	switch pt {
	case PolicyTypeCustom, PolicyTypeBuiltIn:
		return nil
	}
	return fmt.Errorf("invalid policy type: %s", pt)
}

// Mode selects which resources a definition evaluates.
type Mode string

const (
	// ModeAll evaluates every resource type.
	ModeAll Mode = "All"
	// ModeIndexed evaluates only resource types that support tags and
	// location.
	ModeIndexed Mode = "Indexed"
)

// Validate checks that the mode is a known value.
func (m Mode) Validate() error {
	switch m {
	case ModeAll, ModeIndexed:
		return nil
	}
	return fmt.Errorf("invalid mode: %s", m)
}

// PolicyDefinition declares a reusable policy rule at a scope. The name is
// unique within the scope and immutable once created; updates replace the
// definition's metadata and rule under the same identity.
type PolicyDefinition struct {
	// ID is the deterministic identifier derived from name and scope.
	ID string `json:"id,omitempty"`

	// Name uniquely identifies the definition within its scope.
	Name string `json:"name" validate:"required,max=64"`

	// Scope is where the definition is declared.
	Scope Scope `json:"scope"`

	// PolicyType is Custom or BuiltIn.
	PolicyType PolicyType `json:"policyType" validate:"required"`

	// Mode is All or Indexed.
	Mode Mode `json:"mode" validate:"required"`

	// DisplayName is the human-readable name shown in listings.
	DisplayName string `json:"displayName,omitempty" validate:"max=128"`

	// Description explains what the policy enforces.
	Description string `json:"description,omitempty" validate:"max=512"`

	// Rule is the condition/effect document the definition enforces.
	Rule *rule.Rule `json:"policyRule"`
}

// Validate checks the definition's structural integrity, including its
// embedded rule document.
func (d *PolicyDefinition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("policy definition %q: %w", d.Name, err)
	}
	if !nameShape.MatchString(d.Name) {
		return fmt.Errorf("policy definition %q: %w", d.Name, ErrInvalidName)
	}
	if err := d.PolicyType.Validate(); err != nil {
		return fmt.Errorf("policy definition %q: %w", d.Name, err)
	}
	if err := d.Mode.Validate(); err != nil {
		return fmt.Errorf("policy definition %q: %w", d.Name, err)
	}
	if d.Scope.IsZero() {
		return fmt.Errorf("policy definition %q: %w", d.Name, ErrMissingScope)
	}
	if d.Rule == nil {
		return fmt.Errorf("policy definition %q: %w", d.Name, ErrMissingRule)
	}
	if err := d.Rule.Validate(); err != nil {
		return fmt.Errorf("policy definition %q: %w", d.Name, err)
	}
	return nil
}

// Equal reports whether two definitions carry the same declared state.
// Identity fields (ID, Name, Scope) are not compared; callers diff within
// one identity.
func (d *PolicyDefinition) Equal(other *PolicyDefinition) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.PolicyType == other.PolicyType &&
		d.Mode == other.Mode &&
		d.DisplayName == other.DisplayName &&
		d.Description == other.Description &&
		reflect.DeepEqual(d.Rule, other.Rule)
}

// RuleEqual reports whether two definitions carry the same policy rule.
func (d *PolicyDefinition) RuleEqual(other *PolicyDefinition) bool {
	if d == nil || other == nil {
		return d == other
	}
	return reflect.DeepEqual(d.Rule, other.Rule)
}

// PolicyAssignment binds a policy definition to a scope, putting the rule
// into enforcement for every resource request inside that scope.
type PolicyAssignment struct {
	// ID is the deterministic identifier derived from name and scope.
	ID string `json:"id,omitempty"`

	// Name uniquely identifies the assignment within its scope.
	Name string `json:"name" validate:"required,max=24"`

	// DisplayName is the human-readable name shown in listings.
	DisplayName string `json:"displayName,omitempty" validate:"max=128"`

	// DefinitionRef names the policy definition this assignment enforces,
	// by definition name or deterministic ID. It must resolve to an
	// existing definition before the assignment can be created.
	DefinitionRef string `json:"definitionRef" validate:"required"`

	// DefinitionID is the resolved definition identifier, populated once
	// the reference has been resolved against desired or live state.
	DefinitionID string `json:"definitionId,omitempty"`

	// Scope determines the blast radius of enforcement.
	Scope Scope `json:"scope"`
}

// Validate checks the assignment's structural integrity. Reference
// resolution happens at plan time, not here.
func (a *PolicyAssignment) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("policy assignment %q: %w", a.Name, err)
	}
	if !nameShape.MatchString(a.Name) {
		return fmt.Errorf("policy assignment %q: %w", a.Name, ErrInvalidName)
	}
	if a.Scope.IsZero() {
		return fmt.Errorf("policy assignment %q: %w", a.Name, ErrMissingScope)
	}
	return nil
}

// Equal reports whether two assignments carry the same declared state
// within one identity.
func (a *PolicyAssignment) Equal(other *PolicyAssignment) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.DisplayName == other.DisplayName &&
		a.DefinitionID == other.DefinitionID
}
