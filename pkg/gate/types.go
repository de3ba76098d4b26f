package gate

import (
	"time"
)

// Severity is the severity a gate assigns its violations.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is advisory and never blocks an apply.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the apply.
	SeverityError Severity = "error"

	// SeverityCritical blocks the apply and should page someone.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether violations at this severity deny the plan.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Gate is a governance policy over plans, written in Rego.
type Gate struct {
	// Name is the unique name of the gate.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not carry
	// their own.
	Severity Severity `json:"severity"`

	// Enabled indicates if the gate is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing gates.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional gate metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the gate was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the gate was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}
