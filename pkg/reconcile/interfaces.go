package reconcile

import (
	"context"
	"time"
)

// PlanGate evaluates governance policy over a plan before it is applied.
// pkg/gate provides the Rego-backed implementation.
type PlanGate interface {
	// EvaluatePlan evaluates the gate policies against a plan input
	// document, as produced by Plan.GateInput.
	EvaluatePlan(ctx context.Context, input map[string]interface{}) (*GateResult, error)
}

// GateResult is the outcome of evaluating plan gates.
type GateResult struct {
	// Allowed indicates whether the plan may be applied. Violations at
	// warning severity do not block.
	Allowed bool `json:"allowed"`

	// Violations lists every gate violation.
	Violations []GateViolation `json:"violations,omitempty"`

	// EvaluatedAt is when the gates were evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// GateViolation is a single gate violation.
type GateViolation struct {
	// Gate is the name of the violated gate policy.
	Gate string `json:"gate"`

	// Severity is the violation severity (warning, error, critical).
	Severity string `json:"severity"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Resource is the resource that violated the gate, if applicable.
	Resource string `json:"resource,omitempty"`
}
