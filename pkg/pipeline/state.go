package pipeline

import (
	"errors"
	"fmt"
)

// RunState represents the state of one pipeline run. A run enters
// validating or applying depending on the trigger event and always ends in
// a terminal state. There is no edge from validated to applying: the merge
// is the trigger for an apply run, never the pipeline itself.
type RunState string

const (
	// StateIdle is the initial state before a trigger is accepted.
	StateIdle RunState = "idle"

	// StateValidating indicates a pull-request run is executing.
	StateValidating RunState = "validating"

	// StateValidated indicates every validate step succeeded.
	StateValidated RunState = "validated"

	// StateRejected indicates a validate step failed. A rejected run
	// blocks the merge.
	StateRejected RunState = "rejected"

	// StateApplying indicates a push-to-main run is executing.
	StateApplying RunState = "applying"

	// StateApplied indicates every apply step succeeded.
	StateApplied RunState = "applied"

	// StateFailed indicates an apply step failed. Live state stays at its
	// last successfully applied value.
	StateFailed RunState = "failed"
)

// ErrInvalidTransition reports a state change the pipeline does not allow.
// Hitting it is a programming error, not an operational condition.
var ErrInvalidTransition = errors.New("invalid pipeline state transition")

// transitions is the complete edge set. Any edge absent here is forbidden.
var transitions = map[RunState][]RunState{
	StateIdle:       {StateValidating, StateApplying},
	StateValidating: {StateValidated, StateRejected},
	StateApplying:   {StateApplied, StateFailed},
}

// IsTerminal returns true if the state represents a final state.
func (s RunState) IsTerminal() bool {
	return s == StateValidated || s == StateRejected ||
		s == StateApplied || s == StateFailed
}

// IsActive returns true if a run in this state is currently executing.
func (s RunState) IsActive() bool {
	return s == StateValidating || s == StateApplying
}

// Validate checks if the run state is valid.
func (s RunState) Validate() error {
	switch s {
	case StateIdle, StateValidating, StateValidated, StateRejected,
		StateApplying, StateApplied, StateFailed:
		return nil
	default:
		return fmt.Errorf("invalid run state: %s", s)
	}
}

// CanTransition reports whether the edge from one state to another exists.
func CanTransition(from, to RunState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates the edge and returns the new state. The returned
// state is unchanged on error.
func Transition(from, to RunState) (RunState, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}
