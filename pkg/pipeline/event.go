package pipeline

import (
	"fmt"
)

// EventType is the trigger kind of a pipeline run.
type EventType string

const (
	// EventPullRequest triggers the validate phase.
	EventPullRequest EventType = "pull_request"

	// EventPush triggers the apply phase when the branch matches.
	EventPush EventType = "push"
)

// Validate checks if the event type is known.
func (t EventType) Validate() error {
	switch t {
	case EventPullRequest, EventPush:
		return nil
	default:
		return fmt.Errorf("invalid event type: %s", t)
	}
}

// Event is a trigger delivered to the pipeline. The event type is the only
// branching input a run acts on.
type Event struct {
	// Type is the trigger kind.
	Type EventType `json:"type"`

	// Branch is the branch the event happened on.
	Branch string `json:"branch,omitempty"`

	// SHA is the commit the run operates on.
	SHA string `json:"sha,omitempty"`

	// Actor is who caused the event.
	Actor string `json:"actor,omitempty"`
}

// Validate checks that the event is well formed.
func (e *Event) Validate() error {
	if err := e.Type.Validate(); err != nil {
		return err
	}
	if e.Type == EventPush && e.Branch == "" {
		return fmt.Errorf("push events require a branch")
	}
	return nil
}
