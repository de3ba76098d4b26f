package state

import (
	"context"
	"errors"
	"time"

	"github.com/policywarden/warden/pkg/resource"
)

// Sentinel errors surfaced by the store.
var (
	// ErrLockHeld reports that a live lock already exists for the scope.
	// Lock acquisition never queues; the caller fails fast and may re-run.
	ErrLockHeld = errors.New("state lock is held")

	// ErrLockNotFound reports a release or break of a lock that does not
	// exist.
	ErrLockNotFound = errors.New("lock not found")

	// ErrStaleSerial reports a snapshot write whose expected serial no
	// longer matches the stored one. Nothing is written.
	ErrStaleSerial = errors.New("snapshot serial is stale")

	// ErrNotFound reports a missing record.
	ErrNotFound = errors.New("record not found")
)

// RunPhase identifies which driver operation a run executed.
type RunPhase string

const (
	RunPhaseValidate RunPhase = "validate"
	RunPhasePlan     RunPhase = "plan"
	RunPhaseApply    RunPhase = "apply"
	RunPhasePipeline RunPhase = "pipeline"
)

// RunStatus represents the status of a recorded run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// EventLevel represents the severity level of an event.
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Snapshot is a serial-tagged view of the definitions and assignments a
// workspace manages at one scope. Serials are monotonic: every committed
// write increments the serial by exactly one.
type Snapshot struct {
	// Scope is the managing workspace scope.
	Scope string `json:"scope"`
	// Serial is the snapshot version. Zero means never written.
	Serial uint64 `json:"serial"`
	// TakenAt is when this snapshot version was committed.
	TakenAt time.Time `json:"taken_at"`
	// Definitions are the managed policy definitions.
	Definitions []resource.PolicyDefinition `json:"definitions"`
	// Assignments are the managed policy assignments.
	Assignments []resource.PolicyAssignment `json:"assignments"`
}

// FindDefinition returns the definition with the given id, if present.
func (s *Snapshot) FindDefinition(id string) (*resource.PolicyDefinition, bool) {
	for i := range s.Definitions {
		if s.Definitions[i].ID == id {
			return &s.Definitions[i], true
		}
	}
	return nil, false
}

// FindAssignment returns the assignment with the given id, if present.
func (s *Snapshot) FindAssignment(id string) (*resource.PolicyAssignment, bool) {
	for i := range s.Assignments {
		if s.Assignments[i].ID == id {
			return &s.Assignments[i], true
		}
	}
	return nil, false
}

// Lock is a held state lock. At most one lock exists per scope; the
// schema enforces this, not an advisory convention.
type Lock struct {
	ID        string    `json:"id"`
	Scope     string    `json:"scope"`
	Holder    string    `json:"holder"`
	CreatedAt time.Time `json:"created_at"`
}

// Run records one driver operation.
type Run struct {
	ID         string     `json:"id"`
	Scope      string     `json:"scope"`
	Phase      RunPhase   `json:"phase"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      *string    `json:"error,omitempty"`
	// Changes counts the plan changes the run executed.
	Changes int `json:"changes"`
}

// Event represents an append-only log event.
type Event struct {
	ID        int64      `json:"id"`
	RunID     *string    `json:"run_id,omitempty"`
	Level     EventLevel `json:"level"`
	Type      string     `json:"type"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// AuditEntry represents an audit trail entry: admission decisions,
// applied changes, lock breaks.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Scope     string    `json:"scope"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"` // e.g. "admission.denied", "definition.created"
	Resource  *string   `json:"resource,omitempty"`
	Outcome   string    `json:"outcome"`
	Details   *string   `json:"details,omitempty"` // JSON blob
	Timestamp time.Time `json:"timestamp"`
}

// ResourceRecord is an admitted cloud resource in the inventory.
type ResourceRecord struct {
	ID         string    `json:"id"`
	Scope      string    `json:"scope"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	Location   string    `json:"location"`
	Properties string    `json:"properties"` // JSON blob
	CreatedAt  time.Time `json:"created_at"`
}

// Store defines the interface for the persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error

	// Locking
	AcquireLock(ctx context.Context, scope, holder string) (*Lock, error)
	ReleaseLock(ctx context.Context, lockID string) error
	BreakLock(ctx context.Context, lockID string) error
	GetLock(ctx context.Context, scope string) (*Lock, error)

	// Snapshots
	ReadSnapshot(ctx context.Context, scope string) (*Snapshot, error)
	WriteSnapshot(ctx context.Context, snap *Snapshot, expectSerial uint64) error

	// Cross-scope reads for the admission plane
	ListAssignments(ctx context.Context) ([]resource.PolicyAssignment, error)
	GetDefinition(ctx context.Context, id string) (*resource.PolicyDefinition, error)

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, status RunStatus, errMsg *string, changes int) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, runID *string, limit, offset int) ([]*Event, error)

	// Audit operations
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, scope *string, limit, offset int) ([]*AuditEntry, error)

	// Resource inventory
	RecordResource(ctx context.Context, rec *ResourceRecord) error
	ListResources(ctx context.Context, scope string) ([]*ResourceRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
