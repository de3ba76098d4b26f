package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/policywarden/warden/pkg/cloud"
	"github.com/policywarden/warden/pkg/resource"
	"github.com/policywarden/warden/pkg/state"
	"github.com/policywarden/warden/pkg/telemetry"
)

// Config wires the driver's collaborators.
type Config struct {
	// Store is the state backend. Required.
	Store state.Store

	// Scope is the workspace scope the driver manages. Required.
	Scope resource.Scope

	// Authorizer answers permission checks. Optional; a nil authorizer
	// allows everything, which is only sensible in tests.
	Authorizer *cloud.Authorizer

	// Gates evaluates plan gates between plan and apply. Optional.
	Gates PlanGate

	// Credentials are the cloud credentials. When nil, Init loads them from
	// the environment.
	Credentials *cloud.Credentials

	// Subject overrides the acting identity. Defaults to the credential
	// client id.
	Subject string

	// Logger is the structured logger.
	Logger zerolog.Logger

	// Metrics records driver metrics. Optional.
	Metrics *telemetry.Metrics

	// Events publishes driver events. Optional.
	Events *telemetry.EventPublisher
}

// Driver reconciles desired policy state against the snapshot for one
// workspace scope: validate, plan, gate, apply.
type Driver struct {
	store   state.Store
	scope   resource.Scope
	authz   *cloud.Authorizer
	gates   PlanGate
	creds   *cloud.Credentials
	subject string
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher

	initialized bool
}

// NewDriver creates a driver. Init must run before Plan or Apply.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.Store == nil {
		return nil, NewPermanentError("state store is required", nil).WithCode(CodeStateIO)
	}
	if cfg.Scope.IsZero() {
		return nil, NewPermanentError("workspace scope is required", nil).WithCode(CodeSchema)
	}

	return &Driver{
		store:   cfg.Store,
		scope:   cfg.Scope,
		authz:   cfg.Authorizer,
		gates:   cfg.Gates,
		creds:   cfg.Credentials,
		subject: cfg.Subject,
		logger:  cfg.Logger.With().Str("component", "driver").Str("scope", cfg.Scope.String()).Logger(),
		metrics: cfg.Metrics,
		events:  cfg.Events,
	}, nil
}

// Scope returns the workspace scope the driver manages.
func (d *Driver) Scope() resource.Scope {
	return d.scope
}

// Subject returns the acting identity. Empty before Init.
func (d *Driver) Subject() string {
	return d.subject
}

// Init verifies the backend, the credentials, and read access to the
// workspace scope. A missing credential is an authentication failure; a
// missing read grant is an authorization failure.
func (d *Driver) Init(ctx context.Context) error {
	if d.creds == nil {
		creds, err := cloud.LoadCredentials()
		if err != nil {
			return NewPermanentError("credential check failed", err).
				WithCode(CodeAuth).WithOperation("init")
		}
		d.creds = creds
	}
	if d.subject == "" {
		d.subject = d.creds.ClientID
	}

	if err := d.store.HealthCheck(ctx); err != nil {
		return NewTransientError("state backend unavailable", err).
			WithCode(CodeStateIO).WithOperation("init")
	}

	if d.authz != nil {
		if err := d.authz.Require(d.subject, d.scope, cloud.ObjectDefinitions, cloud.ActionRead); err != nil {
			return NewPermanentError("workspace read access denied", err).
				WithCode(CodePermissionDenied).WithOperation("init")
		}
	}

	d.initialized = true
	d.logger.Info().Str("subject", d.subject).Msg("Driver initialized")
	return nil
}

// Validate checks every definition and assignment in the desired state and
// returns the full error list, not just the first failure. A nil return
// means everything validated.
func (d *Driver) Validate(ctx context.Context, desired *Desired) []error {
	if desired == nil {
		return []error{NewPermanentError("desired state is nil", nil).WithCode(CodeSchema)}
	}

	var errs []error

	seenDefs := make(map[string]bool, len(desired.Definitions))
	for i := range desired.Definitions {
		def := &desired.Definitions[i]
		if err := def.Validate(); err != nil {
			errs = append(errs, NewPermanentError("invalid policy definition", err).
				WithCode(CodeSchema).WithResource(def.Name))
			continue
		}
		if seenDefs[def.Name] {
			errs = append(errs, NewPermanentError(
				fmt.Sprintf("duplicate policy definition %q", def.Name), nil).
				WithCode(CodeSchema).WithResource(def.Name))
		}
		seenDefs[def.Name] = true
		if !d.scope.Contains(def.Scope) {
			errs = append(errs, NewPermanentError(
				fmt.Sprintf("definition %q scope %s is outside workspace scope %s", def.Name, def.Scope, d.scope), nil).
				WithCode(CodeSchema).WithResource(def.Name))
		}
	}

	seenAsgs := make(map[string]bool, len(desired.Assignments))
	for i := range desired.Assignments {
		asg := &desired.Assignments[i]
		if err := asg.Validate(); err != nil {
			errs = append(errs, NewPermanentError("invalid policy assignment", err).
				WithCode(CodeSchema).WithResource(asg.Name))
			continue
		}
		if seenAsgs[asg.Name] {
			errs = append(errs, NewPermanentError(
				fmt.Sprintf("duplicate policy assignment %q", asg.Name), nil).
				WithCode(CodeSchema).WithResource(asg.Name))
		}
		seenAsgs[asg.Name] = true
		if !d.scope.Contains(asg.Scope) {
			errs = append(errs, NewPermanentError(
				fmt.Sprintf("assignment %q scope %s is outside workspace scope %s", asg.Name, asg.Scope, d.scope), nil).
				WithCode(CodeSchema).WithResource(asg.Name))
		}
	}

	return errs
}

// Plan diffs the desired state against the current snapshot and returns the
// ordered change set. Definitions are planned before the assignments that
// reference them; destroy plans delete assignments before definitions. An
// assignment whose DefinitionRef resolves to neither a desired nor a live
// definition fails the plan with a dependency error.
func (d *Driver) Plan(ctx context.Context, desired *Desired, opts PlanOptions) (*Plan, error) {
	if !d.initialized {
		return nil, NewPermanentError("driver is not initialized", nil).
			WithCode(CodeAuth).WithOperation("plan")
	}

	snap, err := d.store.ReadSnapshot(ctx, d.scope.String())
	if err != nil {
		return nil, NewTransientError("failed to read snapshot", err).
			WithCode(CodeStateIO).WithOperation("plan")
	}

	plan := &Plan{
		ID:        uuid.New().String(),
		Scope:     d.scope.String(),
		Serial:    snap.Serial,
		CreatedAt: time.Now().UTC(),
		Destroy:   opts.Destroy,
	}

	if opts.Destroy {
		d.planDestroy(plan, snap)
	} else {
		if errs := d.Validate(ctx, desired); len(errs) > 0 {
			return nil, NewPermanentError("desired state failed validation", errors.Join(errs...)).
				WithCode(CodeSchema).WithOperation("plan")
		}
		if err := d.planConverge(plan, desired, snap); err != nil {
			return nil, err
		}
	}

	if d.metrics != nil {
		d.metrics.RecordPlanChanges("create", plan.Summary.ToCreate)
		d.metrics.RecordPlanChanges("update", plan.Summary.ToUpdate)
		d.metrics.RecordPlanChanges("delete", plan.Summary.ToDelete)
	}
	d.publishEvent(telemetry.EventTypePlanComputed, "", plan.String(), telemetry.EventLevelInfo, map[string]interface{}{
		"plan_id": plan.ID,
		"serial":  plan.Serial,
		"create":  plan.Summary.ToCreate,
		"update":  plan.Summary.ToUpdate,
		"delete":  plan.Summary.ToDelete,
	})

	d.logger.Info().
		Str("plan_id", plan.ID).
		Uint64("serial", plan.Serial).
		Int("create", plan.Summary.ToCreate).
		Int("update", plan.Summary.ToUpdate).
		Int("delete", plan.Summary.ToDelete).
		Int("noop", plan.Summary.NoChange).
		Bool("destroy", plan.Destroy).
		Msg("Plan computed")

	return plan, nil
}

// planConverge fills the plan with the changes that move the snapshot to the
// desired state. Removal from the desired state is not a delete; deletes
// happen only in destroy mode.
func (d *Driver) planConverge(plan *Plan, desired *Desired, snap *state.Snapshot) error {
	liveDefs := make(map[string]*resource.PolicyDefinition, len(snap.Definitions))
	for i := range snap.Definitions {
		liveDefs[snap.Definitions[i].Name] = &snap.Definitions[i]
	}
	liveAsgs := make(map[string]*resource.PolicyAssignment, len(snap.Assignments))
	for i := range snap.Assignments {
		liveAsgs[snap.Assignments[i].Name] = &snap.Assignments[i]
	}
	desiredDefs := make(map[string]*resource.PolicyDefinition, len(desired.Definitions))
	for i := range desired.Definitions {
		desiredDefs[desired.Definitions[i].Name] = &desired.Definitions[i]
	}

	// Definitions first: assignments depend on them.
	for _, name := range sortedDefNames(desired.Definitions) {
		def := desiredDefs[name]
		def.ID = resource.DefinitionID(def.Name, def.Scope)

		change := Change{
			Kind:       KindDefinition,
			ResourceID: def.ID,
			Name:       def.Name,
			Scope:      def.Scope.String(),
			Definition: def,
		}

		live, exists := liveDefs[name]
		switch {
		case !exists:
			change.Action = ActionCreate
			plan.Summary.ToCreate++
		case live.Equal(def):
			change.Action = ActionNoop
			change.Definition = nil
			plan.Summary.NoChange++
		default:
			change.Action = ActionUpdate
			change.Diffs = diffDefinitions(live, def)
			plan.Summary.ToUpdate++
		}
		plan.Changes = append(plan.Changes, change)
	}

	for _, name := range sortedAsgNames(desired.Assignments) {
		var asg *resource.PolicyAssignment
		for i := range desired.Assignments {
			if desired.Assignments[i].Name == name {
				asg = &desired.Assignments[i]
			}
		}

		defID, err := d.resolveDefinitionRef(asg, desiredDefs, liveDefs)
		if err != nil {
			return err
		}
		asg.DefinitionID = defID
		asg.ID = resource.AssignmentID(asg.Name, asg.Scope)

		change := Change{
			Kind:       KindAssignment,
			ResourceID: asg.ID,
			Name:       asg.Name,
			Scope:      asg.Scope.String(),
			Assignment: asg,
		}

		live, exists := liveAsgs[name]
		switch {
		case !exists:
			change.Action = ActionCreate
			plan.Summary.ToCreate++
		case live.Equal(asg):
			change.Action = ActionNoop
			change.Assignment = nil
			plan.Summary.NoChange++
		default:
			change.Action = ActionUpdate
			change.Diffs = diffAssignments(live, asg)
			plan.Summary.ToUpdate++
		}
		plan.Changes = append(plan.Changes, change)
	}

	return nil
}

// planDestroy fills the plan with deletes for everything the snapshot holds,
// assignments before the definitions they reference.
func (d *Driver) planDestroy(plan *Plan, snap *state.Snapshot) {
	asgs := make([]resource.PolicyAssignment, len(snap.Assignments))
	copy(asgs, snap.Assignments)
	sort.Slice(asgs, func(i, j int) bool { return asgs[i].Name < asgs[j].Name })

	referencedBy := make(map[string][]string)
	for i := range asgs {
		asg := &asgs[i]
		referencedBy[asg.DefinitionID] = append(referencedBy[asg.DefinitionID], asg.Name)
		plan.Changes = append(plan.Changes, Change{
			Kind:       KindAssignment,
			Action:     ActionDelete,
			ResourceID: asg.ID,
			Name:       asg.Name,
			Scope:      asg.Scope.String(),
		})
		plan.Summary.ToDelete++
	}

	defs := make([]resource.PolicyDefinition, len(snap.Definitions))
	copy(defs, snap.Definitions)
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	for i := range defs {
		def := &defs[i]
		plan.Changes = append(plan.Changes, Change{
			Kind:         KindDefinition,
			Action:       ActionDelete,
			ResourceID:   def.ID,
			Name:         def.Name,
			Scope:        def.Scope.String(),
			ReferencedBy: referencedBy[def.ID],
		})
		plan.Summary.ToDelete++
	}
}

// resolveDefinitionRef resolves an assignment's DefinitionRef against the
// desired definitions first, then the live snapshot. Failing both is a
// deterministic dependency error.
func (d *Driver) resolveDefinitionRef(
	asg *resource.PolicyAssignment,
	desiredDefs map[string]*resource.PolicyDefinition,
	liveDefs map[string]*resource.PolicyDefinition,
) (string, error) {
	if def, ok := desiredDefs[asg.DefinitionRef]; ok {
		return resource.DefinitionID(def.Name, def.Scope), nil
	}
	if def, ok := liveDefs[asg.DefinitionRef]; ok {
		return def.ID, nil
	}
	return "", NewPermanentError(
		fmt.Sprintf("assignment %q references unknown definition %q", asg.Name, asg.DefinitionRef), nil).
		WithCode(CodeDependency).WithResource(asg.Name).WithOperation("plan")
}

// Apply executes the plan: gate, lock, re-read, verify serial, authorize
// every write, apply changes in order, commit the snapshot transactionally,
// release the lock. The first failing step aborts the run with nothing
// committed.
func (d *Driver) Apply(ctx context.Context, plan *Plan) (*state.Snapshot, error) {
	if !d.initialized {
		return nil, NewPermanentError("driver is not initialized", nil).
			WithCode(CodeAuth).WithOperation("apply")
	}
	if plan == nil {
		return nil, NewPermanentError("plan is nil", nil).WithCode(CodeSchema).WithOperation("apply")
	}

	if err := d.evaluateGates(ctx, plan); err != nil {
		return nil, err
	}

	if !plan.HasChanges() {
		d.logger.Info().Str("plan_id", plan.ID).Msg("Nothing to apply")
		return d.readSnapshot(ctx)
	}

	started := time.Now()
	run := &state.Run{
		ID:        uuid.New().String(),
		Scope:     plan.Scope,
		Phase:     state.RunPhaseApply,
		Status:    state.RunStatusRunning,
		StartedAt: started.UTC(),
	}
	if err := d.store.CreateRun(ctx, run); err != nil {
		return nil, NewTransientError("failed to record run", err).
			WithCode(CodeStateIO).WithOperation("apply")
	}
	if d.metrics != nil {
		d.metrics.RecordRunStarted(string(state.RunPhaseApply))
	}
	d.publishEvent(telemetry.EventTypeRunStarted, run.ID, "apply started", telemetry.EventLevelInfo, map[string]interface{}{
		"plan_id": plan.ID,
	})

	snap, err := d.applyLocked(ctx, plan, run)
	if err != nil {
		d.finishRun(ctx, run.ID, state.RunStatusFailed, err, 0)
		return nil, err
	}

	changes := plan.Summary.ToCreate + plan.Summary.ToUpdate + plan.Summary.ToDelete
	d.finishRun(ctx, run.ID, state.RunStatusSucceeded, nil, changes)
	if d.metrics != nil {
		d.metrics.RecordRunCompleted(string(state.RunPhaseApply), "succeeded", time.Since(started))
	}
	d.publishEvent(telemetry.EventTypeRunCompleted, run.ID, "apply completed", telemetry.EventLevelInfo, map[string]interface{}{
		"plan_id": plan.ID,
		"serial":  snap.Serial,
		"changes": changes,
	})

	d.logger.Info().
		Str("plan_id", plan.ID).
		Uint64("serial", snap.Serial).
		Int("changes", changes).
		Msg("Apply completed")

	return snap, nil
}

// applyLocked performs the locked section of Apply.
func (d *Driver) applyLocked(ctx context.Context, plan *Plan, run *state.Run) (*state.Snapshot, error) {
	lock, err := d.store.AcquireLock(ctx, plan.Scope, d.subject)
	if err != nil {
		if errors.Is(err, state.ErrLockHeld) {
			if d.metrics != nil {
				d.metrics.RecordLockContention()
			}
			d.publishEvent(telemetry.EventTypeLockContended, run.ID, err.Error(), telemetry.EventLevelWarning, nil)
			return nil, NewConflictError("scope is locked by another run", err).
				WithCode(CodeLockContention).WithOperation("apply")
		}
		return nil, NewTransientError("failed to acquire scope lock", err).
			WithCode(CodeStateIO).WithOperation("apply")
	}
	defer func() {
		if err := d.store.ReleaseLock(context.WithoutCancel(ctx), lock.ID); err != nil {
			d.logger.Error().Err(err).Str("lock_id", lock.ID).Msg("Failed to release scope lock")
		}
	}()
	d.publishEvent(telemetry.EventTypeLockAcquired, run.ID, "scope lock acquired", telemetry.EventLevelInfo, map[string]interface{}{
		"lock_id": lock.ID,
	})

	snap, err := d.store.ReadSnapshot(ctx, plan.Scope)
	if err != nil {
		return nil, NewTransientError("failed to re-read snapshot", err).
			WithCode(CodeStateIO).WithOperation("apply")
	}
	if snap.Serial != plan.Serial {
		return nil, NewConflictError(
			fmt.Sprintf("plan was computed against serial %d but state is at serial %d", plan.Serial, snap.Serial), nil).
			WithCode(CodeStaleSerial).WithOperation("apply")
	}

	if err := d.authorizePlan(plan); err != nil {
		return nil, err
	}

	next := &state.Snapshot{
		Scope:       snap.Scope,
		Definitions: append([]resource.PolicyDefinition(nil), snap.Definitions...),
		Assignments: append([]resource.PolicyAssignment(nil), snap.Assignments...),
	}
	for i := range plan.Changes {
		change := &plan.Changes[i]
		if change.Action == ActionNoop {
			continue
		}
		if err := applyChange(next, change); err != nil {
			d.logger.Error().Err(err).
				Str("name", change.Name).
				Str("action", string(change.Action)).
				Msg("Change failed, aborting run")
			return nil, err
		}
		d.publishEvent(telemetry.EventTypeResourceChanged, run.ID,
			fmt.Sprintf("%s %s %q", change.Action, change.Kind, change.Name),
			telemetry.EventLevelInfo, nil)
	}

	if err := d.store.WriteSnapshot(ctx, next, plan.Serial); err != nil {
		if errors.Is(err, state.ErrStaleSerial) {
			return nil, NewConflictError("snapshot moved during apply", err).
				WithCode(CodeStaleSerial).WithOperation("apply")
		}
		return nil, NewTransientError("failed to commit snapshot", err).
			WithCode(CodeStateIO).WithOperation("apply")
	}

	return next, nil
}

// authorizePlan verifies the subject may write every resource kind the plan
// touches. Runs before any mutation so a denial leaves state untouched.
func (d *Driver) authorizePlan(plan *Plan) error {
	if d.authz == nil {
		return nil
	}
	for i := range plan.Changes {
		change := &plan.Changes[i]
		if change.Action == ActionNoop {
			continue
		}
		obj := cloud.ObjectDefinitions
		if change.Kind == KindAssignment {
			obj = cloud.ObjectAssignments
		}
		scope, err := resource.ParseScope(change.Scope)
		if err != nil {
			return NewPermanentError("change carries an invalid scope", err).
				WithCode(CodeSchema).WithResource(change.Name).WithOperation("apply")
		}
		if err := d.authz.Require(d.subject, scope, obj, cloud.ActionWrite); err != nil {
			return NewPermanentError(
				fmt.Sprintf("subject %q may not %s %s", d.subject, change.Action, change.Kind), err).
				WithCode(CodePermissionDenied).WithResource(change.Name).WithOperation("apply")
		}
	}
	return nil
}

// evaluateGates runs the plan gates. Violations at error severity or above
// deny the apply.
func (d *Driver) evaluateGates(ctx context.Context, plan *Plan) error {
	if d.gates == nil {
		return nil
	}

	result, err := d.gates.EvaluatePlan(ctx, plan.GateInput())
	if err != nil {
		return NewPermanentError("gate evaluation failed", err).
			WithCode(CodeGateDenied).WithOperation("apply")
	}

	for _, v := range result.Violations {
		event := d.logger.Warn()
		if !result.Allowed {
			event = d.logger.Error()
		}
		event.
			Str("gate", v.Gate).
			Str("severity", v.Severity).
			Str("resource", v.Resource).
			Msg(v.Message)
		if d.metrics != nil {
			d.metrics.RecordGateViolation(v.Severity)
		}
		d.publishEvent(telemetry.EventTypeGateViolation, "", v.Message, telemetry.EventLevelWarning, map[string]interface{}{
			"gate":     v.Gate,
			"severity": v.Severity,
			"resource": v.Resource,
		})
	}

	if !result.Allowed {
		blocked := make([]string, 0, len(result.Violations))
		for _, v := range result.Violations {
			if v.Severity != "warning" {
				blocked = append(blocked, fmt.Sprintf("%s: %s", v.Gate, v.Message))
			}
		}
		return NewPermanentError(
			fmt.Sprintf("plan denied by %d gate violation(s)", len(blocked)), nil).
			WithCode(CodeGateDenied).WithOperation("apply").
			WithDetail("violations", blocked)
	}
	return nil
}

// applyChange applies one change to the in-memory snapshot.
func applyChange(snap *state.Snapshot, change *Change) error {
	switch change.Kind {
	case KindDefinition:
		return applyDefinitionChange(snap, change)
	case KindAssignment:
		return applyAssignmentChange(snap, change)
	default:
		return NewPermanentError(fmt.Sprintf("unknown change kind %q", change.Kind), nil).
			WithCode(CodeSchema).WithResource(change.Name)
	}
}

func applyDefinitionChange(snap *state.Snapshot, change *Change) error {
	switch change.Action {
	case ActionCreate, ActionUpdate:
		if change.Definition == nil {
			return NewPermanentError("definition change carries no definition", nil).
				WithCode(CodeSchema).WithResource(change.Name)
		}
		for i := range snap.Definitions {
			if snap.Definitions[i].Name == change.Name {
				snap.Definitions[i] = *change.Definition
				return nil
			}
		}
		snap.Definitions = append(snap.Definitions, *change.Definition)
		return nil
	case ActionDelete:
		for i := range snap.Assignments {
			if snap.Assignments[i].DefinitionID == change.ResourceID {
				return NewPermanentError(
					fmt.Sprintf("definition %q is still referenced by assignment %q", change.Name, snap.Assignments[i].Name), nil).
					WithCode(CodeDependency).WithResource(change.Name)
			}
		}
		for i := range snap.Definitions {
			if snap.Definitions[i].Name == change.Name {
				snap.Definitions = append(snap.Definitions[:i], snap.Definitions[i+1:]...)
				return nil
			}
		}
		return NewPermanentError(fmt.Sprintf("definition %q not found", change.Name), nil).
			WithCode(CodeDependency).WithResource(change.Name)
	default:
		return NewPermanentError(fmt.Sprintf("unknown action %q", change.Action), nil).
			WithCode(CodeSchema).WithResource(change.Name)
	}
}

func applyAssignmentChange(snap *state.Snapshot, change *Change) error {
	switch change.Action {
	case ActionCreate, ActionUpdate:
		if change.Assignment == nil {
			return NewPermanentError("assignment change carries no assignment", nil).
				WithCode(CodeSchema).WithResource(change.Name)
		}
		if !definitionPresent(snap, change.Assignment.DefinitionID) {
			return NewPermanentError(
				fmt.Sprintf("assignment %q references definition %q which is not in the snapshot", change.Name, change.Assignment.DefinitionRef), nil).
				WithCode(CodeDependency).WithResource(change.Name)
		}
		for i := range snap.Assignments {
			if snap.Assignments[i].Name == change.Name {
				snap.Assignments[i] = *change.Assignment
				return nil
			}
		}
		snap.Assignments = append(snap.Assignments, *change.Assignment)
		return nil
	case ActionDelete:
		for i := range snap.Assignments {
			if snap.Assignments[i].Name == change.Name {
				snap.Assignments = append(snap.Assignments[:i], snap.Assignments[i+1:]...)
				return nil
			}
		}
		return NewPermanentError(fmt.Sprintf("assignment %q not found", change.Name), nil).
			WithCode(CodeDependency).WithResource(change.Name)
	default:
		return NewPermanentError(fmt.Sprintf("unknown action %q", change.Action), nil).
			WithCode(CodeSchema).WithResource(change.Name)
	}
}

func definitionPresent(snap *state.Snapshot, id string) bool {
	for i := range snap.Definitions {
		if snap.Definitions[i].ID == id {
			return true
		}
	}
	return false
}

func (d *Driver) readSnapshot(ctx context.Context) (*state.Snapshot, error) {
	snap, err := d.store.ReadSnapshot(ctx, d.scope.String())
	if err != nil {
		return nil, NewTransientError("failed to read snapshot", err).
			WithCode(CodeStateIO).WithOperation("apply")
	}
	return snap, nil
}

func (d *Driver) finishRun(ctx context.Context, runID string, status state.RunStatus, runErr error, changes int) {
	var msg *string
	if runErr != nil {
		s := runErr.Error()
		msg = &s
	}
	if err := d.store.FinishRun(context.WithoutCancel(ctx), runID, status, msg, changes); err != nil {
		d.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to finish run record")
	}
	if runErr != nil {
		d.publishEvent(telemetry.EventTypeRunFailed, runID, runErr.Error(), telemetry.EventLevelError, nil)
	}
}

func (d *Driver) publishEvent(eventType, runID, message, level string, data map[string]interface{}) {
	if d.events == nil {
		return
	}
	_ = d.events.Publish(telemetry.Event{
		Type:    eventType,
		Source:  "driver",
		RunID:   runID,
		Message: message,
		Level:   level,
		Data:    data,
	})
}

// diffDefinitions lists the fields that differ between two definitions.
func diffDefinitions(live, desired *resource.PolicyDefinition) []FieldDiff {
	var diffs []FieldDiff
	if live.DisplayName != desired.DisplayName {
		diffs = append(diffs, FieldDiff{Path: "displayName", Before: live.DisplayName, After: desired.DisplayName})
	}
	if live.Description != desired.Description {
		diffs = append(diffs, FieldDiff{Path: "description", Before: live.Description, After: desired.Description})
	}
	if live.PolicyType != desired.PolicyType {
		diffs = append(diffs, FieldDiff{Path: "policyType", Before: string(live.PolicyType), After: string(desired.PolicyType)})
	}
	if live.Mode != desired.Mode {
		diffs = append(diffs, FieldDiff{Path: "mode", Before: string(live.Mode), After: string(desired.Mode)})
	}
	if !live.RuleEqual(desired) {
		diffs = append(diffs, FieldDiff{Path: "policyRule"})
	}
	return diffs
}

// diffAssignments lists the fields that differ between two assignments.
func diffAssignments(live, desired *resource.PolicyAssignment) []FieldDiff {
	var diffs []FieldDiff
	if live.DisplayName != desired.DisplayName {
		diffs = append(diffs, FieldDiff{Path: "displayName", Before: live.DisplayName, After: desired.DisplayName})
	}
	if live.DefinitionID != desired.DefinitionID {
		diffs = append(diffs, FieldDiff{Path: "policyDefinitionId", Before: live.DefinitionID, After: desired.DefinitionID})
	}
	return diffs
}

func sortedDefNames(defs []resource.PolicyDefinition) []string {
	names := make([]string, len(defs))
	for i := range defs {
		names[i] = defs[i].Name
	}
	sort.Strings(names)
	return names
}

func sortedAsgNames(asgs []resource.PolicyAssignment) []string {
	names := make([]string, len(asgs))
	for i := range asgs {
		names[i] = asgs[i].Name
	}
	sort.Strings(names)
	return names
}
