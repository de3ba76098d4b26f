package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/policywarden/warden/pkg/resource"
	"github.com/policywarden/warden/pkg/rule"
	"github.com/policywarden/warden/pkg/state"
	"github.com/policywarden/warden/pkg/telemetry"
)

// ResourceRequest describes a resource a caller wants to create. It is the
// input to admission control.
type ResourceRequest struct {
	// Scope is where the resource would live.
	Scope resource.Scope `json:"scope"`

	// Type is the resource type, e.g. "Microsoft.Resources/resourceGroups".
	Type string `json:"type"`

	// Name is the resource name within its scope.
	Name string `json:"name"`

	// Kind is an optional provider-specific sub-type.
	Kind string `json:"kind,omitempty"`

	// Location is the region the resource would be placed in.
	Location string `json:"location,omitempty"`

	// Tags are the resource tags as submitted.
	Tags map[string]string `json:"tags,omitempty"`

	// Properties carries any further fields rules may address.
	Properties map[string]any `json:"properties,omitempty"`

	// Requester identifies the caller for the audit trail.
	Requester string `json:"requester,omitempty"`
}

// Denial is a blocked creation, naming the assignment and definition whose
// rule matched with a deny effect.
type Denial struct {
	Assignment string `json:"assignment"`
	Definition string `json:"definition"`
	Message    string `json:"message"`
}

func (d Denial) String() string {
	return fmt.Sprintf("denied by assignment %q (definition %q): %s", d.Assignment, d.Definition, d.Message)
}

// Finding is a non-blocking rule match: audit effects record it, modify and
// deploy effects surface what a full control plane would remediate.
type Finding struct {
	Assignment string      `json:"assignment"`
	Definition string      `json:"definition"`
	Effect     rule.Effect `json:"effect"`
	Message    string      `json:"message"`
}

// AdmissionResult is the outcome of evaluating a resource request against
// every assignment in force at its scope.
type AdmissionResult struct {
	// Allowed is false when at least one deny rule matched.
	Allowed bool `json:"allowed"`

	// Denials lists every deny match, not just the first.
	Denials []Denial `json:"denials,omitempty"`

	// Findings lists audit/modify/deploy matches.
	Findings []Finding `json:"findings,omitempty"`

	// Properties are the effective resource properties after append effects
	// merged their details. Only meaningful when Allowed.
	Properties map[string]any `json:"properties,omitempty"`
}

// Admission evaluates resource requests against the assignments in force at
// the request's scope. An assignment is in force when its scope contains the
// request's scope.
type Admission struct {
	store   state.Store
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
}

// NewAdmission creates an admission controller over the given store.
func NewAdmission(store state.Store, logger zerolog.Logger) *Admission {
	return &Admission{
		store:  store,
		logger: logger.With().Str("component", "admission").Logger(),
	}
}

// WithTelemetry attaches optional metrics and event publishing. Both may be
// nil.
func (a *Admission) WithTelemetry(metrics *telemetry.Metrics, events *telemetry.EventPublisher) *Admission {
	a.metrics = metrics
	a.events = events
	return a
}

// Check evaluates the request against every assignment whose scope contains
// the request's scope. Deny matches block, audit matches are recorded as
// findings, append matches merge their details into the effective properties.
// Rules see the request as submitted, so decisions do not depend on the order
// assignments are evaluated in; appends are merged after all rules ran and
// never overwrite a value the request already carries.
//
// An assignment whose definition cannot be loaded fails the check rather than
// being skipped.
func (a *Admission) Check(ctx context.Context, req ResourceRequest) (*AdmissionResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	assignments, err := a.store.ListAssignments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	// Deterministic evaluation order for stable denial and finding lists.
	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].Scope.String() != assignments[j].Scope.String() {
			return assignments[i].Scope.String() < assignments[j].Scope.String()
		}
		return assignments[i].Name < assignments[j].Name
	})

	props := req.props()
	result := &AdmissionResult{Allowed: true}
	var appends []rule.AppendDetail

	for i := range assignments {
		asg := &assignments[i]
		if !asg.Scope.Contains(req.Scope) {
			continue
		}

		def, err := a.store.GetDefinition(ctx, asg.DefinitionID)
		if err != nil {
			return nil, fmt.Errorf("assignment %q references definition %q: %w", asg.Name, asg.DefinitionRef, err)
		}
		if def.Rule == nil {
			continue
		}

		decision := def.Rule.Evaluate(props)
		if !decision.Matched {
			continue
		}

		a.logger.Debug().
			Str("assignment", asg.Name).
			Str("definition", def.Name).
			Str("effect", string(decision.Effect)).
			Str("resource", req.Name).
			Msg("Rule matched")

		switch decision.Effect {
		case rule.EffectDeny:
			result.Allowed = false
			result.Denials = append(result.Denials, Denial{
				Assignment: asg.Name,
				Definition: def.Name,
				Message:    denialMessage(def),
			})
		case rule.EffectAppend:
			appends = append(appends, decision.Details...)
		case rule.EffectAudit, rule.EffectAuditIfNotExists, rule.EffectModify, rule.EffectDeployIfNotExists:
			result.Findings = append(result.Findings, Finding{
				Assignment: asg.Name,
				Definition: def.Name,
				Effect:     decision.Effect,
				Message:    fmt.Sprintf("resource %q flagged by %s", req.Name, def.Name),
			})
		}
	}

	result.Properties = mergeAppends(props, appends)

	if a.metrics != nil {
		if result.Allowed {
			a.metrics.RecordAdmissionDecision("allowed")
		} else {
			a.metrics.RecordAdmissionDecision("denied")
		}
	}

	return result, nil
}

// Create runs admission for the request and, when allowed, records the
// resource in the inventory. Both outcomes leave an audit entry naming the
// requester; audit findings leave one entry each.
func (a *Admission) Create(ctx context.Context, req ResourceRequest) (*AdmissionResult, error) {
	result, err := a.Check(ctx, req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	resourceRef := req.Scope.String() + "/" + req.Name

	for _, f := range result.Findings {
		if f.Effect != rule.EffectAudit && f.Effect != rule.EffectAuditIfNotExists {
			continue
		}
		details := mustJSON(f)
		if err := a.store.AppendAudit(ctx, &state.AuditEntry{
			Scope:     req.Scope.String(),
			Actor:     req.Requester,
			Action:    "admission.audit",
			Resource:  &resourceRef,
			Outcome:   "flagged",
			Details:   &details,
			Timestamp: now,
		}); err != nil {
			return nil, fmt.Errorf("failed to record audit finding: %w", err)
		}
	}

	if !result.Allowed {
		details := mustJSON(result.Denials)
		if err := a.store.AppendAudit(ctx, &state.AuditEntry{
			Scope:     req.Scope.String(),
			Actor:     req.Requester,
			Action:    "admission.denied",
			Resource:  &resourceRef,
			Outcome:   "denied",
			Details:   &details,
			Timestamp: now,
		}); err != nil {
			return nil, fmt.Errorf("failed to record denial: %w", err)
		}
		a.publishDecision(req, result)
		return result, nil
	}

	propsJSON := mustJSON(result.Properties)
	if err := a.store.RecordResource(ctx, &state.ResourceRecord{
		ID:         resource.InventoryID(req.Type, req.Name, req.Scope),
		Scope:      req.Scope.String(),
		Type:       req.Type,
		Name:       req.Name,
		Location:   req.Location,
		Properties: propsJSON,
		CreatedAt:  now,
	}); err != nil {
		return nil, fmt.Errorf("failed to record resource: %w", err)
	}

	if err := a.store.AppendAudit(ctx, &state.AuditEntry{
		Scope:     req.Scope.String(),
		Actor:     req.Requester,
		Action:    "admission.allowed",
		Resource:  &resourceRef,
		Outcome:   "allowed",
		Timestamp: now,
	}); err != nil {
		return nil, fmt.Errorf("failed to record admission: %w", err)
	}

	a.publishDecision(req, result)
	return result, nil
}

func (a *Admission) publishDecision(req ResourceRequest, result *AdmissionResult) {
	if a.events == nil {
		return
	}
	decision := "allowed"
	level := telemetry.EventLevelInfo
	if !result.Allowed {
		decision = "denied"
		level = telemetry.EventLevelWarning
	}
	_ = a.events.Publish(telemetry.Event{
		Type:       telemetry.EventTypeAdmissionDecision,
		Source:     "admission",
		ResourceID: req.Name,
		Message:    fmt.Sprintf("admission %s for %s %q at %s", decision, req.Type, req.Name, req.Scope),
		Level:      level,
		Data: map[string]interface{}{
			"decision": decision,
			"scope":    req.Scope.String(),
			"denials":  len(result.Denials),
		},
	})
}

func (req ResourceRequest) validate() error {
	switch {
	case req.Scope.IsZero():
		return fmt.Errorf("resource request: scope is required")
	case req.Type == "":
		return fmt.Errorf("resource request: type is required")
	case req.Name == "":
		return fmt.Errorf("resource request: name is required")
	}
	return nil
}

// props flattens the request into the field space rules address. Empty
// optional fields stay absent so exists conditions see them as missing.
func (req ResourceRequest) props() map[string]any {
	props := make(map[string]any, len(req.Properties)+5)
	for k, v := range req.Properties {
		props[k] = v
	}
	props["type"] = req.Type
	props["name"] = req.Name
	if req.Kind != "" {
		props["kind"] = req.Kind
	}
	if req.Location != "" {
		props["location"] = req.Location
	}
	if len(req.Tags) > 0 {
		tags := make(map[string]any, len(req.Tags))
		for k, v := range req.Tags {
			tags[k] = v
		}
		props["tags"] = tags
	}
	return props
}

// mergeAppends applies append details on top of the request properties.
// Values already present win over appended ones.
func mergeAppends(props map[string]any, details []rule.AppendDetail) map[string]any {
	merged := make(map[string]any, len(props)+len(details))
	for k, v := range props {
		merged[k] = v
	}
	for _, d := range details {
		if key, ok := tagField(d.Field); ok {
			tags, _ := merged["tags"].(map[string]any)
			if tags == nil {
				tags = make(map[string]any)
				merged["tags"] = tags
			}
			if _, exists := tags[key]; !exists {
				tags[key] = d.Value
			}
			continue
		}
		if _, exists := merged[d.Field]; !exists {
			merged[d.Field] = d.Value
		}
	}
	return merged
}

// tagField reports whether field addresses a tag, returning the tag key.
func tagField(field string) (string, bool) {
	if !strings.HasPrefix(field, "tags[") || !strings.HasSuffix(field, "]") {
		return "", false
	}
	key := strings.TrimSuffix(strings.TrimPrefix(field, "tags["), "]")
	key = strings.Trim(key, "'\"")
	if key == "" {
		return "", false
	}
	return key, true
}

func denialMessage(def *resource.PolicyDefinition) string {
	if def.Description != "" {
		return def.Description
	}
	if def.DisplayName != "" {
		return def.DisplayName
	}
	return fmt.Sprintf("blocked by policy %s", def.Name)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
