// Package gate provides Open Policy Agent (OPA) plan gates for Warden.
//
// Gates are Rego policies evaluated against a computed plan before it is
// applied. A gate emits violations; violations at error or critical
// severity block the apply, while info and warning violations are
// surfaced but do not block.
//
// # Architecture
//
// The gate system consists of three main components:
//
//  1. Engine - Compiles gate Rego and evaluates plans against it
//  2. Loader - Loads gates from files and directories, with hot reload
//  3. Built-in Gates - Pre-defined gates for common guardrails
//
// # Usage
//
// Creating a gate engine and wiring it into the driver:
//
//	engine, err := gate.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	driver, err := reconcile.NewDriver(reconcile.Config{
//	    Store: store,
//	    Scope: "/subscriptions/sub-1",
//	    Gates: engine,
//	})
//
// The engine implements reconcile.PlanGate, so the driver calls
// EvaluatePlan with the plan's gate input before acquiring the state lock.
//
// # Built-in Gates
//
// The following gates are included by default:
//
//  1. destroy-protection - Blocks deleting definitions that assignments still reference
//  2. require-display-name - Warns when new resources omit a display name
//  3. scope-level-effects - Blocks remediation effects at management group scope
//
// # Custom Gates
//
// Custom gates are Rego modules that contribute to a deny set:
//
//	package warden.gates
//
//	import rego.v1
//
//	deny contains violation if {
//	    some change in input.changes
//	    change.action == "delete"
//	    not input.destroy
//
//	    violation := {
//	        "message": "deletes are only allowed in destroy runs",
//	        "severity": "error",
//	        "resource": change.resource,
//	    }
//	}
//
// A violation may be a plain string (treated as error severity) or an
// object with message, severity, and resource fields.
//
// # Gate Input
//
// The input document is the plan's GateInput: scope, serial, destroy,
// a summary of counts, and one entry per change carrying kind, action,
// name, scope, scope_level, display_name, effect, and referenced_by.
//
// # Hot Reload
//
// The loader supports watching gate files for changes:
//
//	loader := gate.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(gates []gate.Gate) error {
//	    return engine.Replace(gates)
//	})
package gate
