// Package config parses warden workspace files and runs Starlark
// document generators.
//
// # Overview
//
// A workspace is declared in a single CUE file, conventionally
// warden.cue. It names the workspace, points at the state backend,
// sets the default scope, and declares policy definition and
// assignment documents either inline or by reference. Credentials
// never appear in the workspace file; pkg/cloud reads them from the
// environment.
//
// # Components
//
// CUEParser: parses workspace files, unifies multiple sources, and
// extracts typed documents. Validation runs three layers deep: CUE
// schema unification, validator/v10 struct tags, and document
// invariants such as the rule/ruleFile exclusivity.
//
// SchemaRegistry: holds the built-in CUE schemas (workspace,
// definition, assignment, grant, rule) and supports custom schema
// registration.
//
// StarlarkEvaluator: sandboxed generator execution. Scripts export a
// definitions list; conversion into documents reuses the JSON shapes.
//
// # Usage Example
//
//	parser := config.NewCUEParser(logger)
//
//	cfg, err := parser.Load(ctx, "warden.cue")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if len(cfg.Errors) > 0 {
//	    // report every error, then stop
//	}
//
//	defs, asgs, err := cfg.Desired(filepath.Dir("warden.cue"))
//
// # Workspace Structure
//
//	workspace: {
//	    name:  "platform-policies"
//	    scope: "/subscriptions/prod-sub"
//	    backend: {
//	        type:        "local"
//	        path:        "state/warden.db"
//	        lockTimeout: "30s"
//	    }
//	    documents: {
//	        generators: ["generators/regions.star"]
//	        gates:      ["gates/"]
//	        pipeline:   "pipeline.yaml"
//	    }
//	    grants: [
//	        {subject: "ci-runner", role: "policy-contributor"},
//	    ]
//	}
//
//	definitions: {
//	    "allowed-locations": {
//	        displayName: "Allowed locations"
//	        rule: {
//	            "if": {field: "location", notIn: ["eastus", "westus"]}
//	            then: {effect: "deny"}
//	        }
//	    }
//	}
//
//	assignments: {
//	    "enforce-locations": {definition: "allowed-locations"}
//	}
//
// The remoteWorkspace block from earlier releases is still decoded so
// init can warn about it, but state always lives in the local backend.
//
// # Generators
//
// Starlark generators produce definition documents programmatically.
// The script receives workspace variables as vars and exports a
// definitions list:
//
//	definitions = [{
//	    "name": "require-tag-" + tag,
//	    "rule": {
//	        "if": {"field": "tags[" + tag + "]", "exists": "false"},
//	        "then": {"effect": "audit"},
//	    },
//	} for tag in vars["required_tags"]]
//
// Execution is sandboxed: no filesystem or network access, no while
// loops or recursion, print routed to debug logging, and a timeout
// that cancels the script.
//
// # Error Handling
//
// All parsing and validation errors carry location information:
//
//	ValidationError{
//	    File: "warden.cue",
//	    Line: 12,
//	    Column: 5,
//	    Path: "definitions.allowed-locations",
//	    Message: "one of rule or ruleFile is required",
//	    Severity: "error",
//	}
//
// A Config with a non-empty Errors slice must not be planned or
// applied.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package config
