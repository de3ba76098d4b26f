package gate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/policywarden/warden/pkg/reconcile"
)

// Engine evaluates plan gates. It implements reconcile.PlanGate.
type Engine struct {
	mu           sync.RWMutex
	gates        map[string]*compiledGate
	logger       zerolog.Logger
	builtinGates []Gate
}

// compiledGate is a gate whose Rego parsed successfully.
type compiledGate struct {
	gate     *Gate
	module   *ast.Module
	compiled time.Time
}

// NewEngine creates a gate engine preloaded with the built-in gates.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		gates:        make(map[string]*compiledGate),
		logger:       logger.With().Str("component", "gate-engine").Logger(),
		builtinGates: BuiltinGates(),
	}

	for i := range e.builtinGates {
		if err := e.compileAndStore(&e.builtinGates[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in gate %s: %w", e.builtinGates[i].Name, err)
		}
	}

	return e, nil
}

// EvaluatePlan evaluates every enabled gate against the plan input document
// and reports the combined result. The plan is allowed unless a violation at
// error severity or above fires.
func (e *Engine) EvaluatePlan(ctx context.Context, input map[string]interface{}) (*reconcile.GateResult, error) {
	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	var allViolations []reconcile.GateViolation

	for _, name := range e.sortedNames() {
		cg := e.gates[name]
		if !cg.gate.Enabled {
			continue
		}

		violations, err := e.evaluateGate(ctx, cg, input)
		if err != nil {
			return nil, fmt.Errorf("gate %s evaluation failed: %w", cg.gate.Name, err)
		}
		allViolations = append(allViolations, violations...)
	}

	allowed := true
	for i := range allViolations {
		if Severity(allViolations[i].Severity).Blocks() {
			allowed = false
			break
		}
	}

	e.logger.Debug().
		Int("gates", len(e.gates)).
		Int("violations", len(allViolations)).
		Bool("allowed", allowed).
		Dur("duration", time.Since(startTime)).
		Msg("Plan gate evaluation completed")

	return &reconcile.GateResult{
		Allowed:     allowed,
		Violations:  allViolations,
		EvaluatedAt: time.Now(),
	}, nil
}

// evaluateGate evaluates a single gate and parses its deny set.
func (e *Engine) evaluateGate(ctx context.Context, cg *compiledGate, input map[string]interface{}) ([]reconcile.GateViolation, error) {
	query := fmt.Sprintf("data.%s.deny", packageName(cg.gate.Rego))

	r := rego.New(
		rego.Module(cg.gate.Name, cg.gate.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("gate evaluation error: %w", err)
	}

	var violations []reconcile.GateViolation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, e.toViolation(cg.gate, d))
		}
	}

	return violations, nil
}

// toViolation converts one deny result into a violation. Results may be
// plain message strings or objects carrying message, severity, and resource.
func (e *Engine) toViolation(g *Gate, result interface{}) reconcile.GateViolation {
	violation := reconcile.GateViolation{
		Gate:     g.Name,
		Severity: string(g.Severity),
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = sev
		}
		if res, ok := v["resource"].(string); ok {
			violation.Resource = res
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// AddGate compiles and registers a gate, replacing any gate with the same
// name.
func (e *Engine) AddGate(g *Gate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compileAndStore(g)
}

// LoadPaths loads gates from files and directories and registers them.
func (e *Engine) LoadPaths(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	gates, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load gates: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range gates {
		if err := e.compileAndStore(&gates[i]); err != nil {
			return fmt.Errorf("failed to compile gate %s: %w", gates[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(gates)).Msg("Gates loaded")
	return nil
}

// Replace swaps the loaded file gates for the given set, keeping the
// built-in gates. Used by the hot-reload path.
func (e *Engine) Replace(gates []Gate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*compiledGate, len(gates)+len(e.builtinGates))
	prev := e.gates
	e.gates = next

	for i := range e.builtinGates {
		if err := e.compileAndStore(&e.builtinGates[i]); err != nil {
			e.gates = prev
			return err
		}
	}
	for i := range gates {
		if err := e.compileAndStore(&gates[i]); err != nil {
			e.gates = prev
			return fmt.Errorf("failed to compile gate %s: %w", gates[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(gates)).Msg("Gates replaced")
	return nil
}

// GetGate returns a gate by name.
func (e *Engine) GetGate(name string) (*Gate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cg, exists := e.gates[name]
	if !exists {
		return nil, fmt.Errorf("gate not found: %s", name)
	}
	return cg.gate, nil
}

// ListGates returns all registered gates sorted by name.
func (e *Engine) ListGates() []Gate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	gates := make([]Gate, 0, len(e.gates))
	for _, name := range e.sortedNames() {
		gates = append(gates, *e.gates[name].gate)
	}
	return gates
}

// compileAndStore parses a gate's Rego and registers it. Callers hold the
// write lock.
func (e *Engine) compileAndStore(g *Gate) error {
	module, err := ast.ParseModule(g.Name, g.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse gate: %w", err)
	}

	e.gates[g.Name] = &compiledGate{
		gate:     g,
		module:   module,
		compiled: time.Now(),
	}

	e.logger.Debug().Str("gate", g.Name).Msg("Gate compiled")
	return nil
}

// sortedNames returns gate names in stable order. Callers hold a lock.
func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.gates))
	for name := range e.gates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// packageName extracts the package name from Rego code.
func packageName(code string) string {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "warden.gates"
}
