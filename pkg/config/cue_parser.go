package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// DeprecationRemoteWorkspace is recorded when a workspace file still
// carries a remoteWorkspace block. The block is decoded and ignored.
const DeprecationRemoteWorkspace = "workspace.remoteWorkspace is deprecated and ignored: state lives in the local backend block"

// CUEParser parses and validates CUE workspace files.
type CUEParser struct {
	ctx               *cue.Context
	schemaRegistry    *SchemaRegistry
	starlarkEvaluator *StarlarkEvaluator
	validator         *validator.Validate
	logger            zerolog.Logger
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser(logger zerolog.Logger) *CUEParser {
	return &CUEParser{
		ctx:               cuecontext.New(),
		schemaRegistry:    NewSchemaRegistry(),
		starlarkEvaluator: NewStarlarkEvaluator(logger, 30*time.Second),
		validator:         validator.New(),
		logger:            logger.With().Str("component", "config").Logger(),
	}
}

// Load parses a workspace file and runs its generators. Generated
// definitions are appended after the declared ones. A config carrying
// errors is returned rather than an error so callers can report every
// problem at once.
func (cp *CUEParser) Load(ctx context.Context, workspacePath string) (*Config, error) {
	cfg, err := cp.Parse(ctx, []string{workspacePath})
	if err != nil {
		return nil, err
	}
	if len(cfg.Errors) > 0 {
		return cfg, nil
	}

	baseDir := filepath.Dir(workspacePath)
	for _, gen := range cfg.Workspace.Documents.Generators {
		genPath := gen
		if !filepath.IsAbs(genPath) {
			genPath = filepath.Join(baseDir, genPath)
		}

		docs, err := cp.starlarkEvaluator.EvaluateGeneratorFile(ctx, genPath, cfg.Workspace.Variables)
		if err != nil {
			cfg.Errors = append(cfg.Errors, ValidationError{
				File:     genPath,
				Message:  err.Error(),
				Severity: "error",
			})
			continue
		}

		for i := range docs {
			if err := cp.checkDefinitionDoc(ctx, &docs[i]); err != nil {
				cfg.Errors = append(cfg.Errors, ValidationError{
					File:     genPath,
					Path:     fmt.Sprintf("definitions.%s", docs[i].Name),
					Message:  err.Error(),
					Severity: "error",
				})
				continue
			}
			cfg.Definitions = append(cfg.Definitions, docs[i])
		}
	}

	if len(cfg.Errors) == 0 {
		cp.checkDuplicates(cfg)
	}

	return cfg, nil
}

// Parse parses CUE workspace configuration from the given sources.
func (cp *CUEParser) Parse(ctx context.Context, sources []string) (*Config, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var cueValue cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if info.IsDir() {
			val, files, errs := cp.loadDirectory(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				if cueValue.Exists() {
					cueValue = cueValue.Unify(val)
				} else {
					cueValue = val
				}
			}
			sourceFiles = append(sourceFiles, files...)
		} else {
			val, errs := cp.loadFile(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				if cueValue.Exists() {
					cueValue = cueValue.Unify(val)
				} else {
					cueValue = val
				}
			}
			sourceFiles = append(sourceFiles, source)
		}
	}

	if len(parseErrors) > 0 {
		return &Config{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	if err := cueValue.Err(); err != nil {
		parseErrors = append(parseErrors, cp.convertCUEErrors(err)...)
		return &Config{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	return cp.extractConfig(ctx, cueValue, sourceFiles)
}

// ParseInline parses inline CUE content.
func (cp *CUEParser) ParseInline(ctx context.Context, content string) (*Config, error) {
	val := cp.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return &Config{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      cp.convertCUEErrors(err),
		}, nil
	}

	return cp.extractConfig(ctx, val, []string{"inline"})
}

// loadDirectory loads a directory as a CUE package.
func (cp *CUEParser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(inst.Err)
	}

	val := cp.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return val, files, nil
}

// loadFile loads a single CUE file.
func (cp *CUEParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := cp.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, cp.convertCUEErrors(err)
	}

	return val, nil
}

// extractConfig extracts the workspace configuration from a CUE value.
func (cp *CUEParser) extractConfig(ctx context.Context, val cue.Value, sourceFiles []string) (*Config, error) {
	cfg := &Config{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	workspaceVal := val.LookupPath(cue.ParsePath("workspace"))
	if !workspaceVal.Exists() {
		cfg.Errors = append(cfg.Errors, ValidationError{
			Path:     "workspace",
			Message:  "workspace block is required",
			Severity: "error",
		})
		return cfg, nil
	}

	var workspace Workspace
	if err := workspaceVal.Decode(&workspace); err != nil {
		cfg.Errors = append(cfg.Errors, ValidationError{
			Path:     "workspace",
			Message:  fmt.Sprintf("failed to decode workspace: %v", err),
			Severity: "error",
		})
		return cfg, nil
	}
	cfg.Workspace = workspace

	if err := cp.validator.Struct(&cfg.Workspace); err != nil {
		cfg.Errors = append(cfg.Errors, ValidationError{
			Path:     "workspace",
			Message:  fmt.Sprintf("validation failed: %v", err),
			Severity: "error",
		})
	} else if err := cp.schemaRegistry.ValidateWorkspace(ctx, cfg.Workspace); err != nil {
		cfg.Errors = append(cfg.Errors, ValidationError{
			Path:     "workspace",
			Message:  err.Error(),
			Severity: "error",
		})
	}

	cp.validateWorkspace(cfg)
	cp.extractDefinitions(ctx, val, cfg)
	cp.extractAssignments(ctx, val, cfg)
	cp.checkDuplicates(cfg)

	return cfg, nil
}

// validateWorkspace checks the decoded workspace block beyond struct
// tags: backend shape, lock timeout, and deprecations.
func (cp *CUEParser) validateWorkspace(cfg *Config) {
	ws := &cfg.Workspace

	if ws.RemoteWorkspace != nil {
		cfg.Deprecations = append(cfg.Deprecations, DeprecationRemoteWorkspace)
	}

	backend := ws.BackendOrDefault()
	if backend.Type == "local" && backend.Path == "" {
		cfg.Errors = append(cfg.Errors, ValidationError{
			Path:     "workspace.backend",
			Message:  "local backend requires a path",
			Severity: "error",
		})
	}
	if _, err := backend.LockTimeoutDuration(); err != nil {
		cfg.Errors = append(cfg.Errors, ValidationError{
			Path:     "workspace.backend.lockTimeout",
			Message:  err.Error(),
			Severity: "error",
		})
	}
}

// extractDefinitions extracts the definitions collection. Definitions
// can be either a struct keyed by name or a list.
func (cp *CUEParser) extractDefinitions(ctx context.Context, val cue.Value, cfg *Config) {
	docsVal := val.LookupPath(cue.ParsePath("definitions"))
	if !docsVal.Exists() {
		return
	}

	switch docsVal.Kind() {
	case cue.StructKind:
		// Plain Fields skips #templates and hidden fields, which are
		// legitimate CUE factoring inside the collection.
		iter, err := docsVal.Fields()
		if err != nil {
			cfg.Errors = append(cfg.Errors, ValidationError{
				Path:     "definitions",
				Message:  fmt.Sprintf("failed to iterate definitions: %v", err),
				Severity: "error",
			})
			return
		}
		for iter.Next() {
			doc, err := cp.extractDefinition(ctx, iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				cfg.Errors = append(cfg.Errors, ValidationError{
					Path:     fmt.Sprintf("definitions.%s", iter.Selector()),
					Message:  err.Error(),
					Severity: "error",
				})
				continue
			}
			cfg.Definitions = append(cfg.Definitions, doc)
		}
	case cue.ListKind:
		list, err := docsVal.List()
		if err != nil {
			cfg.Errors = append(cfg.Errors, ValidationError{
				Path:     "definitions",
				Message:  fmt.Sprintf("failed to list definitions: %v", err),
				Severity: "error",
			})
			return
		}
		idx := 0
		for list.Next() {
			doc, err := cp.extractDefinition(ctx, "", list.Value())
			if err != nil {
				cfg.Errors = append(cfg.Errors, ValidationError{
					Path:     fmt.Sprintf("definitions[%d]", idx),
					Message:  err.Error(),
					Severity: "error",
				})
			} else {
				cfg.Definitions = append(cfg.Definitions, doc)
			}
			idx++
		}
	default:
		cfg.Errors = append(cfg.Errors, ValidationError{
			Path:     "definitions",
			Message:  "definitions must be a struct or a list",
			Severity: "error",
		})
	}
}

// extractAssignments extracts the assignments collection with the same
// struct-or-list convention as definitions.
func (cp *CUEParser) extractAssignments(ctx context.Context, val cue.Value, cfg *Config) {
	docsVal := val.LookupPath(cue.ParsePath("assignments"))
	if !docsVal.Exists() {
		return
	}

	switch docsVal.Kind() {
	case cue.StructKind:
		iter, err := docsVal.Fields()
		if err != nil {
			cfg.Errors = append(cfg.Errors, ValidationError{
				Path:     "assignments",
				Message:  fmt.Sprintf("failed to iterate assignments: %v", err),
				Severity: "error",
			})
			return
		}
		for iter.Next() {
			doc, err := cp.extractAssignment(ctx, iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				cfg.Errors = append(cfg.Errors, ValidationError{
					Path:     fmt.Sprintf("assignments.%s", iter.Selector()),
					Message:  err.Error(),
					Severity: "error",
				})
				continue
			}
			cfg.Assignments = append(cfg.Assignments, doc)
		}
	case cue.ListKind:
		list, err := docsVal.List()
		if err != nil {
			cfg.Errors = append(cfg.Errors, ValidationError{
				Path:     "assignments",
				Message:  fmt.Sprintf("failed to list assignments: %v", err),
				Severity: "error",
			})
			return
		}
		idx := 0
		for list.Next() {
			doc, err := cp.extractAssignment(ctx, "", list.Value())
			if err != nil {
				cfg.Errors = append(cfg.Errors, ValidationError{
					Path:     fmt.Sprintf("assignments[%d]", idx),
					Message:  err.Error(),
					Severity: "error",
				})
			} else {
				cfg.Assignments = append(cfg.Assignments, doc)
			}
			idx++
		}
	default:
		cfg.Errors = append(cfg.Errors, ValidationError{
			Path:     "assignments",
			Message:  "assignments must be a struct or a list",
			Severity: "error",
		})
	}
}

// extractDefinition extracts a definition document from a CUE value.
func (cp *CUEParser) extractDefinition(ctx context.Context, name string, val cue.Value) (DefinitionDoc, error) {
	var doc DefinitionDoc

	if err := val.Decode(&doc); err != nil {
		return doc, fmt.Errorf("failed to decode definition: %w", err)
	}

	// Name may come from the struct key.
	if doc.Name == "" && name != "" {
		doc.Name = name
	}

	if err := cp.checkDefinitionDoc(ctx, &doc); err != nil {
		return doc, err
	}

	return doc, nil
}

// checkDefinitionDoc runs struct tags, the definition schema, and the
// rule-source invariant over one definition document.
func (cp *CUEParser) checkDefinitionDoc(ctx context.Context, doc *DefinitionDoc) error {
	if err := cp.validator.Struct(doc); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := cp.schemaRegistry.ValidateDefinition(ctx, *doc); err != nil {
		return err
	}

	if len(doc.Rule) > 0 && doc.RuleFile != "" {
		return fmt.Errorf("rule and ruleFile are mutually exclusive")
	}
	if len(doc.Rule) == 0 && doc.RuleFile == "" {
		return fmt.Errorf("one of rule or ruleFile is required")
	}

	// Inline rules get the coarse shape check here; the exact
	// exactly-one-operator invariant is enforced when the rule parses.
	if len(doc.Rule) > 0 {
		var ruleDoc map[string]interface{}
		if err := json.Unmarshal(doc.Rule, &ruleDoc); err != nil {
			return fmt.Errorf("rule is not a JSON object: %w", err)
		}
		if err := cp.schemaRegistry.ValidateAgainstSchema(ctx, "rule", ruleDoc); err != nil {
			return fmt.Errorf("rule: %w", err)
		}
	}

	return nil
}

// extractAssignment extracts an assignment document from a CUE value.
func (cp *CUEParser) extractAssignment(ctx context.Context, name string, val cue.Value) (AssignmentDoc, error) {
	var doc AssignmentDoc

	if err := val.Decode(&doc); err != nil {
		return doc, fmt.Errorf("failed to decode assignment: %w", err)
	}

	if doc.Name == "" && name != "" {
		doc.Name = name
	}

	if err := cp.validator.Struct(&doc); err != nil {
		return doc, fmt.Errorf("validation failed: %w", err)
	}
	if err := cp.schemaRegistry.ValidateAssignment(ctx, doc); err != nil {
		return doc, err
	}

	return doc, nil
}

// checkDuplicates flags documents that share a name. Names key the
// deterministic resource IDs, so duplicates would silently collapse
// into one resource.
func (cp *CUEParser) checkDuplicates(cfg *Config) {
	seenDefs := make(map[string]bool, len(cfg.Definitions))
	for _, def := range cfg.Definitions {
		if seenDefs[def.Name] {
			cfg.Errors = append(cfg.Errors, ValidationError{
				Path:     fmt.Sprintf("definitions.%s", def.Name),
				Message:  fmt.Sprintf("duplicate definition name %q", def.Name),
				Severity: "error",
			})
		}
		seenDefs[def.Name] = true
	}

	seenAsgs := make(map[string]bool, len(cfg.Assignments))
	for _, asg := range cfg.Assignments {
		if seenAsgs[asg.Name] {
			cfg.Errors = append(cfg.Errors, ValidationError{
				Path:     fmt.Sprintf("assignments.%s", asg.Name),
				Message:  fmt.Sprintf("duplicate assignment name %q", asg.Name),
				Severity: "error",
			})
		}
		seenAsgs[asg.Name] = true
	}
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (cp *CUEParser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	errs := errors.Errors(err)
	for _, e := range errs {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

// ValidateWithSchema validates a value against a registered CUE schema.
func (cp *CUEParser) ValidateWithSchema(ctx context.Context, data interface{}, schemaName string) error {
	return cp.schemaRegistry.ValidateAgainstSchema(ctx, schemaName, data)
}

// GetSchemaRegistry returns the schema registry.
func (cp *CUEParser) GetSchemaRegistry() *SchemaRegistry {
	return cp.schemaRegistry
}

// ExtractValue extracts a specific path from a CUE configuration.
func (cp *CUEParser) ExtractValue(val cue.Value, path string) (interface{}, error) {
	v := val.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		return nil, fmt.Errorf("path %s not found", path)
	}

	var result interface{}
	if err := v.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode value at %s: %w", path, err)
	}

	return result, nil
}

// ExportJSON exports a CUE value to JSON.
func (cp *CUEParser) ExportJSON(val cue.Value) ([]byte, error) {
	var data interface{}
	if err := val.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}

	return json.MarshalIndent(data, "", "  ")
}
