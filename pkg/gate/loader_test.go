package gate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoadFromFile_Rego(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	gateFile := filepath.Join(tmpDir, "freeze-window.rego")

	regoContent := `# Blocks applies during the change freeze
package warden.gates.freeze

import rego.v1

deny contains msg if {
	input.destroy
	msg := "no destroys during the freeze"
}`

	if err := os.WriteFile(gateFile, []byte(regoContent), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	g, err := loader.loadFromFile(gateFile)
	if err != nil {
		t.Fatalf("Failed to load gate: %v", err)
	}

	if g.Name != "freeze-window" {
		t.Errorf("Expected name 'freeze-window', got '%s'", g.Name)
	}
	if g.Rego != regoContent {
		t.Error("Rego content doesn't match")
	}
	if g.Description != "Blocks applies during the change freeze" {
		t.Errorf("Unexpected description: %q", g.Description)
	}
	if g.Severity != SeverityWarning {
		t.Errorf("Expected default warning severity, got %s", g.Severity)
	}
	if !g.Enabled {
		t.Error("Gate should be enabled by default")
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	gateFile := filepath.Join(tmpDir, "max-deletes.json")

	g := Gate{
		Name:        "max-deletes",
		Description: "Caps deletes per plan",
		Rego:        "package warden.gates.caps\n\nimport rego.v1\n\ndeny contains msg if {\n\tinput.summary.delete > 5\n\tmsg := \"too many deletes\"\n}",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"caps"},
	}

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("Failed to marshal gate: %v", err)
	}
	if err := os.WriteFile(gateFile, data, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.loadFromFile(gateFile)
	if err != nil {
		t.Fatalf("Failed to load gate: %v", err)
	}

	if loaded.Name != g.Name {
		t.Errorf("Expected name '%s', got '%s'", g.Name, loaded.Name)
	}
	if loaded.Description != g.Description {
		t.Errorf("Expected description '%s', got '%s'", g.Description, loaded.Description)
	}
	if loaded.Severity != g.Severity {
		t.Errorf("Expected severity '%s', got '%s'", g.Severity, loaded.Severity)
	}
}

func TestLoadFromFile_JSONDefaultSeverity(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	gateFile := filepath.Join(tmpDir, "bare.json")

	if err := os.WriteFile(gateFile, []byte(`{"name":"bare","rego":"package p\ndeny contains msg if { false; msg := \"x\" }"}`), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.loadFromFile(gateFile)
	if err != nil {
		t.Fatalf("Failed to load gate: %v", err)
	}
	if loaded.Severity != SeverityWarning {
		t.Errorf("Expected default warning severity, got %s", loaded.Severity)
	}
}

func TestLoadFromDirectory(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()

	gates := map[string]string{
		"gate1.rego": "package g1\n\nimport rego.v1\n\ndeny contains msg if {\n\tfalse\n\tmsg := \"g1\"\n}",
		"gate2.rego": "package g2\n\nimport rego.v1\n\ndeny contains msg if {\n\tfalse\n\tmsg := \"g2\"\n}",
	}
	for filename, content := range gates {
		if err := os.WriteFile(filepath.Join(tmpDir, filename), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write test file: %v", err)
		}
	}

	// Non-gate files are ignored.
	if err := os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("# Gates"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.loadFromDirectory(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(loaded) != len(gates) {
		t.Errorf("Expected %d gates, got %d", len(gates), len(loaded))
	}
}

func TestLoadFromDirectory_Recursive(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "team-a")
	if err := os.Mkdir(subDir, 0755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "gate1.rego"), []byte("package g1\ndeny contains msg if { false; msg := \"x\" }"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(subDir, "gate2.rego"), []byte("package g2\ndeny contains msg if { false; msg := \"x\" }"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.loadFromDirectory(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("Expected 2 gates (including subdirectory), got %d", len(loaded))
	}
}

func TestLoadFromDirectory_SkipsBadFiles(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "good.rego"), []byte("package good\ndeny contains msg if { false; msg := \"x\" }"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "bad.json"), []byte("not json"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.loadFromDirectory(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("Bad files should be skipped, not fail the load: %v", err)
	}
	if len(loaded) != 1 {
		t.Errorf("Expected 1 gate, got %d", len(loaded))
	}
}

func TestLoadFromPaths(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()

	dir1 := filepath.Join(tmpDir, "dir1")
	if err := os.Mkdir(dir1, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir1, "gate1.rego"), []byte("package g1\ndeny contains msg if { false; msg := \"x\" }"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	file1 := filepath.Join(tmpDir, "gate2.rego")
	if err := os.WriteFile(file1, []byte("package g2\ndeny contains msg if { false; msg := \"x\" }"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.LoadFromPaths(context.Background(), []string{dir1, file1})
	if err != nil {
		t.Fatalf("Failed to load paths: %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("Expected 2 gates, got %d", len(loaded))
	}
}

func TestEngineLoadPaths(t *testing.T) {
	eng := newTestEngine(t)

	tmpDir := t.TempDir()
	gateFile := filepath.Join(tmpDir, "serial-floor.rego")

	regoContent := `# Rejects plans computed against early snapshots
package warden.gates.serialfloor

import rego.v1

deny contains violation if {
	input.serial < 2

	violation := {
		"message": "plans must be computed against serial 2 or later",
		"severity": "error",
	}
}`

	if err := os.WriteFile(gateFile, []byte(regoContent), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if err := eng.LoadPaths(context.Background(), []string{tmpDir}); err != nil {
		t.Fatalf("Failed to load gate paths: %v", err)
	}

	if _, err := eng.GetGate("serial-floor"); err != nil {
		t.Fatalf("Loaded gate not registered: %v", err)
	}

	input := planInput(false)
	input["serial"] = 1

	result, err := eng.EvaluatePlan(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Errorf("Expected loaded gate to block, violations: %+v", result.Violations)
	}
}

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name: "single line comment",
			content: `# This is a test gate
package test`,
			expected: "This is a test gate",
		},
		{
			name: "multi line comments",
			content: `# This is a test gate
# that spans multiple lines
package test`,
			expected: "This is a test gate that spans multiple lines",
		},
		{
			name: "no comments",
			content: `package test
deny contains msg if { false; msg := "x" }`,
			expected: "",
		},
		{
			name: "comments with empty lines",
			content: `# First line
#
# Second line
package test`,
			expected: "First line Second line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractDescription(tt.content)
			if result != tt.expected {
				t.Errorf("Expected description '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestClearCache(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	gateFile := filepath.Join(tmpDir, "test.rego")
	if err := os.WriteFile(gateFile, []byte("package test\ndeny contains msg if { false; msg := \"x\" }"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := loader.loadFromFile(gateFile); err != nil {
		t.Fatalf("Failed to load gate: %v", err)
	}
	if len(loader.cache) != 1 {
		t.Errorf("Expected 1 cache entry, got %d", len(loader.cache))
	}

	loader.ClearCache()
	if len(loader.cache) != 0 {
		t.Errorf("Expected 0 cache entries after clear, got %d", len(loader.cache))
	}
}

func TestLoadFromFile_UnsupportedType(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	gateFile := filepath.Join(tmpDir, "test.txt")
	if err := os.WriteFile(gateFile, []byte("not a gate"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := loader.loadFromFile(gateFile); err == nil {
		t.Error("Expected error for unsupported file type")
	}
}

func TestLoadFromFile_InvalidJSON(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	gateFile := filepath.Join(tmpDir, "test.json")
	if err := os.WriteFile(gateFile, []byte("invalid json"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := loader.loadFromFile(gateFile); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestLoadFromPath_NonExistent(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	if _, err := loader.loadFromPath(context.Background(), "/nonexistent/path"); err == nil {
		t.Error("Expected error for non-existent path")
	}
}
