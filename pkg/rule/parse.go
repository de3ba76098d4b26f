package rule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SchemaError reports a document that decodes as JSON but violates the
// rule schema.
type SchemaError struct {
	// Path locates the offending element, e.g. "if" or "then.effect".
	Path string
	// Msg describes the violation.
	Msg string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("rule schema: %s: %s", e.Path, e.Msg)
}

// Parse decodes and validates a policy rule document. Unknown top-level
// keys are rejected. Malformed JSON yields an error naming the parse
// failure; well-formed but invalid documents yield a *SchemaError. The
// returned rule carries the canonical effect spelling.
func Parse(data []byte) (*Rule, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var r Rule
	if err := dec.Decode(&r); err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, fmt.Errorf("failed to parse rule document: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to parse rule document: trailing data after document")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	canonical, _ := NormalizeEffect(string(r.Then.Effect))
	r.Then.Effect = canonical
	return &r, nil
}

// LoadFile reads and parses one rule document from disk.
func LoadFile(path string) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule document: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// LoadDir parses every *.json rule document under dir, keyed by path.
func LoadDir(dir string) (map[string]*Rule, error) {
	rules := make(map[string]*Rule)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		r, err := LoadFile(path)
		if err != nil {
			return err
		}
		rules[path] = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load rule documents: %w", err)
	}
	return rules, nil
}
