package harness

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario pins the strings a grammar derives for fixed entropy inputs.
//
//	name: xyz_basics
//	description: "repetition draws"
//	grammars: [xyz.cue]
//	grammar: xyz
//	ceiling: 10
//	cases:
//	  - name: empty
//	    entropy: ""
//	  - name: one
//	    entropy: "01"
//	assertions:
//	  - type: output_equals
//	    case: one
//	    value: "xy"
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Grammars lists CUE files to load. Paths are relative to the base path
	// given to LoadScenarioWithBasePath.
	Grammars []string `yaml:"grammars"`

	// Grammar selects a grammar by name. It may be omitted when the files
	// declare exactly one.
	Grammar string `yaml:"grammar,omitempty"`

	// Start overrides the grammar's start rule for every case.
	Start string `yaml:"start,omitempty"`

	// Ceiling is the default size ceiling; 0 means none.
	Ceiling int `yaml:"ceiling,omitempty"`

	// RunID is the fixed run ID entries are recorded under.
	// If empty, defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	Cases      []Case      `yaml:"cases"`
	Assertions []Assertion `yaml:"assertions"`
}

// Case is one entropy input.
type Case struct {
	Name string `yaml:"name"`

	// Entropy is the input as hex. Text is the input as the raw bytes of a
	// string. At most one may be set; neither means the empty input.
	Entropy string `yaml:"entropy,omitempty"`
	Text    string `yaml:"text,omitempty"`

	Start   string `yaml:"start,omitempty"`
	Ceiling *int   `yaml:"ceiling,omitempty"`
}

// Bytes returns the case's entropy input.
func (c Case) Bytes() ([]byte, error) {
	if c.Text != "" {
		return []byte(c.Text), nil
	}
	b, err := hex.DecodeString(c.Entropy)
	if err != nil {
		return nil, fmt.Errorf("case %s: entropy: %w", c.Name, err)
	}
	return b, nil
}

// Assertion validates case results.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Case names the case the assertion applies to. Empty means every
	// case, which only output_not_contains, max_length, deterministic and
	// stored allow.
	Case string `yaml:"case,omitempty"`

	// Value is the expected output or substring.
	Value string `yaml:"value,omitempty"`

	// Code is the expected status: "ok" or a generation error code.
	Code string `yaml:"code,omitempty"`

	// Length is the maximum output length in characters (max_length).
	Length int `yaml:"length,omitempty"`
}

// Assertion type constants.
const (
	AssertOutputEquals      = "output_equals"
	AssertOutputContains    = "output_contains"
	AssertOutputNotContains = "output_not_contains"
	AssertErrorCode         = "error_code"
	AssertMaxLength         = "max_length"
	AssertDeterministic     = "deterministic"
	AssertStored            = "stored"
)

// LoadScenario reads and parses a scenario YAML file. Grammar paths are
// resolved relative to the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving grammar paths relative to basePath.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, p := range scenario.Grammars {
		if !filepath.IsAbs(p) && basePath != "" {
			scenario.Grammars[i] = filepath.Join(basePath, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Grammars) == 0 {
		return fmt.Errorf("grammars list is required and must be non-empty")
	}
	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Ceiling < 0 {
		return fmt.Errorf("ceiling must be non-negative")
	}

	for _, p := range s.Grammars {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("grammar file not found: %s", p)
		}
	}

	names := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("cases[%d]: name is required", i)
		}
		if names[c.Name] {
			return fmt.Errorf("cases[%d]: duplicate case name %q", i, c.Name)
		}
		names[c.Name] = true
		if c.Entropy != "" && c.Text != "" {
			return fmt.Errorf("cases[%d]: entropy and text are mutually exclusive", i)
		}
		if _, err := c.Bytes(); err != nil {
			return fmt.Errorf("cases[%d]: %w", i, err)
		}
		if c.Ceiling != nil && *c.Ceiling < 0 {
			return fmt.Errorf("cases[%d]: ceiling must be non-negative", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, names); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, cases map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Case != "" && !cases[a.Case] {
		return fmt.Errorf("assertions[%d]: unknown case %q", index, a.Case)
	}

	switch a.Type {
	case AssertOutputEquals:
		if a.Case == "" {
			return fmt.Errorf("assertions[%d]: case is required for output_equals", index)
		}
	case AssertOutputContains:
		if a.Case == "" {
			return fmt.Errorf("assertions[%d]: case is required for output_contains", index)
		}
		if a.Value == "" {
			return fmt.Errorf("assertions[%d]: value is required for output_contains", index)
		}
	case AssertOutputNotContains:
		if a.Value == "" {
			return fmt.Errorf("assertions[%d]: value is required for output_not_contains", index)
		}
	case AssertErrorCode:
		if a.Case == "" {
			return fmt.Errorf("assertions[%d]: case is required for error_code", index)
		}
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error_code", index)
		}
	case AssertMaxLength:
		if a.Length <= 0 {
			return fmt.Errorf("assertions[%d]: length must be positive for max_length", index)
		}
	case AssertDeterministic, AssertStored:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
