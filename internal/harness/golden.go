package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cfgfuzz/internal/ir"
)

// CaseSnapshot captures every derived case for a scenario execution.
// Entry IDs are left out: they are content hashes and change with any edit
// to the grammar, while the derived strings may not.
type CaseSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	RunID        string       `json:"run_id,omitempty"`
	Cases        []CaseResult `json:"cases"`
}

// toCanonicalMap converts a CaseSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *CaseSnapshot) toCanonicalMap() map[string]any {
	cases := make([]any, len(s.Cases))
	for i, c := range s.Cases {
		cases[i] = map[string]any{
			"name":     c.Name,
			"start":    c.Start,
			"entropy":  c.Entropy,
			"ceiling":  c.Ceiling,
			"output":   c.Output,
			"status":   c.Status,
			"consumed": c.Consumed,
			"seq":      c.Seq,
		}
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"cases":         cases,
	}
	if s.RunID != "" {
		result["run_id"] = s.RunID
	}
	return result
}

// Snapshot returns the canonical JSON golden files hold for a result.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := CaseSnapshot{
		ScenarioName: scenarioName,
		RunID:        result.RunID,
		Cases:        result.Cases,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its cases against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the cases don't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's cases against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
