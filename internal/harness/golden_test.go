package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_XYZBasics(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/xyz_basics.yaml")
	require.NoError(t, err)

	// To regenerate:
	//   go test ./internal/harness -run TestRunWithGolden_XYZBasics -update
	require.NoError(t, RunWithGolden(t, scenario))
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/xyz_basics.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.NoError(t, AssertGolden(t, scenario.Name, result))
}

func TestSnapshot_Canonical(t *testing.T) {
	result := NewResult()
	result.RunID = "r"
	result.Cases = []CaseResult{
		{Name: "a", Start: "A", Entropy: "01", Output: "<&>", Status: "ok", Consumed: 1, EntryID: "ignored", Seq: 2},
	}

	data, err := Snapshot("s", result)
	require.NoError(t, err)

	// Sorted keys, no HTML escaping, entry IDs left out.
	assert.Equal(t,
		`{"cases":[{"ceiling":0,"consumed":1,"entropy":"01","name":"a","output":"<&>","seq":2,"start":"A","status":"ok"}],"run_id":"r","scenario_name":"s"}`,
		string(data))
}

func TestSnapshot_Deterministic(t *testing.T) {
	result := NewResult()
	result.Cases = sampleCases()

	first, err := Snapshot("s", result)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Snapshot("s", result)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSnapshot_OmitsEmptyRunID(t *testing.T) {
	data, err := Snapshot("s", NewResult())
	require.NoError(t, err)
	assert.Equal(t, `{"cases":[],"scenario_name":"s"}`, string(data))
}
