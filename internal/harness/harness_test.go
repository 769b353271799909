package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cfgfuzz/internal/ir"
	"github.com/roach88/cfgfuzz/internal/store"
)

func TestRun_MinimalScenario(t *testing.T) {
	result, err := Run(xyzScenario(t))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "test-run-default", result.RunID)
	require.Len(t, result.Cases, 2)

	assert.Equal(t, "x", result.Cases[0].Output)
	assert.Equal(t, "xy", result.Cases[1].Output)
	assert.Equal(t, 1, result.Cases[1].Consumed)
	assert.Equal(t, "A", result.Cases[1].Start)
	assert.Equal(t, "01", result.Cases[1].Entropy)
}

func TestRun_SeqAndEntryIDs(t *testing.T) {
	s := xyzScenario(t)
	result, err := Run(s)
	require.NoError(t, err)

	// The run takes seq 1; cases follow in order.
	assert.Equal(t, int64(2), result.Cases[0].Seq)
	assert.Equal(t, int64(3), result.Cases[1].Seq)

	g, err := store.NewGrammar(mustLoad(t, s.Grammars[0]))
	require.NoError(t, err)
	want, err := ir.EntryID(g.Hash, "A", []byte{1}, 0)
	require.NoError(t, err)
	assert.Equal(t, want, result.Cases[1].EntryID)
}

func TestRun_Deterministic(t *testing.T) {
	s := xyzScenario(t)
	s.RunID = "fixed"

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRun_FreshDatabasePerRun(t *testing.T) {
	s := xyzScenario(t)
	s.Assertions = []Assertion{{Type: AssertStored}}

	// If the store leaked between runs the second run's seq values would
	// continue from the first.
	for i := 0; i < 2; i++ {
		result, err := Run(s)
		require.NoError(t, err)
		assert.True(t, result.Pass, "errors: %v", result.Errors)
		assert.Equal(t, int64(2), result.Cases[0].Seq)
	}
}

func TestRun_CaseOverrides(t *testing.T) {
	s := xyzScenario(t)
	two := 2
	s.Ceiling = 10
	s.Cases = []Case{
		{Name: "wide", Text: "\x01\x01\x01"},
		{Name: "narrow", Text: "\x01\x01\x01", Ceiling: &two},
	}
	s.Assertions = []Assertion{
		{Type: AssertOutputEquals, Case: "wide", Value: "xzy"},
		{Type: AssertErrorCode, Case: "narrow", Code: "SIZE_LIMIT_EXCEEDED"},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 10, result.Cases[0].Ceiling)
	assert.Equal(t, 2, result.Cases[1].Ceiling)
	assert.Empty(t, result.Cases[1].Output)
}

func TestRun_AssertionFailureIsReported(t *testing.T) {
	s := xyzScenario(t)
	s.Assertions = []Assertion{{Type: AssertOutputEquals, Case: "one", Value: "xz"}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: output_equals (case one)")
}

func TestRun_UnknownStartRule(t *testing.T) {
	s := xyzScenario(t)
	s.Start = "nope"

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `case 0 (empty)`)
}

func TestRun_GrammarSelection(t *testing.T) {
	dir := t.TempDir()
	path := writeGrammar(t, dir, "two.cue", `
grammar: a: {start: "s", rules: s: "a"}
grammar: b: {start: "s", rules: s: "b"}
`)
	s := &Scenario{
		Name:        "pick",
		Description: "d",
		Grammars:    []string{path},
		Cases:       []Case{{Name: "only"}},
		Assertions:  []Assertion{{Type: AssertOutputEquals, Case: "only", Value: "b"}},
	}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grammar name is required when 2 grammars are loaded")

	s.Grammar = "missing"
	_, err = Run(s)
	assert.ErrorContains(t, err, `grammar "missing" not found`)

	s.Grammar = "b"
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestResult_Case(t *testing.T) {
	r := NewResult()
	r.Cases = sampleCases()

	c, ok := r.Case("b")
	require.True(t, ok)
	assert.Equal(t, "xy", c.Output)

	_, ok = r.Case("zz")
	assert.False(t, ok)
}

func mustLoad(t *testing.T, path string) ir.GrammarSpec {
	t.Helper()
	spec, err := loadScenarioGrammar(&Scenario{Grammars: []string{path}})
	require.NoError(t, err)
	return *spec
}
