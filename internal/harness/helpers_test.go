package harness

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cfgfuzz/internal/compiler"
	"github.com/roach88/cfgfuzz/internal/engine"
	"github.com/roach88/cfgfuzz/internal/store"
)

const xyzCUE = `
grammar: xyz: {
	start: "A"
	rules: A: {seq: [{str: "x"}, {rep: {choice: [{str: "y"}, {str: "z"}]}}]}
}
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeGrammar writes a CUE grammar file into dir and returns its path.
func writeGrammar(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// writeScenario writes a scenario YAML file into dir and returns its path.
func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// xyzScenario returns a valid in-memory scenario over a temp xyz grammar.
func xyzScenario(t *testing.T) *Scenario {
	t.Helper()
	path := writeGrammar(t, t.TempDir(), "xyz.cue", xyzCUE)
	return &Scenario{
		Name:        "xyz",
		Description: "xyz cases",
		Grammars:    []string{path},
		Cases: []Case{
			{Name: "empty"},
			{Name: "one", Entropy: "01"},
		},
		Assertions: []Assertion{{Type: AssertDeterministic}},
	}
}

// xyzEngine compiles the xyz grammar and returns its engine and store record.
func xyzEngine(t *testing.T) (*engine.Engine, store.Grammar) {
	t.Helper()
	return engineFor(t, xyzCUE)
}

// engineFor compiles a single-grammar CUE source.
func engineFor(t *testing.T, src string) (*engine.Engine, store.Grammar) {
	t.Helper()
	path := writeGrammar(t, t.TempDir(), "g.cue", src)
	specs, err := compiler.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)

	c, err := compiler.Compile(&specs[0], compiler.WithLogger(quietLogger()))
	require.NoError(t, err)
	g, err := store.NewGrammar(specs[0])
	require.NoError(t, err)
	return engine.New(c.Normalized, c.Constraints, engine.WithLogger(quietLogger())), g
}

// openStore opens a file-backed store in a temp dir.
func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}
