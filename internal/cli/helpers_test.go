package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// grammarsDir holds the xyz and calc grammars.
var grammarsDir = filepath.Join("testdata", "grammars")

const xyzOnlyCUE = `package test

grammar: xyz: {
	start: "A"
	rules: {
		A: {seq: [{str: "x"}, {rep: {choice: [{str: "y"}, {str: "z"}]}}]}
	}
}
`

// writeGrammarDir writes src as the only CUE file of a fresh directory.
func writeGrammarDir(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grammar.cue"), []byte(src), 0644))
	return dir
}

// execute runs cmd with args and returns stdout, stderr and the error.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeCorpus writes each buffer to its own file, named in order.
func writeCorpus(t *testing.T, bufs ...[]byte) string {
	t.Helper()
	dir := t.TempDir()
	for i, b := range bufs {
		name := filepath.Join(dir, string(rune('a'+i))+".bin")
		require.NoError(t, os.WriteFile(name, b, 0644))
	}
	return dir
}
