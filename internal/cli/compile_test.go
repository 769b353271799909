package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileGrammars(t *testing.T) {
	out, _, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), grammarsDir)
	require.NoError(t, err)

	assert.Contains(t, out, "\u2713 Compiled 2 grammar(s)")
	assert.Contains(t, out, "xyz (start A)")
	assert.Contains(t, out, "calc (start expr)")
}

func TestCompileGrammarsJSON(t *testing.T) {
	out, _, err := execute(NewCompileCommand(&RootOptions{Format: "json"}), grammarsDir)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Grammars, 2)

	byName := map[string]CompiledGrammar{}
	for _, g := range resp.Data.Grammars {
		byName[g.Name] = g
	}
	assert.Equal(t, 1, byName["xyz"].Rules)
	assert.Equal(t, 1, byName["calc"].Constraints)
	assert.Len(t, byName["calc"].Hash, 64)
	assert.NotEqual(t, byName["xyz"].Hash, byName["calc"].Hash)
	assert.Empty(t, resp.Data.Specs, "rule sets are only written with --output")
}

func TestCompileOutputToFile(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "compiled.json")

	out, _, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), grammarsDir, "--output", outputFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote canonical rule sets to")

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)

	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Len(t, result.Grammars, 2)
	require.Len(t, result.Specs, 2)
	assert.Contains(t, string(result.Specs[0]), `"ir_version"`)
}

func TestCompileHashIsStable(t *testing.T) {
	hashOf := func() string {
		out, _, err := execute(NewCompileCommand(&RootOptions{Format: "json"}), writeGrammarDir(t, xyzOnlyCUE))
		require.NoError(t, err)
		var resp struct {
			Data CompilationResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.Len(t, resp.Data.Grammars, 1)
		return resp.Data.Grammars[0].Hash
	}
	assert.Equal(t, hashOf(), hashOf())
}

func TestCompileNonExistentDirectory(t *testing.T) {
	out, _, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E005") // ErrCodeNotFound
	assert.Contains(t, out, "not found")
}

func TestCompileEmptyDirectory(t *testing.T) {
	out, _, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E003")
	assert.Contains(t, out, "no CUE files found")
}

func TestCompileUndefinedReference(t *testing.T) {
	dir := writeGrammarDir(t, `package test

grammar: bad: {
	start: "A"
	rules: A: {ref: "missing"}
}
`)
	out, _, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "\u2717 Compilation failed")
	assert.Contains(t, out, "E201")
	assert.Contains(t, out, "missing")
}

func TestCompileErrorsJSON(t *testing.T) {
	dir := writeGrammarDir(t, `package test

grammar: bad: {
	start: "A"
	rules: A: {range: ["z", "a"]}
}
`)
	out, _, err := execute(NewCompileCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E204", resp.Error.Code)
}

func TestCompileNoGrammars(t *testing.T) {
	dir := writeGrammarDir(t, "package test\n\nother: 1\n")
	out, _, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "no grammars found")
}

func TestFindCUEFiles(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(subDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "root.cue"), []byte("package test"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notcue.txt"), []byte("not a cue file"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "nested.cue"), []byte("package test"), 0644))

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestLoadResult_Grammar(t *testing.T) {
	result, errs := LoadGrammars(grammarsDir, LoadModeFailFast)
	require.Empty(t, errs)

	g, err := result.Grammar("calc")
	require.NoError(t, err)
	assert.Equal(t, "expr", g.Start)

	_, err = result.Grammar("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--grammar is required")

	_, err = result.Grammar("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeGrammarNotFound)
}
