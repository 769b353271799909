package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cfgfuzz/internal/store"
)

// recordedDB returns a database holding one finished xyz run.
func recordedDB(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "fuzz.db")
	_, err := fuzzXYZ(t, db, "text", nil, "run-1")
	require.NoError(t, err)
	return db
}

func TestReplayMissingDatabaseFlag(t *testing.T) {
	_, _, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), grammarsDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestReplayNonExistentDatabase(t *testing.T) {
	out, _, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), grammarsDir, "--db", "/nonexistent/fuzz.db")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "database not found")
}

func TestReplayReproducesEntries(t *testing.T) {
	db := recordedDB(t)

	out, _, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), grammarsDir, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: 1 grammar(s), 3 entries")
	assert.Contains(t, out, "\u2713 Grammar: xyz")
	assert.Contains(t, out, "Entries: 3 matched of 3")
	assert.Contains(t, out, "\u2713 All entries reproduced")
}

func TestReplayJSON(t *testing.T) {
	db := recordedDB(t)

	out, _, err := execute(NewReplayCommand(&RootOptions{Format: "json"}), grammarsDir, "--db", db, "--grammar", "xyz")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.AllReproducible)
	assert.Equal(t, 3, resp.Data.TotalEntries)
	require.Len(t, resp.Data.Grammars, 1)
	assert.Equal(t, 3, resp.Data.Grammars[0].Matched)
}

func TestReplayDetectsMismatch(t *testing.T) {
	db := recordedDB(t)

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE entries SET output = 'tampered' WHERE output = 'xy'`)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, _, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), grammarsDir, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "\u2717 Grammar: xyz")
	assert.Contains(t, out, `expected "tampered" [ok], got "xy" [ok]`)
	assert.Contains(t, out, "\u2717 Replay mismatch")
}

func TestReplayDetectsMismatchJSON(t *testing.T) {
	db := recordedDB(t)

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE entries SET status = 'STEP_LIMIT_EXCEEDED', output = '' WHERE output = 'x'`)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, _, err := execute(NewReplayCommand(&RootOptions{Format: "json"}), grammarsDir, "--db", db)
	require.Error(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
		Error  *CLIError    `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_REPLAY", resp.Error.Code)
	require.Len(t, resp.Data.Grammars, 1)
	require.Len(t, resp.Data.Grammars[0].Mismatches, 1)
	m := resp.Data.Grammars[0].Mismatches[0]
	assert.Equal(t, "STEP_LIMIT_EXCEEDED", m.ExpectedStatus)
	assert.Equal(t, store.StatusOK, m.ActualStatus)
	assert.Equal(t, "x", m.ActualOutput)
}

func TestReplayEditedGrammarIsStale(t *testing.T) {
	db := recordedDB(t)
	edited := writeGrammarDir(t, `package test

grammar: xyz: {
	start: "A"
	rules: A: {seq: [{str: "x"}, {rep: {choice: [{str: "y"}, {str: "w"}]}}]}
}
`)

	out, _, err := execute(NewReplayCommand(&RootOptions{Format: "json"}), edited, "--db", db)
	require.NoError(t, err)

	var resp struct {
		Data ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Empty(t, resp.Data.Grammars)
	assert.Len(t, resp.Data.Stale, 1)
	assert.True(t, resp.Data.AllReproducible)
}

func TestReplayHelpText(t *testing.T) {
	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	assert.Contains(t, cmd.Long, "Exit codes:")
	assert.Contains(t, cmd.Long, "stale")
}
