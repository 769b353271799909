package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateHex(t *testing.T) {
	out, _, err := execute(NewGenerateCommand(&RootOptions{Format: "text"}),
		grammarsDir, "--grammar", "xyz", "--hex", "0101")
	require.NoError(t, err)
	assert.Equal(t, "xz\n", out)
}

func TestGenerateInputFile(t *testing.T) {
	input := filepath.Join(t.TempDir(), "entropy.bin")
	require.NoError(t, os.WriteFile(input, []byte{1}, 0644))

	out, _, err := execute(NewGenerateCommand(&RootOptions{Format: "text"}),
		grammarsDir, "--grammar", "xyz", "--input", input)
	require.NoError(t, err)
	assert.Equal(t, "xy\n", out)
}

func TestGenerateEmptyEntropy(t *testing.T) {
	tests := []struct {
		start string
		want  string
	}{
		{"expr", "0 \n"},
		{"ident", "a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.start, func(t *testing.T) {
			out, _, err := execute(NewGenerateCommand(&RootOptions{Format: "text"}),
				grammarsDir, "--grammar", "calc", "--start", tt.start)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestGenerateSingleGrammarNeedsNoName(t *testing.T) {
	out, _, err := execute(NewGenerateCommand(&RootOptions{Format: "text"}), writeGrammarDir(t, xyzOnlyCUE))
	require.NoError(t, err)
	assert.Equal(t, "x\n", out)
}

func TestGenerateJSON(t *testing.T) {
	out, _, err := execute(NewGenerateCommand(&RootOptions{Format: "json"}),
		grammarsDir, "--grammar", "xyz", "--hex", "0101")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   Generation `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, Generation{
		Grammar:  "xyz",
		Start:    "A",
		Entropy:  "0101",
		Output:   "xz",
		Consumed: 2,
		Steps:    resp.Data.Steps,
	}, resp.Data)
	assert.Positive(t, resp.Data.Steps)
}

func TestGenerateCeilingExceeded(t *testing.T) {
	out, _, err := execute(NewGenerateCommand(&RootOptions{Format: "text"}),
		grammarsDir, "--grammar", "xyz", "--hex", "010101", "--ceiling", "2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [SIZE_LIMIT_EXCEEDED]")
}

func TestGenerateCeilingExceededJSON(t *testing.T) {
	out, _, err := execute(NewGenerateCommand(&RootOptions{Format: "json"}),
		grammarsDir, "--grammar", "xyz", "--hex", "010101", "--ceiling", "2")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SIZE_LIMIT_EXCEEDED", resp.Error.Code)
}

func TestGenerateCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"grammar required", []string{grammarsDir}, ErrCodeGrammarNotFound},
		{"unknown grammar", []string{grammarsDir, "--grammar", "nope"}, ErrCodeGrammarNotFound},
		{"unknown start", []string{grammarsDir, "--grammar", "xyz", "--start", "Nope"}, ErrCodeGrammarNotFound},
		{"bad hex", []string{grammarsDir, "--grammar", "xyz", "--hex", "zz"}, ErrCodeInvalidInput},
		{"negative ceiling", []string{grammarsDir, "--grammar", "xyz", "--ceiling", "-1"}, ErrCodeInvalidInput},
		{"missing input", []string{grammarsDir, "--grammar", "xyz", "--input", "/nonexistent/entropy"}, ErrCodeInvalidInput},
		{"missing dir", []string{"/nonexistent/grammars"}, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(NewGenerateCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}

func TestGenerateEntropyFlagsExclusive(t *testing.T) {
	_, _, err := execute(NewGenerateCommand(&RootOptions{Format: "text"}),
		grammarsDir, "--grammar", "xyz", "--hex", "01", "--text", "a")
	require.Error(t, err)
}

func TestReadEntropy(t *testing.T) {
	data, err := readEntropy(&GenerateOptions{Text: "ab"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), data)

	data, err = readEntropy(&GenerateOptions{Hex: " 00ff\n"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, data)

	data, err = readEntropy(&GenerateOptions{})
	require.NoError(t, err)
	assert.Empty(t, data)
}
