package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireCommand(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestNewCommandOracle(t *testing.T) {
	o, err := NewCommandOracle("  grep   -q y ")
	require.NoError(t, err)
	assert.Equal(t, "grep", o.Path)
	assert.Equal(t, []string{"-q", "y"}, o.Args)
	assert.Equal(t, DefaultOracleTimeout, o.Timeout)
	assert.Equal(t, "grep -q y", o.Name())

	_, err = NewCommandOracle("   ")
	assert.ErrorContains(t, err, "empty")
}

func TestCommandOracle_AcceptAndReject(t *testing.T) {
	requireCommand(t, "grep")
	o, err := NewCommandOracle("grep -q y")
	require.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, o.Check(ctx, "A", "xy"))

	err = o.Check(ctx, "A", "xz")
	require.Error(t, err)
	assert.True(t, IsRejection(err))
	var r *Rejection
	require.True(t, errors.As(err, &r))
	assert.Equal(t, "grep -q y", r.Oracle)
	assert.Contains(t, r.Message, "exit status 1")
}

func TestCommandOracle_ExportsRule(t *testing.T) {
	requireCommand(t, "printenv")
	o, err := NewCommandOracle("printenv CFGFUZZ_RULE")
	require.NoError(t, err)

	assert.NoError(t, o.Check(context.Background(), "expr", ""))
}

func TestCommandOracle_Timeout(t *testing.T) {
	requireCommand(t, "sleep")
	o, err := NewCommandOracle("sleep 5")
	require.NoError(t, err)
	o.Timeout = 50 * time.Millisecond

	err = o.Check(context.Background(), "A", "")
	require.Error(t, err)
	assert.True(t, IsRejection(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestCommandOracle_ParentCancelled(t *testing.T) {
	requireCommand(t, "true")
	o, err := NewCommandOracle("true")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = o.Check(ctx, "A", "")
	require.Error(t, err)
	assert.False(t, IsRejection(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", truncateUTF8("abc", 8))
	assert.Equal(t, "ab", truncateUTF8("abc", 2))
	assert.Equal(t, "a", truncateUTF8("a\u00e9", 2))
	assert.Equal(t, "a\u00e9", truncateUTF8("a\u00e9\u00e9", 4))
	assert.Equal(t, "", truncateUTF8("\u4e16", 2))
}

func TestCommandOracle_LongOutputKeepsValidUTF8(t *testing.T) {
	requireCommand(t, "sh")
	script := filepath.Join(t.TempDir(), "echo-reject.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat\nexit 1\n"), 0o755))
	o, err := NewCommandOracle(script)
	require.NoError(t, err)

	// The odd-length prefix puts the cut inside a two-byte character.
	input := "x" + strings.Repeat("\u00e9", maxOracleMessage)
	err = o.Check(context.Background(), "A", input)
	var r *Rejection
	require.True(t, errors.As(err, &r), "got %v", err)
	assert.True(t, utf8.ValidString(r.Message))

	_, detail, ok := strings.Cut(r.Message, ": ")
	require.True(t, ok)
	assert.Equal(t, maxOracleMessage-1, len(detail))
}

func TestCommandOracle_MissingBinary(t *testing.T) {
	o, err := NewCommandOracle("/nonexistent/cfgfuzz-oracle")
	require.NoError(t, err)

	err = o.Check(context.Background(), "A", "x")
	require.Error(t, err)
	assert.False(t, IsRejection(err))
	assert.Contains(t, err.Error(), "run oracle")
}

func TestOracleFunc(t *testing.T) {
	o := OracleFunc("len", func(_ context.Context, _, input string) error {
		if len(input) > 2 {
			return &Rejection{Oracle: "len", Message: fmt.Sprintf("too long: %d", len(input))}
		}
		return nil
	})
	assert.Equal(t, "len", o.Name())
	assert.NoError(t, o.Check(context.Background(), "A", "xy"))

	err := o.Check(context.Background(), "A", "xyz")
	assert.True(t, IsRejection(err))
	assert.Equal(t, "len rejected input: too long: 3", err.Error())
}

func TestIsRejection_Wrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", &Rejection{Oracle: "o", Message: "m"})
	assert.True(t, IsRejection(err))
	assert.False(t, IsRejection(errors.New("plain")))
}
