package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

// Oracle judges generated strings. Check returns a *Rejection when the
// system under test rejects input; any other error aborts the campaign.
type Oracle interface {
	Name() string
	Check(ctx context.Context, rule, input string) error
}

// Rejection is an oracle verdict against one input. It becomes a finding.
type Rejection struct {
	Oracle  string
	Message string
}

func (e *Rejection) Error() string {
	return fmt.Sprintf("%s rejected input: %s", e.Oracle, e.Message)
}

// IsRejection returns true if the error is an oracle Rejection.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}

type funcOracle struct {
	name string
	fn   func(ctx context.Context, rule, input string) error
}

// OracleFunc adapts a function to the Oracle interface. Errors returned by
// fn that are not a *Rejection abort the campaign.
func OracleFunc(name string, fn func(ctx context.Context, rule, input string) error) Oracle {
	return &funcOracle{name: name, fn: fn}
}

func (o *funcOracle) Name() string { return o.name }

func (o *funcOracle) Check(ctx context.Context, rule, input string) error {
	return o.fn(ctx, rule, input)
}

// DefaultOracleTimeout bounds a single CommandOracle check.
const DefaultOracleTimeout = 10 * time.Second

// maxOracleMessage caps how much of the command's output a finding keeps.
const maxOracleMessage = 2048

// CommandOracle runs an external parser once per input. The input is written
// to the command's stdin and the start rule is exported as CFGFUZZ_RULE.
// A non-zero exit or a timeout is a rejection.
type CommandOracle struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

// NewCommandOracle parses a command line such as "./parse --strict".
// Arguments are split on whitespace; there is no shell quoting.
func NewCommandOracle(command string) (*CommandOracle, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("oracle command is empty")
	}
	return &CommandOracle{
		Path:    fields[0],
		Args:    fields[1:],
		Timeout: DefaultOracleTimeout,
	}, nil
}

// Name returns the command line.
func (o *CommandOracle) Name() string {
	return strings.Join(append([]string{o.Path}, o.Args...), " ")
}

// Check runs the command on input.
func (o *CommandOracle) Check(ctx context.Context, rule, input string) error {
	runCtx := ctx
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, o.Path, o.Args...)
	cmd.Stdin = strings.NewReader(input)
	cmd.Env = append(os.Environ(), "CFGFUZZ_RULE="+rule)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		// The campaign itself was cancelled.
		return ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return &Rejection{Oracle: o.Name(), Message: fmt.Sprintf("timed out after %s", o.Timeout)}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := exitErr.Error()
		if detail := strings.TrimSpace(out.String()); detail != "" {
			msg += ": " + truncateUTF8(detail, maxOracleMessage)
		}
		return &Rejection{Oracle: o.Name(), Message: msg}
	}
	return fmt.Errorf("run oracle %s: %w", o.Name(), err)
}

// truncateUTF8 cuts s to at most n bytes without splitting a character.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
