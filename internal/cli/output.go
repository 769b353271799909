package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/cfgfuzz/internal/compiler"
	"github.com/roach88/cfgfuzz/internal/engine"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the command ran and found a problem: invalid grammar, replay mismatch, findings
	ExitCommandError = 2 // the command could not run: bad input, missing paths, unreadable database
)

// ExitError carries the exit code of a failed command. Commands report
// through their OutputFormatter before returning one, so main only prints
// errors that are not ExitErrors.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError creates an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps the error returned by Execute to a process exit code.
// Errors raised by cobra itself (unknown flags, wrong argument counts) are
// not ExitErrors and count as failures.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format    string    // "text" or "json"
	Writer    io.Writer // results
	ErrWriter io.Writer // logs and verbose notes; Writer when nil
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is the error member of a CLIResponse. Code is a loader code
// (E0xx), a compiler code (E2xx) or a generation code such as
// SIZE_LIMIT_EXCEEDED.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// describeError maps the error types of the compiler, the loader and the
// engine onto a CLIError.
func describeError(err error) CLIError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return CLIError{Code: compileErr.Code, Message: compileErr.Field + ": " + compileErr.Message}
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return CLIError{Code: loadErr.Code, Message: loadErr.Message}
	}
	var genErr *engine.GenError
	if errors.As(err, &genErr) {
		ce := CLIError{Code: string(genErr.Code), Message: genErr.Error()}
		if len(genErr.Details) > 0 {
			ce.Details = genErr.Details
		}
		return ce
	}
	if engine.IsUnknownRuleError(err) {
		return CLIError{Code: ErrCodeGrammarNotFound, Message: err.Error()}
	}
	return CLIError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Success writes data as an ok envelope, or prints it in text mode.
func (f *OutputFormatter) Success(data any) error {
	return f.SuccessForRun("", data)
}

// SuccessForRun is Success for results that belong to a campaign run.
func (f *OutputFormatter) SuccessForRun(runID string, data any) error {
	if f.Format == "json" {
		return writeJSON(f.Writer, CLIResponse{Status: "ok", Data: data, RunID: runID})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes an error envelope, or an "Error [CODE]" line in text mode.
// Details are printed in text mode only with --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return writeJSON(f.Writer, CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
func (f *OutputFormatter) Fail(exitCode int, err error) error {
	ce := describeError(err)
	_ = f.Error(ce.Code, ce.Message, ce.Details)
	return NewExitError(exitCode, ce.Code+": "+ce.Message)
}

// VerboseLog prints a diagnostic line when --verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.Diagnostics(), format+"\n", args...)
	}
}

// Diagnostics is where logs and verbose notes go. Keeping them off Writer
// leaves JSON output parseable.
func (f *OutputFormatter) Diagnostics() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func writeJSON(w io.Writer, response CLIResponse) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}
