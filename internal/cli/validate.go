package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/cfgfuzz/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Analysis map[string]compiler.Report `json:"analysis,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <grammars-dir>",
		Short: "Validate grammars and report static analysis",
		Long: `Validate CUE grammars without writing output.

Checks rule references, ranges and repetition bounds, then analyzes each
grammar for unproductive and unreachable rules and for recursion that
derives nothing from zero entropy. With --strict, analysis warnings fail
validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat analysis warnings as errors")

	return cmd
}

func runValidate(opts *ValidateOptions, grammarsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, formatter.Diagnostics())

	loadResult, loadErrors := LoadGrammars(grammarsDir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		return formatter.Fail(ExitCommandError, loadErrors[0])
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, grammarsDir)

	result := validateAll(loadResult, loadErrors, logger, formatter)
	if opts.Strict {
		for _, name := range sortedKeys(result.Analysis) {
			result.Errors = append(result.Errors, warningErrors(name, result.Analysis[name])...)
		}
	}
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// validateAll validates and analyzes every loaded grammar.
func validateAll(loadResult *LoadResult, loadErrors []error, logger *slog.Logger, formatter *OutputFormatter) ValidationResult {
	result := ValidationResult{Analysis: make(map[string]compiler.Report)}

	for _, err := range loadErrors {
		ce := describeError(err)
		field := "load"
		var compileErr *compiler.CompileError
		if errors.As(err, &compileErr) {
			field = compileErr.Field
		}
		result.Errors = append(result.Errors, compiler.ValidationError{Field: field, Message: ce.Message, Code: ce.Code})
	}

	for i := range loadResult.Grammars {
		spec := &loadResult.Grammars[i]
		formatter.VerboseLog("Validating grammar: %s", spec.Name)

		if errs := compiler.Validate(spec); len(errs) > 0 {
			for _, e := range errs {
				e.Field = spec.Name + "." + e.Field
				result.Errors = append(result.Errors, e)
			}
			continue
		}
		compiled, err := compiler.Compile(spec, compiler.WithLogger(logger))
		if err != nil {
			ce := describeError(err)
			result.Errors = append(result.Errors, compiler.ValidationError{Field: spec.Name, Message: ce.Message, Code: ce.Code})
			continue
		}
		result.Analysis[spec.Name] = compiler.Analyze(compiled)
	}

	return result
}

// warningErrors turns analysis warnings into validation errors for --strict.
func warningErrors(name string, report compiler.Report) []compiler.ValidationError {
	var errs []compiler.ValidationError
	for _, rule := range report.Unproductive {
		errs = append(errs, compiler.ValidationError{
			Field:   name + "." + rule,
			Message: fmt.Sprintf("rule %q derives no finite string", rule),
			Code:    ErrCodeAnalysis,
		})
	}
	for _, c := range report.Cycles {
		if c.Level != "warning" {
			continue
		}
		errs = append(errs, compiler.ValidationError{Field: name, Message: c.Message, Code: ErrCodeAnalysis})
	}
	return errs
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, "\u2713 All grammars valid")
	for _, name := range sortedKeys(result.Analysis) {
		writeAnalysis(formatter.Writer, name, result.Analysis[name])
	}
	return nil
}

func writeAnalysis(w io.Writer, name string, report compiler.Report) {
	if len(report.Unproductive) == 0 && len(report.Unreachable) == 0 && len(report.Cycles) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", name)
	for _, rule := range report.Unproductive {
		fmt.Fprintf(w, "  warning: %s is unproductive\n", rule)
	}
	for _, rule := range report.Unreachable {
		fmt.Fprintf(w, "  info: %s is unreachable from the start rule\n", rule)
	}
	for _, c := range report.Cycles {
		fmt.Fprintf(w, "  %s: %s\n", c.Level, c.Message)
	}
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		if err := writeJSON(formatter.Writer, CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "\u2717 Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidateGrammarsDir validates every grammar in a directory.
// This is a helper function for external callers.
func ValidateGrammarsDir(grammarsDir string) ([]compiler.ValidationError, error) {
	loadResult, loadErrors := LoadGrammars(grammarsDir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}

	silentFormatter := &OutputFormatter{Format: "text", Writer: io.Discard}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return validateAll(loadResult, loadErrors, logger, silentFormatter).Errors, nil
}
