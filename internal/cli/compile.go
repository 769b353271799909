package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cfgfuzz/internal/compiler"
	"github.com/roach88/cfgfuzz/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output      string // output file path
	CaseFolding bool
}

// CompiledGrammar summarizes one compiled grammar.
type CompiledGrammar struct {
	Name        string `json:"name"`
	Start       string `json:"start"`
	Hash        string `json:"hash"`
	Rules       int    `json:"rules"`
	Symbols     int    `json:"symbols"`
	Productions int    `json:"productions"`
	Constraints int    `json:"constraints"`
}

// CompilationResult holds the compiled grammars and their canonical rule sets.
type CompilationResult struct {
	IRVersion string            `json:"ir_version"`
	Grammars  []CompiledGrammar `json:"grammars"`
	Specs     []json.RawMessage `json:"specs,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <grammars-dir>",
		Short: "Compile CUE grammars",
		Long: `Compile every grammar in a CUE package to its generation form.

Each grammar is validated, lowered to productions, normalized, and
identified by the hash of its canonical rule set.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write canonical rule sets to this file")
	cmd.Flags().BoolVar(&opts.CaseFolding, "case-folding", false, "lower case-insensitive literals to per-character choices")

	return cmd
}

func runCompile(opts *CompileOptions, grammarsDir string, cmd *cobra.Command) error {
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

	compileOpts := []compiler.Option{compiler.WithLogger(logger)}
	if opts.CaseFolding {
		compileOpts = append(compileOpts, compiler.WithCaseFolding())
	}

	errs := loadErrors
	result := &CompilationResult{IRVersion: ir.IRVersion}
	for i := range loadResult.Grammars {
		spec := &loadResult.Grammars[i]
		formatter.VerboseLog("Compiling grammar: %s", spec.Name)

		compiled, err := compiler.Compile(spec, compileOpts...)
		if err != nil {
			errs = append(errs, fmt.Errorf("grammar %s: %w", spec.Name, err))
			continue
		}
		result.Grammars = append(result.Grammars, summarize(compiled))

		canonical, err := ir.MarshalCanonical(ir.SpecValue(*spec))
		if err != nil {
			errs = append(errs, fmt.Errorf("grammar %s: %w", spec.Name, err))
			continue
		}
		result.Specs = append(result.Specs, canonical)
	}

	if len(errs) > 0 {
		return outputCompileErrors(formatter, errs)
	}

	// Write to file if --output specified
	if opts.Output != "" {
		if err := writeCompiledToFile(result, opts.Output); err != nil {
			return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

func summarize(c *compiler.Compiled) CompiledGrammar {
	return CompiledGrammar{
		Name:        c.Spec.Name,
		Start:       c.Spec.Start,
		Hash:        c.Hash,
		Rules:       len(c.Spec.Rules),
		Symbols:     c.Normalized.Symbols.Len(),
		Productions: c.Normalized.ProductionCount(),
		Constraints: c.Constraints.Len(),
	}
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(CompilationResult{IRVersion: result.IRVersion, Grammars: result.Grammars})
	}

	fmt.Fprintf(formatter.Writer, "\u2713 Compiled %d grammar(s)\n\n", len(result.Grammars))
	for _, g := range result.Grammars {
		fmt.Fprintf(formatter.Writer, "  %s (start %s): %d rule(s), %d production(s), %d constraint(s)\n",
			g.Name, g.Start, g.Rules, g.Productions, g.Constraints)
		fmt.Fprintf(formatter.Writer, "    hash %s\n", g.Hash)
	}
	fmt.Fprintln(formatter.Writer)

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote canonical rule sets to %s\n", outputFile)
	}

	return nil
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			cliErrors[i] = describeError(err)
		}

		if err := writeJSON(formatter.Writer, CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}); err != nil {
			return err
		}

		// Compilation errors are command-level errors (exit code 2)
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "\u2717 Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		ce := describeError(err)
		var compileErr *compiler.CompileError
		if errors.As(err, &compileErr) && compileErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				compileErr.Pos.Filename(),
				compileErr.Pos.Line(),
				compileErr.Pos.Column())
		}
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", ce.Code, ce.Message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// writeCompiledToFile writes the compilation result to a file.
func writeCompiledToFile(result *CompilationResult, filename string) error {
	// Indented for readability; the embedded specs stay canonical
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling grammars: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
