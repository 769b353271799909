package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cfgfuzz/internal/harness"
	"github.com/roach88/cfgfuzz/internal/ir"
	"github.com/roach88/cfgfuzz/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Grammar  string // optional - specific grammar only
}

// ReplayGrammarResult holds the replay result for a single grammar.
type ReplayGrammarResult struct {
	Name string `json:"name"`
	*harness.ReplayReport
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Grammars        []ReplayGrammarResult `json:"grammars"`
	Stale           []string              `json:"stale,omitempty"` // stored grammar hashes no loaded grammar matches
	TotalEntries    int                   `json:"total_entries"`
	AllReproducible bool                  `json:"all_reproducible"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <grammars-dir>",
		Short: "Re-derive stored entries and verify reproducibility",
		Long: `Re-derive every stored entry of the loaded grammars and compare the
output and status with what was recorded.

A grammar is matched to its entries by hash, so an edited grammar no
longer matches the entries of its earlier version; those are listed as
stale and skipped.

Exit codes:
  0 - Every entry replayed identically
  1 - Replay mismatch detected
  2 - Command error (database not found, etc.)

Examples:
  cfgfuzz replay ./grammars --db ./calc.db
  cfgfuzz replay ./grammars --db ./calc.db --grammar calc --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Grammar, "grammar", "", "replay specific grammar only")

	return cmd
}

func runReplay(opts *ReplayOptions, grammarsDir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, formatter.Diagnostics())

	st, err := openExisting(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	defer st.Close()

	loadResult, loadErrors := LoadGrammars(grammarsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return formatter.Fail(ExitCommandError, loadErrors[0])
	}
	specs := loadResult.Grammars
	if opts.Grammar != "" {
		spec, err := loadResult.Grammar(opts.Grammar)
		if err != nil {
			return formatter.Fail(ExitCommandError, err)
		}
		specs = []ir.GrammarSpec{*spec}
	}

	stored, err := st.ReadGrammars(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeStore, Message: err.Error()})
	}
	storedHashes := make(map[string]bool, len(stored))
	for _, g := range stored {
		storedHashes[g.Hash] = true
	}

	result := ReplayResult{Grammars: []ReplayGrammarResult{}, AllReproducible: true}
	matched := make(map[string]bool)
	for i := range specs {
		lg, err := buildEngine(&specs[i], logger)
		if err != nil {
			return formatter.Fail(ExitCommandError, err)
		}
		if !storedHashes[lg.Record.Hash] {
			formatter.VerboseLog("Grammar %s has no stored entries", lg.Spec.Name)
			continue
		}
		matched[lg.Record.Hash] = true

		formatter.VerboseLog("Replaying grammar %s (%s)", lg.Spec.Name, lg.Record.Hash)
		report, err := harness.Replay(ctx, st, lg.Engine, lg.Record.Hash)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay grammar %s", lg.Spec.Name), err)
		}
		result.Grammars = append(result.Grammars, ReplayGrammarResult{Name: lg.Spec.Name, ReplayReport: report})
		result.TotalEntries += report.Entries
		if !report.OK() {
			result.AllReproducible = false
		}
	}
	if opts.Grammar == "" {
		for _, g := range stored {
			if !matched[g.Hash] {
				result.Stale = append(result.Stale, g.Hash)
			}
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

// openExisting opens a store that must already exist.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("database not found: %s", path)}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: fmt.Sprintf("opening database: %v", err)}
	}
	return st, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllReproducible {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_REPLAY",
			Message: "replay mismatch",
		}
	}

	if err := writeJSON(formatter.Writer, response); err != nil {
		return err
	}

	if !result.AllReproducible {
		// Replay mismatch = exit code 1
		return NewExitError(ExitFailure, "replay mismatch")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Replay Summary: %d grammar(s), %d entr%s\n", len(result.Grammars), result.TotalEntries, plural(result.TotalEntries, "y", "ies"))
	fmt.Fprintln(w)

	for _, g := range result.Grammars {
		status := "\u2713"
		if !g.OK() {
			status = "\u2717"
		}
		fmt.Fprintf(w, "%s Grammar: %s\n", status, g.Name)
		fmt.Fprintf(w, "  Entries: %d matched of %d\n", g.Matched, g.Entries)
		if formatter.Verbose {
			fmt.Fprintf(w, "  Hash: %s\n", g.GrammarHash)
		}
		for _, m := range g.Mismatches {
			fmt.Fprintf(w, "  Mismatch %s (%s): expected %q [%s], got %q [%s]\n",
				m.EntryID, m.Start, m.ExpectedOutput, m.ExpectedStatus, m.ActualOutput, m.ActualStatus)
		}
		fmt.Fprintln(w)
	}
	for _, hash := range result.Stale {
		fmt.Fprintf(w, "Stale grammar %s: no loaded grammar has this hash\n", hash)
	}
	if len(result.Stale) > 0 {
		fmt.Fprintln(w)
	}

	if result.AllReproducible {
		fmt.Fprintln(w, "\u2713 All entries reproduced")
		return nil
	}

	fmt.Fprintln(w, "\u2717 Replay mismatch")
	return NewExitError(ExitFailure, "replay mismatch")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
