package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/cfgfuzz/internal/engine"
	"github.com/roach88/cfgfuzz/internal/harness"
	"github.com/roach88/cfgfuzz/internal/store"
)

// FuzzOptions holds flags for the fuzz command.
type FuzzOptions struct {
	*RootOptions
	Database    string
	Grammar     string
	Start       string
	Corpus      string
	Count       int
	Seed        int64
	Oracle      string
	Workers     int
	Ceiling     int
	MaxInputLen int

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs harness.RunIDGenerator
}

// NewFuzzCommand creates the fuzz command.
func NewFuzzCommand(rootOpts *RootOptions) *cobra.Command {
	return newFuzzCommand(&FuzzOptions{RootOptions: rootOpts})
}

func newFuzzCommand(opts *FuzzOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fuzz <grammars-dir>",
		Short: "Run a generation campaign and record it",
		Long: `Derive strings for many entropy inputs and record every input, its
output and any oracle finding in a SQLite database.

Inputs are the files of --corpus (in name order) followed by --count
pseudo-random buffers drawn from --seed. With --oracle, every generated
string is piped to the command's stdin; a non-zero exit is a finding.

Example:
  cfgfuzz fuzz ./grammars --grammar calc --db ./calc.db --count 1000 --seed 7
  cfgfuzz fuzz ./grammars --db ./calc.db --corpus ./seeds --oracle "./parse -"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFuzz(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Grammar, "grammar", "", "grammar name (optional when the package declares one grammar)")
	cmd.Flags().StringVar(&opts.Start, "start", "", "start rule (defaults to the grammar's start)")
	cmd.Flags().StringVar(&opts.Corpus, "corpus", "", "directory of entropy files to run first")
	cmd.Flags().IntVar(&opts.Count, "count", 100, "number of pseudo-random inputs")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "seed for pseudo-random inputs")
	cmd.Flags().StringVar(&opts.Oracle, "oracle", "", "command that must accept every generated string")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "parallel derivations (0 for GOMAXPROCS)")
	cmd.Flags().IntVar(&opts.Ceiling, "ceiling", engine.NoCeiling, "maximum output length in characters (0 for none)")
	cmd.Flags().IntVar(&opts.MaxInputLen, "max-input-len", harness.DefaultMaxInputLen, "longest pseudo-random input in bytes")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runFuzz(opts *FuzzOptions, grammarsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, formatter.Diagnostics())

	if opts.Count < 0 || opts.Ceiling < 0 {
		return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeInvalidInput, Message: "--count and --ceiling must not be negative"})
	}

	lg, err := loadEngine(grammarsDir, opts.Grammar, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	start := opts.Start
	if start == "" {
		start = lg.Spec.Start
	}
	if _, ok := lg.Compiled.Symbol(start); !ok {
		return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeGrammarNotFound, Message: fmt.Sprintf("unknown rule %q", start)})
	}

	corpus, err := readCorpus(opts.Corpus)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	campaignOpts := []harness.Option{
		harness.WithLogger(logger),
		harness.WithWorkers(opts.Workers),
	}
	if opts.Oracle != "" {
		oracle, err := harness.NewCommandOracle(opts.Oracle)
		if err != nil {
			return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeInvalidInput, Message: err.Error()})
		}
		campaignOpts = append(campaignOpts, harness.WithOracle(oracle))
	}
	if opts.RunIDs != nil {
		campaignOpts = append(campaignOpts, harness.WithRunIDs(opts.RunIDs))
	}

	// Open database (create if not exists)
	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeStore, Message: fmt.Sprintf("opening database: %v", err)})
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	lastSeq, err := st.LastSeq(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeStore, Message: err.Error()})
	}
	campaignOpts = append(campaignOpts, harness.WithStore(st), harness.WithClock(harness.NewClockAt(lastSeq)))

	report, err := harness.NewCampaign(lg.Engine, campaignOpts...).Run(ctx, harness.CampaignConfig{
		Grammar:     lg.Record,
		Start:       start,
		Ceiling:     opts.Ceiling,
		Corpus:      corpus,
		Count:       opts.Count,
		Seed:        opts.Seed,
		MaxInputLen: opts.MaxInputLen,
	})
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "campaign failed", err)
	}

	if err := outputFuzzReport(formatter, report); err != nil {
		return err
	}
	if report.Findings > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d finding(s)", report.Findings))
	}
	return nil
}

// readCorpus reads every regular file in dir. os.ReadDir orders them by name.
func readCorpus(dir string) ([][]byte, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading corpus: %v", err)}
	}
	var corpus [][]byte
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("reading corpus: %v", err)}
		}
		corpus = append(corpus, data)
	}
	return corpus, nil
}

func outputFuzzReport(formatter *OutputFormatter, report *harness.CampaignReport) error {
	if formatter.Format == "json" {
		return formatter.SuccessForRun(report.RunID, report)
	}

	mark := "\u2713"
	if report.Findings > 0 {
		mark = "\u2717"
	}
	fmt.Fprintf(formatter.Writer, "%s Run %s: %d input(s), %d generated, %d failed, %d finding(s)\n",
		mark, report.RunID, report.Inputs, report.Generated, report.Failed, report.Findings)
	fmt.Fprintf(formatter.Writer, "  new entries: %d\n", report.NewEntries)
	for _, code := range sortedKeys(report.ByCode) {
		fmt.Fprintf(formatter.Writer, "  %s: %d\n", code, report.ByCode[code])
	}
	return nil
}
