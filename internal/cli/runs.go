package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cfgfuzz/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database   string
	RunID      string // optional - show one run in detail
	Incomplete bool
	Entries    bool // with --run, list the entries the run discovered
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID          string `json:"id"`
	GrammarHash string `json:"grammar_hash"`
	Start       string `json:"start"`
	Seed        int64  `json:"seed"`
	Ceiling     int64  `json:"ceiling"`
	Oracle      string `json:"oracle,omitempty"`
	Seq         int64  `json:"seq"`
	Finished    bool   `json:"finished"`
	Generated   int64  `json:"generated"`
	Failed      int64  `json:"failed"`
}

// RunDetail is the detailed view of one run.
type RunDetail struct {
	Run      RunSummary       `json:"run"`
	Entries  int              `json:"entries"`
	OK       int              `json:"ok"`
	ByStatus map[string]int   `json:"by_status"`
	Findings []FindingSummary `json:"findings"`
	LastSeq  int64            `json:"last_seq"`
	Outputs  []EntrySummary   `json:"outputs,omitempty"`
}

// FindingSummary is an oracle finding joined with its entry.
type FindingSummary struct {
	EntryID string `json:"entry_id"`
	Oracle  string `json:"oracle"`
	Message string `json:"message"`
	Seq     int64  `json:"seq"`
}

// EntrySummary is one stored entry.
type EntrySummary struct {
	ID      string `json:"id"`
	Entropy string `json:"entropy"` // hex
	Output  string `json:"output"`
	Status  string `json:"status"`
	Seq     int64  `json:"seq"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded campaign runs",
		Long: `List the campaign runs recorded in a database, or show one run with
its entry counts by status and its oracle findings.

A run that never finished (the process was killed mid-campaign) is
reported as incomplete; --incomplete lists only those.

Examples:
  cfgfuzz runs --db ./calc.db
  cfgfuzz runs --db ./calc.db --incomplete
  cfgfuzz runs --db ./calc.db --run 0190a4c2-... --entries --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show one run in detail")
	cmd.Flags().BoolVar(&opts.Incomplete, "incomplete", false, "list only runs that never finished")
	cmd.Flags().BoolVar(&opts.Entries, "entries", false, "with --run, list the run's entries")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
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

	st, err := openExisting(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	defer st.Close()

	if opts.RunID != "" {
		detail, err := readRunDetail(ctx, st, opts.RunID, opts.Entries)
		if errors.Is(err, sql.ErrNoRows) {
			return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("run %q not found", opts.RunID)})
		}
		if err != nil {
			return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeStore, Message: err.Error()})
		}
		return outputRunDetail(formatter, detail)
	}

	var runs []store.Run
	if opts.Incomplete {
		runs, err = st.FindIncompleteRuns(ctx)
	} else {
		runs, err = st.ReadRuns(ctx)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeStore, Message: err.Error()})
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		summaries = append(summaries, summarizeRun(r))
	}
	return outputRunList(formatter, summaries)
}

func summarizeRun(r store.Run) RunSummary {
	return RunSummary{
		ID:          r.ID,
		GrammarHash: r.GrammarHash,
		Start:       r.Start,
		Seed:        r.Seed,
		Ceiling:     r.Ceiling,
		Oracle:      r.Oracle,
		Seq:         r.Seq,
		Finished:    r.Finished,
		Generated:   r.Generated,
		Failed:      r.Failed,
	}
}

func readRunDetail(ctx context.Context, st *store.Store, runID string, withEntries bool) (RunDetail, error) {
	state, err := st.GetRunState(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	detail := RunDetail{
		Run:      summarizeRun(state.Run),
		Entries:  state.Entries,
		OK:       state.OK,
		ByStatus: state.ByStatus,
		Findings: []FindingSummary{},
		LastSeq:  state.LastSeq,
	}
	for _, f := range state.Findings {
		detail.Findings = append(detail.Findings, FindingSummary{
			EntryID: f.EntryID,
			Oracle:  f.Oracle,
			Message: f.Message,
			Seq:     f.Seq,
		})
	}
	if !withEntries {
		return detail, nil
	}

	entries, err := st.ReadRunEntries(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	for _, e := range entries {
		detail.Outputs = append(detail.Outputs, EntrySummary{
			ID:      e.ID,
			Entropy: fmt.Sprintf("%x", e.Entropy),
			Output:  e.Output,
			Status:  e.Status,
			Seq:     e.Seq,
		})
	}
	return detail, nil
}

func outputRunList(formatter *OutputFormatter, runs []RunSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(runs)
	}

	w := formatter.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}
	for _, r := range runs {
		state := "finished"
		if !r.Finished {
			state = "incomplete"
		}
		fmt.Fprintf(w, "%s  seq=%d  start=%s  seed=%d  %s  generated=%d failed=%d\n",
			r.ID, r.Seq, r.Start, r.Seed, state, r.Generated, r.Failed)
	}
	return nil
}

func outputRunDetail(formatter *OutputFormatter, d RunDetail) error {
	if formatter.Format == "json" {
		return formatter.SuccessForRun(d.Run.ID, d)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Run: %s\n", d.Run.ID)
	fmt.Fprintf(w, "  Grammar: %s\n", d.Run.GrammarHash)
	fmt.Fprintf(w, "  Start: %s  Seed: %d  Ceiling: %d\n", d.Run.Start, d.Run.Seed, d.Run.Ceiling)
	if d.Run.Oracle != "" {
		fmt.Fprintf(w, "  Oracle: %s\n", d.Run.Oracle)
	}
	fmt.Fprintf(w, "  Finished: %v\n", d.Run.Finished)
	fmt.Fprintf(w, "  Entries: %d (%d ok)\n", d.Entries, d.OK)
	for _, status := range sortedKeys(d.ByStatus) {
		fmt.Fprintf(w, "    %s: %d\n", status, d.ByStatus[status])
	}
	fmt.Fprintf(w, "  Findings: %d\n", len(d.Findings))
	for _, f := range d.Findings {
		fmt.Fprintf(w, "    [seq %d] %s: %s\n", f.Seq, f.EntryID, f.Message)
	}
	if len(d.Outputs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Entries:")
		for _, e := range d.Outputs {
			fmt.Fprintf(w, "  [seq %d] %s entropy=%s %q\n", e.Seq, e.Status, e.Entropy, e.Output)
		}
	}
	return nil
}
