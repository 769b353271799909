package harness

import (
	"context"
	"fmt"

	"github.com/roach88/cfgfuzz/internal/engine"
	"github.com/roach88/cfgfuzz/internal/store"
)

// Mismatch is a stored entry whose replay disagreed with the record.
type Mismatch struct {
	EntryID        string `json:"entry_id"`
	Start          string `json:"start"`
	ExpectedOutput string `json:"expected_output"`
	ActualOutput   string `json:"actual_output"`
	ExpectedStatus string `json:"expected_status"`
	ActualStatus   string `json:"actual_status"`
}

// ReplayReport summarizes a replay.
type ReplayReport struct {
	GrammarHash string     `json:"grammar_hash"`
	Entries     int        `json:"entries"`
	Matched     int        `json:"matched"`
	Mismatches  []Mismatch `json:"mismatches"`
}

// OK reports whether every entry replayed identically.
func (r *ReplayReport) OK() bool {
	return len(r.Mismatches) == 0
}

// Replay re-derives every stored entry of a grammar and compares the output
// and status with what was recorded. Entries are visited in seq order.
//
// eng must be compiled from the grammar the hash names; a stored entry whose
// start rule the engine does not know is an error, not a mismatch.
func Replay(ctx context.Context, st *store.Store, eng *engine.Engine, grammarHash string) (*ReplayReport, error) {
	entries, err := st.ReadEntries(ctx, grammarHash)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	report := &ReplayReport{
		GrammarHash: grammarHash,
		Entries:     len(entries),
		Mismatches:  []Mismatch{},
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		output, status := "", store.StatusOK
		res, err := eng.GenerateResult(e.Start, e.Entropy, int(e.Ceiling))
		if err != nil {
			code := engine.CodeOf(err)
			if code == "" {
				return nil, fmt.Errorf("replay: entry %s: %w", e.ID, err)
			}
			status = string(code)
		} else {
			output = res.Output
		}

		if output == e.Output && status == e.Status {
			report.Matched++
			continue
		}
		report.Mismatches = append(report.Mismatches, Mismatch{
			EntryID:        e.ID,
			Start:          e.Start,
			ExpectedOutput: e.Output,
			ActualOutput:   output,
			ExpectedStatus: e.Status,
			ActualStatus:   status,
		})
	}
	return report, nil
}
