package store

import (
	"context"
	"fmt"
)

// RunState summarizes a run for reporting and crash recovery.
type RunState struct {
	Run      Run
	Entries  int
	OK       int
	ByStatus map[string]int // failed entries by generation error code
	Findings []Finding
	LastSeq  int64
}

// GetRunState reads a run together with the counts of the entries it
// discovered and its findings.
func (s *Store) GetRunState(ctx context.Context, runID string) (RunState, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}
	state := RunState{
		Run:      run,
		ByStatus: make(map[string]int),
		LastSeq:  run.Seq,
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*), MAX(seq)
		FROM entries
		WHERE run_id = ?
		GROUP BY status
		ORDER BY status
	`, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		var maxSeq int64
		if err := rows.Scan(&status, &count, &maxSeq); err != nil {
			return RunState{}, fmt.Errorf("get run state: scan: %w", err)
		}
		state.Entries += count
		if status == StatusOK {
			state.OK = count
		} else {
			state.ByStatus[status] = count
		}
		state.LastSeq = max(state.LastSeq, maxSeq)
	}
	if err := rows.Err(); err != nil {
		return RunState{}, fmt.Errorf("get run state: iterate: %w", err)
	}

	findings, err := s.ReadFindings(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}
	state.Findings = findings
	for _, f := range findings {
		state.LastSeq = max(state.LastSeq, f.Seq)
	}

	return state, nil
}

// FindIncompleteRuns returns runs that were started but never finished,
// typically because the process was interrupted.
func (s *Store) FindIncompleteRuns(ctx context.Context) ([]Run, error) {
	runs, err := s.queryRuns(ctx, selectRunSQL+`
		WHERE finished = 0
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("find incomplete runs: %w", err)
	}
	return runs, nil
}

// LastSeq returns the highest seq stamped on any run, entry or finding, or 0
// for an empty store. A campaign resumes its logical clock from here.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT seq FROM runs
			UNION ALL
			SELECT seq FROM entries
			UNION ALL
			SELECT seq FROM findings
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
