package store

import (
	"context"
	"fmt"
)

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// ReadGrammar retrieves a grammar by hash.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadGrammar(ctx context.Context, hash string) (Grammar, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT hash, name, start_rule, spec, ir_version
		FROM grammars
		WHERE hash = ?
	`, hash)
	return scanGrammar(row)
}

// ReadGrammars returns every stored grammar ordered by name, then hash.
// Returns an empty slice (not nil) if the store holds none.
func (s *Store) ReadGrammars(ctx context.Context) ([]Grammar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, name, start_rule, spec, ir_version
		FROM grammars
		ORDER BY name ASC, hash COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query grammars: %w", err)
	}
	defer rows.Close()

	grammars := []Grammar{}
	for rows.Next() {
		g, err := scanGrammar(rows)
		if err != nil {
			return nil, err
		}
		grammars = append(grammars, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grammars: %w", err)
	}
	return grammars, nil
}

// ReadRun retrieves a run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, selectRunSQL+`WHERE id = ?`, id)
	return scanRun(row)
}

// ReadRuns returns all runs with deterministic ordering.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	return s.queryRuns(ctx, selectRunSQL+`ORDER BY seq ASC, id COLLATE BINARY ASC`)
}

const selectRunSQL = `
	SELECT id, grammar_hash, start_rule, ceiling, seed, oracle, engine_version,
	       seq, finished, generated, failed
	FROM runs
`

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEntry retrieves a single entry by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadEntry(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectEntrySQL+`WHERE id = ?`, id)
	return scanEntry(row)
}

// ReadEntries returns every entry of a grammar, ordered by seq ASC, id ASC.
// Used by replay.
func (s *Store) ReadEntries(ctx context.Context, grammarHash string) ([]Entry, error) {
	return s.queryEntries(ctx, selectEntrySQL+`
		WHERE grammar_hash = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, grammarHash)
}

// ReadRunEntries returns the entries first discovered by a run.
func (s *Store) ReadRunEntries(ctx context.Context, runID string) ([]Entry, error) {
	return s.queryEntries(ctx, selectEntrySQL+`
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
}

// ReadAllEntries returns all entries with deterministic ordering.
func (s *Store) ReadAllEntries(ctx context.Context) ([]Entry, error) {
	return s.queryEntries(ctx, selectEntrySQL+`ORDER BY seq ASC, id COLLATE BINARY ASC`)
}

const selectEntrySQL = `
	SELECT id, grammar_hash, start_rule, entropy, ceiling, output, status,
	       consumed, run_id, seq
	FROM entries
`

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// ReadFindings returns the findings of a run, ordered by seq ASC, id ASC.
func (s *Store) ReadFindings(ctx context.Context, runID string) ([]Finding, error) {
	return s.queryFindings(ctx, selectFindingSQL+`
		WHERE run_id = ?
		ORDER BY seq ASC, id ASC
	`, runID)
}

// ReadEntryFindings returns every finding recorded against an entry, across runs.
func (s *Store) ReadEntryFindings(ctx context.Context, entryID string) ([]Finding, error) {
	return s.queryFindings(ctx, selectFindingSQL+`
		WHERE entry_id = ?
		ORDER BY seq ASC, id ASC
	`, entryID)
}

const selectFindingSQL = `
	SELECT id, run_id, entry_id, oracle, message, seq
	FROM findings
`

func (s *Store) queryFindings(ctx context.Context, query string, args ...any) ([]Finding, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	findings := []Finding{}
	for rows.Next() {
		var f Finding
		if err := rows.Scan(&f.ID, &f.RunID, &f.EntryID, &f.Oracle, &f.Message, &f.Seq); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return findings, nil
}

func scanGrammar(row scanner) (Grammar, error) {
	var g Grammar
	if err := row.Scan(&g.Hash, &g.Name, &g.Start, &g.Spec, &g.IRVersion); err != nil {
		return Grammar{}, fmt.Errorf("scan grammar: %w", err)
	}
	return g, nil
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var finished int
	if err := row.Scan(
		&r.ID, &r.GrammarHash, &r.Start, &r.Ceiling, &r.Seed, &r.Oracle,
		&r.EngineVersion, &r.Seq, &finished, &r.Generated, &r.Failed,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.Finished = finished != 0
	return r, nil
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	if err := row.Scan(
		&e.ID, &e.GrammarHash, &e.Start, &e.Entropy, &e.Ceiling, &e.Output,
		&e.Status, &e.Consumed, &e.RunID, &e.Seq,
	); err != nil {
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	return e, nil
}
