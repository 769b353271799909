package store

import (
	"context"
	"database/sql"
	"fmt"
)

// WriteGrammar inserts a grammar record into the store.
// Uses ON CONFLICT(hash) DO NOTHING: a grammar is identified by its content,
// so writing the same spec twice (even under another name) is a no-op.
func (s *Store) WriteGrammar(ctx context.Context, g Grammar) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO grammars
		(hash, name, start_rule, spec, ir_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`,
		g.Hash,
		g.Name,
		g.Start,
		g.Spec,
		g.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write grammar: %w", err)
	}
	return nil
}

// WriteRun inserts a run record. The run starts unfinished with zero counts.
//
// Note: The grammar referenced by GrammarHash must exist (foreign key constraint).
func (s *Store) WriteRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, grammar_hash, start_rule, ceiling, seed, oracle, engine_version, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.GrammarHash,
		r.Start,
		r.Ceiling,
		r.Seed,
		r.Oracle,
		r.EngineVersion,
		r.Seq,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun marks a run finished and records its final counts.
// Returns sql.ErrNoRows if the run does not exist.
func (s *Store) FinishRun(ctx context.Context, id string, generated, failed int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished = 1, generated = ?, failed = ?
		WHERE id = ?
	`, generated, failed, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// WriteEntry inserts a corpus entry and reports whether it was new.
// Uses ON CONFLICT(id) DO NOTHING: entry IDs are content-addressed, so an
// input rediscovered by a later run keeps its first run and seq.
//
// Note: The grammar and run must exist (foreign key constraints).
func (s *Store) WriteEntry(ctx context.Context, e Entry) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx, insertEntrySQL, entryArgs(e)...)
	if err != nil {
		return false, fmt.Errorf("write entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write entry: rows affected: %w", err)
	}
	return n > 0, nil
}

// WriteFinding inserts a finding into the store.
// Returns the ID and whether a new record was inserted.
//
// Uses ON CONFLICT(run_id, entry_id) DO NOTHING so each entry is reported at
// most once per run. If the finding already exists, returns the existing ID
// and inserted=false.
//
// Note: The run and entry must exist (foreign key constraints).
func (s *Store) WriteFinding(ctx context.Context, f Finding) (id int64, inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("write finding: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	id, inserted, err = insertFinding(ctx, tx, f)
	if err != nil {
		return 0, false, fmt.Errorf("write finding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("write finding: commit: %w", err)
	}
	return id, inserted, nil
}

// RecordEntry atomically writes an entry and, when f is non-nil, the finding
// against it. The finding's EntryID and RunID are taken from e.
//
// Returns whether the entry was new. A rediscovered entry still gets its
// finding recorded for the current run.
func (s *Store) RecordEntry(ctx context.Context, e Entry, f *Finding) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("record entry: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, insertEntrySQL, entryArgs(e)...)
	if err != nil {
		return false, fmt.Errorf("record entry: insert entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record entry: rows affected: %w", err)
	}
	inserted = n > 0

	if f != nil {
		finding := *f
		finding.EntryID = e.ID
		finding.RunID = e.RunID
		if _, _, err := insertFinding(ctx, tx, finding); err != nil {
			return false, fmt.Errorf("record entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("record entry: commit: %w", err)
	}
	return inserted, nil
}

const insertEntrySQL = `
	INSERT INTO entries
	(id, grammar_hash, start_rule, entropy, ceiling, output, status, consumed, run_id, seq)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
`

func entryArgs(e Entry) []any {
	entropy := e.Entropy
	if entropy == nil {
		// NOT NULL column; the empty input is a valid entry.
		entropy = []byte{}
	}
	return []any{
		e.ID,
		e.GrammarHash,
		e.Start,
		entropy,
		e.Ceiling,
		e.Output,
		e.Status,
		e.Consumed,
		e.RunID,
		e.Seq,
	}
}

// insertFinding claims the (run, entry) slot or returns the existing row.
func insertFinding(ctx context.Context, tx *sql.Tx, f Finding) (id int64, inserted bool, err error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO findings
		(run_id, entry_id, oracle, message, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, entry_id) DO NOTHING
	`,
		f.RunID,
		f.EntryID,
		f.Oracle,
		f.Message,
		f.Seq,
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert finding: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("rows affected: %w", err)
	}

	if rowsAffected > 0 {
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("last insert id: %w", err)
		}
		return id, true, nil
	}

	err = tx.QueryRowContext(ctx, `
		SELECT id FROM findings
		WHERE run_id = ? AND entry_id = ?
	`, f.RunID, f.EntryID).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("select existing finding: %w", err)
	}
	return id, false, nil
}
