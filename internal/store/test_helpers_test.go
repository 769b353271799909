package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cfgfuzz/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSpec() ir.GrammarSpec {
	return ir.GrammarSpec{
		Name:  "xyz",
		Start: "A",
		Rules: []ir.Rule{
			{Name: "A", Expr: ir.SeqOf(ir.S("x"), ir.Star(ir.ChoiceOf(ir.S("y"), ir.S("z"))))},
		},
	}
}

// seedGrammar stores the xyz grammar and returns its record.
func seedGrammar(t *testing.T, s *Store) Grammar {
	t.Helper()
	g, err := NewGrammar(testSpec())
	require.NoError(t, err)
	require.NoError(t, s.WriteGrammar(context.Background(), g))
	return g
}

// seedRun stores an unfinished run against g.
func seedRun(t *testing.T, s *Store, g Grammar, id string, seq int64) Run {
	t.Helper()
	r := Run{
		ID:            id,
		GrammarHash:   g.Hash,
		Start:         g.Start,
		Ceiling:       64,
		Seed:          1,
		EngineVersion: ir.EngineVersion,
		Seq:           seq,
	}
	require.NoError(t, s.WriteRun(context.Background(), r))
	return r
}

// createTestEntry builds an entry with a content-addressed ID.
func createTestEntry(t *testing.T, r Run, entropy []byte, output, status string, seq int64) Entry {
	t.Helper()
	id, err := ir.EntryID(r.GrammarHash, r.Start, entropy, r.Ceiling)
	require.NoError(t, err)
	return Entry{
		ID:          id,
		GrammarHash: r.GrammarHash,
		Start:       r.Start,
		Entropy:     entropy,
		Ceiling:     r.Ceiling,
		Output:      output,
		Status:      status,
		Consumed:    int64(len(entropy)),
		RunID:       r.ID,
		Seq:         seq,
	}
}
