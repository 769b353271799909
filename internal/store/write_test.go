package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cfgfuzz/internal/ir"
)

func TestNewGrammar(t *testing.T) {
	spec := testSpec()
	g, err := NewGrammar(spec)
	require.NoError(t, err)

	assert.Equal(t, ir.MustGrammarHash(spec), g.Hash)
	assert.Equal(t, "xyz", g.Name)
	assert.Equal(t, "A", g.Start)
	assert.Equal(t, ir.IRVersion, g.IRVersion)
	assert.Contains(t, g.Spec, `"rules":[`)
}

func TestWriteGrammar_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g := seedGrammar(t, s)

	renamed := g
	renamed.Name = "other"
	require.NoError(t, s.WriteGrammar(ctx, renamed))

	got, err := s.ReadGrammar(ctx, g.Hash)
	require.NoError(t, err)
	assert.Equal(t, g, got, "first write wins")
}

func TestWriteRun_RequiresGrammar(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteRun(context.Background(), Run{ID: "r1", GrammarHash: "nope", Start: "A", EngineVersion: "v"})
	assert.Error(t, err)
}

func TestFinishRun(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g := seedGrammar(t, s)
	seedRun(t, s, g, "r1", 1)

	require.NoError(t, s.FinishRun(ctx, "r1", 10, 3))

	r, err := s.ReadRun(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, r.Finished)
	assert.Equal(t, int64(10), r.Generated)
	assert.Equal(t, int64(3), r.Failed)

	err = s.FinishRun(ctx, "missing", 0, 0)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWriteEntry_Deduplicates(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g := seedGrammar(t, s)
	r1 := seedRun(t, s, g, "r1", 1)
	r2 := seedRun(t, s, g, "r2", 10)

	e := createTestEntry(t, r1, []byte{1}, "xy", StatusOK, 2)
	inserted, err := s.WriteEntry(ctx, e)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := createTestEntry(t, r2, []byte{1}, "xy", StatusOK, 11)
	require.Equal(t, e.ID, again.ID, "same input, same ID")
	inserted, err = s.WriteEntry(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.ReadEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, int64(2), got.Seq)
}

func TestWriteEntry_EmptyEntropy(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g := seedGrammar(t, s)
	r := seedRun(t, s, g, "r1", 1)

	e := createTestEntry(t, r, nil, "x", StatusOK, 2)
	_, err := s.WriteEntry(ctx, e)
	require.NoError(t, err)

	got, err := s.ReadEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Entropy)
	assert.Equal(t, "x", got.Output)
}

func TestWriteFinding_OncePerRunAndEntry(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g := seedGrammar(t, s)
	r := seedRun(t, s, g, "r1", 1)
	e := createTestEntry(t, r, []byte{1, 1}, "xz", StatusOK, 2)
	_, err := s.WriteEntry(ctx, e)
	require.NoError(t, err)

	f := Finding{RunID: r.ID, EntryID: e.ID, Oracle: "parser", Message: "exit status 1", Seq: 3}
	id1, inserted, err := s.WriteFinding(ctx, f)
	require.NoError(t, err)
	assert.True(t, inserted)

	f.Seq = 4
	id2, inserted, err := s.WriteFinding(ctx, f)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, id1, id2)
}

func TestWriteFinding_RequiresEntry(t *testing.T) {
	s := createTestStore(t)
	g := seedGrammar(t, s)
	r := seedRun(t, s, g, "r1", 1)

	_, _, err := s.WriteFinding(context.Background(), Finding{RunID: r.ID, EntryID: "missing", Oracle: "o", Message: "m", Seq: 2})
	assert.Error(t, err)
}

func TestRecordEntry_WithFinding(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g := seedGrammar(t, s)
	r1 := seedRun(t, s, g, "r1", 1)
	r2 := seedRun(t, s, g, "r2", 10)

	e := createTestEntry(t, r1, []byte{1, 1}, "xz", StatusOK, 2)
	inserted, err := s.RecordEntry(ctx, e, &Finding{Oracle: "parser", Message: "rejected", Seq: 3})
	require.NoError(t, err)
	assert.True(t, inserted)

	// The second run rediscovers the entry; the entry is not duplicated but
	// the finding is recorded against the new run.
	e2 := createTestEntry(t, r2, []byte{1, 1}, "xz", StatusOK, 11)
	inserted, err = s.RecordEntry(ctx, e2, &Finding{Oracle: "parser", Message: "rejected", Seq: 12})
	require.NoError(t, err)
	assert.False(t, inserted)

	findings, err := s.ReadEntryFindings(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "r1", findings[0].RunID)
	assert.Equal(t, "r2", findings[1].RunID)
	assert.Equal(t, e.ID, findings[1].EntryID)
}

func TestRecordEntry_WithoutFinding(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g := seedGrammar(t, s)
	r := seedRun(t, s, g, "r1", 1)

	e := createTestEntry(t, r, []byte{0xff, 0xff}, "", "SIZE_LIMIT_EXCEEDED", 2)
	inserted, err := s.RecordEntry(ctx, e, nil)
	require.NoError(t, err)
	assert.True(t, inserted)

	findings, err := s.ReadFindings(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestRecordEntry_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g := seedGrammar(t, s)
	r := seedRun(t, s, g, "r1", 1)

	// Unknown run: the entry insert fails the foreign key and nothing is kept.
	e := createTestEntry(t, r, []byte{7}, "xy", StatusOK, 2)
	e.RunID = "missing"
	_, err := s.RecordEntry(ctx, e, &Finding{Oracle: "o", Message: "m", Seq: 3})
	require.Error(t, err)

	all, err := s.ReadAllEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
