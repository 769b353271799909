package harness

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cfgfuzz/internal/engine"
)

var xyzCorpus = [][]byte{{}, {1}, {1, 1}}

// noZ rejects every output containing "z".
var noZ = OracleFunc("no-z", func(_ context.Context, _, input string) error {
	if strings.Contains(input, "z") {
		return &Rejection{Oracle: "no-z", Message: "has z"}
	}
	return nil
})

func outputs(r *CampaignReport) []string {
	out := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		out[i] = o.Output
	}
	return out
}

func TestInputs_Deterministic(t *testing.T) {
	a := Inputs(1, 50, 16)
	b := Inputs(1, 50, 16)
	assert.Equal(t, a, b)
	require.Len(t, a, 50)
	for _, in := range a {
		assert.LessOrEqual(t, len(in), 16)
	}
	assert.NotEqual(t, a, Inputs(2, 50, 16))
}

func TestInputs_DefaultMaxLen(t *testing.T) {
	for _, in := range Inputs(3, 20, 0) {
		assert.LessOrEqual(t, len(in), DefaultMaxInputLen)
	}
}

func TestCampaign_WithoutStore(t *testing.T) {
	eng, g := xyzEngine(t)
	c := NewCampaign(eng, WithLogger(quietLogger()))

	report, err := c.Run(context.Background(), CampaignConfig{Grammar: g, Start: "A", Corpus: xyzCorpus})
	require.NoError(t, err)

	assert.Empty(t, report.RunID)
	assert.Equal(t, 3, report.Inputs)
	assert.Equal(t, 3, report.Generated)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, []string{"x", "xy", "xz"}, outputs(report))
	assert.Equal(t, 2, report.Outcomes[2].Consumed)
}

func TestCampaign_RecordsRunEntriesAndFindings(t *testing.T) {
	ctx := context.Background()
	eng, g := xyzEngine(t)
	st := openStore(t)
	c := NewCampaign(eng,
		WithLogger(quietLogger()),
		WithStore(st),
		WithOracle(noZ),
		WithRunIDs(NewFixedGenerator("run-1")),
		WithWorkers(2),
	)

	report, err := c.Run(ctx, CampaignConfig{Grammar: g, Start: "A", Corpus: xyzCorpus, Seed: 9})
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 1, report.Findings)
	assert.Equal(t, 3, report.NewEntries)

	run, err := st.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, run.Finished)
	assert.Equal(t, int64(3), run.Generated)
	assert.Equal(t, int64(0), run.Failed)
	assert.Equal(t, "no-z", run.Oracle)
	assert.Equal(t, int64(9), run.Seed)
	assert.Equal(t, int64(1), run.Seq)

	entries, err := st.ReadRunEntries(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Persisted in input order regardless of which worker finished first.
	assert.Equal(t, []string{"x", "xy", "xz"}, []string{entries[0].Output, entries[1].Output, entries[2].Output})
	assert.Equal(t, []int64{2, 3, 4}, []int64{entries[0].Seq, entries[1].Seq, entries[2].Seq})

	findings, err := st.ReadFindings(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, entries[2].ID, findings[0].EntryID)
	assert.Equal(t, "no-z", findings[0].Oracle)
	assert.Equal(t, "no-z rejected input: has z", findings[0].Message)
	assert.Equal(t, int64(5), findings[0].Seq)
}

func TestCampaign_RediscoveredEntriesAreNotNew(t *testing.T) {
	ctx := context.Background()
	eng, g := xyzEngine(t)
	st := openStore(t)
	c := NewCampaign(eng,
		WithLogger(quietLogger()),
		WithStore(st),
		WithOracle(noZ),
		WithRunIDs(NewFixedGenerator("run-1", "run-2")),
	)
	cfg := CampaignConfig{Grammar: g, Start: "A", Corpus: xyzCorpus}

	first, err := c.Run(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, first.NewEntries)

	second, err := c.Run(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewEntries)
	assert.Equal(t, 1, second.Findings)

	// The finding is recorded against the second run too.
	findings, err := st.ReadFindings(ctx, "run-2")
	require.NoError(t, err)
	assert.Len(t, findings, 1)

	entries, err := st.ReadRunEntries(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCampaign_FailuresByCode(t *testing.T) {
	eng, g := xyzEngine(t)
	c := NewCampaign(eng, WithLogger(quietLogger()))

	report, err := c.Run(context.Background(), CampaignConfig{
		Grammar: g,
		Start:   "A",
		Ceiling: 2,
		Corpus:  [][]byte{{1}, {1, 1, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Generated)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, map[string]int{string(engine.ErrCodeSizeLimit): 1}, report.ByCode)

	o := report.Outcomes[1]
	assert.False(t, o.OK())
	assert.Equal(t, string(engine.ErrCodeSizeLimit), o.Status())
	assert.Empty(t, o.Output)
}

func TestCampaign_DeterministicAcrossWorkerCounts(t *testing.T) {
	eng, g := xyzEngine(t)
	cfg := CampaignConfig{Grammar: g, Start: "A", Ceiling: 20, Count: 200, Seed: 7, MaxInputLen: 32}

	one, err := NewCampaign(eng, WithLogger(quietLogger()), WithWorkers(1)).Run(context.Background(), cfg)
	require.NoError(t, err)
	many, err := NewCampaign(eng, WithLogger(quietLogger()), WithWorkers(8)).Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, one.Outcomes, many.Outcomes)
	assert.Equal(t, one.ByCode, many.ByCode)
}

func TestCampaign_OracleErrorAborts(t *testing.T) {
	eng, g := xyzEngine(t)
	down := OracleFunc("down", func(context.Context, string, string) error {
		return errors.New("connection refused")
	})
	c := NewCampaign(eng, WithLogger(quietLogger()), WithOracle(down))

	_, err := c.Run(context.Background(), CampaignConfig{Grammar: g, Start: "A", Corpus: xyzCorpus})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCampaign_OracleErrorStopsRemainingWork(t *testing.T) {
	eng, g := xyzEngine(t)
	var calls atomic.Int32
	down := OracleFunc("down", func(ctx context.Context, _, _ string) error {
		calls.Add(1)
		return errors.New("connection refused")
	})
	c := NewCampaign(eng, WithLogger(quietLogger()), WithOracle(down), WithWorkers(1))

	_, err := c.Run(context.Background(), CampaignConfig{Grammar: g, Start: "A", Count: 50})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCampaign_UnknownStartRule(t *testing.T) {
	eng, g := xyzEngine(t)
	c := NewCampaign(eng, WithLogger(quietLogger()))

	_, err := c.Run(context.Background(), CampaignConfig{Grammar: g, Start: "nope", Corpus: xyzCorpus})
	require.Error(t, err)
	assert.True(t, engine.IsUnknownRuleError(err))
}

func TestCampaign_Cancelled(t *testing.T) {
	eng, g := xyzEngine(t)
	c := NewCampaign(eng, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx, CampaignConfig{Grammar: g, Start: "A", Count: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
