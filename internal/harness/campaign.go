package harness

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/cfgfuzz/internal/engine"
	"github.com/roach88/cfgfuzz/internal/ir"
	"github.com/roach88/cfgfuzz/internal/store"
)

// DefaultMaxInputLen is the longest PRNG input a campaign draws.
const DefaultMaxInputLen = 256

// Campaign generates strings for many entropy inputs in parallel, optionally
// checks them with an oracle and records everything in a store.
//
// INVARIANTS:
//   - workers share one engine; each derivation owns its own state
//   - outcomes are persisted in input order, so seq values and the report
//     do not depend on scheduling
type Campaign struct {
	engine  *engine.Engine
	store   *store.Store
	oracle  Oracle
	clock   Sequencer
	runIDs  RunIDGenerator
	logger  *slog.Logger
	workers int
}

// Option configures a Campaign.
type Option func(*Campaign)

// WithLogger sets the campaign logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Campaign) { c.logger = l }
}

// WithWorkers sets the worker pool size. Values < 1 mean GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *Campaign) { c.workers = n }
}

// WithOracle checks every generated string with o.
func WithOracle(o Oracle) Option {
	return func(c *Campaign) { c.oracle = o }
}

// WithStore records the run, its entries and findings in st.
func WithStore(st *store.Store) Option {
	return func(c *Campaign) { c.store = st }
}

// WithClock sets the seq source. Defaults to a fresh Clock.
func WithClock(s Sequencer) Option {
	return func(c *Campaign) { c.clock = s }
}

// WithRunIDs sets the run ID source. Defaults to UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(c *Campaign) { c.runIDs = g }
}

// NewCampaign creates a campaign over eng.
func NewCampaign(eng *engine.Engine, opts ...Option) *Campaign {
	c := &Campaign{
		engine: eng,
		logger: slog.Default(),
		runIDs: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.workers < 1 {
		c.workers = runtime.GOMAXPROCS(0)
	}
	if c.clock == nil {
		c.clock = NewClock()
	}
	return c
}

// CampaignConfig describes one run.
type CampaignConfig struct {
	Grammar store.Grammar
	Start   string
	Ceiling int
	// Corpus inputs run first, in order.
	Corpus [][]byte
	// Count PRNG inputs follow, drawn from Seed.
	Count       int
	Seed        int64
	MaxInputLen int
}

// Outcome is the result of one input.
type Outcome struct {
	Index    int
	Entropy  []byte
	Output   string
	Code     engine.GenErrorCode // empty on success
	Consumed int
	Finding  string // oracle rejection message, if any
}

// OK reports whether the input derived a string.
func (o Outcome) OK() bool {
	return o.Code == ""
}

// Status is the store status of the outcome.
func (o Outcome) Status() string {
	if o.OK() {
		return store.StatusOK
	}
	return string(o.Code)
}

// CampaignReport summarizes a run.
type CampaignReport struct {
	RunID      string         `json:"run_id"`
	Start      string         `json:"start"`
	Inputs     int            `json:"inputs"`
	Generated  int            `json:"generated"`
	Failed     int            `json:"failed"`
	ByCode     map[string]int `json:"by_code,omitempty"`
	Findings   int            `json:"findings"`
	NewEntries int            `json:"new_entries"`
	Outcomes   []Outcome      `json:"-"`
}

// Inputs draws count pseudo-random entropy buffers of length 0..maxLen from
// seed. The same arguments always yield the same buffers.
func Inputs(seed int64, count, maxLen int) [][]byte {
	if maxLen <= 0 {
		maxLen = DefaultMaxInputLen
	}
	rng := rand.New(rand.NewSource(seed))
	out := make([][]byte, count)
	for i := range out {
		buf := make([]byte, rng.Intn(maxLen+1))
		rng.Read(buf)
		out[i] = buf
	}
	return out
}

// Run executes the campaign.
func (c *Campaign) Run(ctx context.Context, cfg CampaignConfig) (*CampaignReport, error) {
	inputs := append(append([][]byte(nil), cfg.Corpus...), Inputs(cfg.Seed, cfg.Count, cfg.MaxInputLen)...)
	report := &CampaignReport{
		Start:  cfg.Start,
		Inputs: len(inputs),
		ByCode: make(map[string]int),
	}

	if c.store != nil {
		report.RunID = c.runIDs.Generate()
		if err := c.store.WriteGrammar(ctx, cfg.Grammar); err != nil {
			return nil, fmt.Errorf("campaign: %w", err)
		}
		oracle := ""
		if c.oracle != nil {
			oracle = c.oracle.Name()
		}
		if err := c.store.WriteRun(ctx, store.Run{
			ID:            report.RunID,
			GrammarHash:   cfg.Grammar.Hash,
			Start:         cfg.Start,
			Ceiling:       int64(cfg.Ceiling),
			Seed:          cfg.Seed,
			Oracle:        oracle,
			EngineVersion: ir.EngineVersion,
			Seq:           c.clock.Next(),
		}); err != nil {
			return nil, fmt.Errorf("campaign: %w", err)
		}
	}

	c.logger.Info("campaign started",
		"run_id", report.RunID,
		"start", cfg.Start,
		"inputs", len(inputs),
		"workers", c.workers,
	)

	outcomes, err := c.derive(ctx, cfg, inputs)
	if err != nil {
		return nil, err
	}
	report.Outcomes = outcomes

	for _, o := range outcomes {
		if o.OK() {
			report.Generated++
		} else {
			report.Failed++
			report.ByCode[string(o.Code)]++
		}
		if o.Finding != "" {
			report.Findings++
		}
		if c.store == nil {
			continue
		}
		inserted, err := c.record(ctx, cfg, report.RunID, o)
		if err != nil {
			return nil, err
		}
		if inserted {
			report.NewEntries++
		}
	}

	if c.store != nil {
		if err := c.store.FinishRun(ctx, report.RunID, int64(report.Generated), int64(report.Failed)); err != nil {
			return nil, fmt.Errorf("campaign: %w", err)
		}
	}

	c.logger.Info("campaign finished",
		"run_id", report.RunID,
		"generated", report.Generated,
		"failed", report.Failed,
		"findings", report.Findings,
	)
	return report, nil
}

// derive fans inputs out over the worker pool. The first non-rejection
// oracle error cancels the remaining work and is returned.
func (c *Campaign) derive(ctx context.Context, cfg CampaignConfig, inputs [][]byte) ([]Outcome, error) {
	outcomes := make([]Outcome, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, in := range inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o, err := c.one(gctx, cfg, i, in)
			if err != nil {
				return err
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("campaign: %w", err)
	}
	return outcomes, nil
}

func (c *Campaign) one(ctx context.Context, cfg CampaignConfig, i int, in []byte) (Outcome, error) {
	o := Outcome{Index: i, Entropy: in}
	res, err := c.engine.GenerateResult(cfg.Start, in, cfg.Ceiling)
	if err != nil {
		code := engine.CodeOf(err)
		if code == "" {
			// Not a generation failure: the start rule itself is wrong.
			return o, fmt.Errorf("campaign: %w", err)
		}
		o.Code = code
		return o, nil
	}
	o.Output = res.Output
	o.Consumed = res.Consumed

	if c.oracle == nil {
		return o, nil
	}
	if err := c.oracle.Check(ctx, cfg.Start, res.Output); err != nil {
		if !IsRejection(err) {
			return o, fmt.Errorf("campaign: oracle: %w", err)
		}
		o.Finding = err.Error()
		c.logger.Debug("oracle rejected input",
			"index", i,
			"output_len", len(res.Output),
			"oracle", c.oracle.Name(),
		)
	}
	return o, nil
}

func (c *Campaign) record(ctx context.Context, cfg CampaignConfig, runID string, o Outcome) (bool, error) {
	id, err := ir.EntryID(cfg.Grammar.Hash, cfg.Start, o.Entropy, int64(cfg.Ceiling))
	if err != nil {
		return false, fmt.Errorf("campaign: %w", err)
	}
	entry := store.Entry{
		ID:          id,
		GrammarHash: cfg.Grammar.Hash,
		Start:       cfg.Start,
		Entropy:     o.Entropy,
		Ceiling:     int64(cfg.Ceiling),
		Output:      o.Output,
		Status:      o.Status(),
		Consumed:    int64(o.Consumed),
		RunID:       runID,
		Seq:         c.clock.Next(),
	}
	var finding *store.Finding
	if o.Finding != "" {
		finding = &store.Finding{
			Oracle:  c.oracle.Name(),
			Message: o.Finding,
			Seq:     c.clock.Next(),
		}
	}
	inserted, err := c.store.RecordEntry(ctx, entry, finding)
	if err != nil {
		return false, fmt.Errorf("campaign: %w", err)
	}
	return inserted, nil
}
