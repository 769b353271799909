package harness

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/cfgfuzz/internal/compiler"
	"github.com/roach88/cfgfuzz/internal/engine"
	"github.com/roach88/cfgfuzz/internal/ir"
	"github.com/roach88/cfgfuzz/internal/store"
	"github.com/roach88/cfgfuzz/internal/testutil"
)

// Harness is the scenario execution engine.
// It derives every case with a deterministic clock and run ID.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	clock    *testutil.DeterministicClock
	runIDs   *testutil.FixedRunIDGenerator
	logger   *slog.Logger
	grammar  store.Grammar
	scenario *Scenario
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Load and compile the scenario's grammar
// 3. Record the grammar and a run
// 4. Derive and record every case in order
// 5. Evaluate assertions and return the result
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	spec, err := loadScenarioGrammar(scenario)
	if err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(spec, compiler.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to compile grammar %s: %w", spec.Name, err)
	}
	g, err := store.NewGrammar(*spec)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		store:    st,
		engine:   engine.New(compiled.Normalized, compiled.Constraints, engine.WithLogger(logger)),
		clock:    testutil.NewDeterministicClock(),
		runIDs:   testutil.NewFixedRunIDGenerator(scenario.RunID),
		logger:   logger,
		grammar:  g,
		scenario: scenario,
	}

	ctx := context.Background()
	result := NewResult()
	result.RunID = h.runIDs.Generate()

	if err := h.startRun(ctx, result.RunID); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	generated, failed := 0, 0
	for i, c := range scenario.Cases {
		cr, err := h.derive(c)
		if err != nil {
			return nil, fmt.Errorf("case %d (%s): %w", i, c.Name, err)
		}
		if err := h.record(ctx, result.RunID, &cr); err != nil {
			return nil, fmt.Errorf("case %d (%s): %w", i, c.Name, err)
		}
		if cr.Status == store.StatusOK {
			generated++
		} else {
			failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	if err := st.FinishRun(ctx, result.RunID, int64(generated), int64(failed)); err != nil {
		return nil, fmt.Errorf("failed to finish run: %w", err)
	}

	actx := &AssertionContext{
		Store:      st,
		Ctx:        ctx,
		Regenerate: h.regenerate,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// loadScenarioGrammar loads the scenario's grammar files and selects the
// grammar it names.
func loadScenarioGrammar(s *Scenario) (*ir.GrammarSpec, error) {
	var specs []ir.GrammarSpec
	for _, path := range s.Grammars {
		loaded, err := compiler.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load grammar file %s: %w", path, err)
		}
		specs = append(specs, loaded...)
	}
	return selectGrammar(specs, s.Grammar)
}

func selectGrammar(specs []ir.GrammarSpec, name string) (*ir.GrammarSpec, error) {
	if name == "" {
		if len(specs) != 1 {
			return nil, fmt.Errorf("grammar name is required when %d grammars are loaded", len(specs))
		}
		return &specs[0], nil
	}
	for i := range specs {
		if specs[i].Name == name {
			return &specs[i], nil
		}
	}
	return nil, fmt.Errorf("grammar %q not found", name)
}

func (h *Harness) startRun(ctx context.Context, runID string) error {
	if err := h.store.WriteGrammar(ctx, h.grammar); err != nil {
		return err
	}
	return h.store.WriteRun(ctx, store.Run{
		ID:            runID,
		GrammarHash:   h.grammar.Hash,
		Start:         h.start(Case{}),
		Ceiling:       int64(h.scenario.Ceiling),
		EngineVersion: "test",
		Seq:           h.clock.Next(),
	})
}

func (h *Harness) start(c Case) string {
	switch {
	case c.Start != "":
		return c.Start
	case h.scenario.Start != "":
		return h.scenario.Start
	default:
		return h.grammar.Start
	}
}

func (h *Harness) ceiling(c Case) int {
	if c.Ceiling != nil {
		return *c.Ceiling
	}
	return h.scenario.Ceiling
}

// derive runs one case through the engine. Generation failures become the
// case status; an unknown start rule aborts the scenario.
func (h *Harness) derive(c Case) (CaseResult, error) {
	entropy, err := c.Bytes()
	if err != nil {
		return CaseResult{}, err
	}
	cr := CaseResult{
		Name:    c.Name,
		Start:   h.start(c),
		Entropy: hex.EncodeToString(entropy),
		Ceiling: h.ceiling(c),
	}
	return h.generate(cr, entropy)
}

func (h *Harness) generate(cr CaseResult, entropy []byte) (CaseResult, error) {
	res, err := h.engine.GenerateResult(cr.Start, entropy, cr.Ceiling)
	if err != nil {
		code := engine.CodeOf(err)
		if code == "" {
			return CaseResult{}, err
		}
		cr.Output = ""
		cr.Consumed = 0
		cr.Status = string(code)
		return cr, nil
	}
	cr.Output = res.Output
	cr.Consumed = res.Consumed
	cr.Status = store.StatusOK
	return cr, nil
}

func (h *Harness) regenerate(cr CaseResult) (CaseResult, error) {
	entropy, err := hex.DecodeString(cr.Entropy)
	if err != nil {
		return CaseResult{}, err
	}
	return h.generate(cr, entropy)
}

// record persists a case. Get seq ONCE and reuse it for the record and the
// result so the trace matches the store.
func (h *Harness) record(ctx context.Context, runID string, cr *CaseResult) error {
	entropy, err := hex.DecodeString(cr.Entropy)
	if err != nil {
		return err
	}
	id, err := ir.EntryID(h.grammar.Hash, cr.Start, entropy, int64(cr.Ceiling))
	if err != nil {
		return fmt.Errorf("failed to compute entry ID: %w", err)
	}
	seq := h.clock.Next()
	if _, err := h.store.WriteEntry(ctx, store.Entry{
		ID:          id,
		GrammarHash: h.grammar.Hash,
		Start:       cr.Start,
		Entropy:     entropy,
		Ceiling:     int64(cr.Ceiling),
		Output:      cr.Output,
		Status:      cr.Status,
		Consumed:    int64(cr.Consumed),
		RunID:       runID,
		Seq:         seq,
	}); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	cr.EntryID = id
	cr.Seq = seq
	return nil
}
