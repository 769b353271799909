package engine

import (
	"log/slog"

	"github.com/roach88/cfgfuzz/internal/grammar"
)

// NoCeiling disables the size ceiling when passed to Generate.
const NoCeiling = 0

// DefaultMaxSteps is the default step quota per derivation.
const DefaultMaxSteps = 10_000_000

// DefaultMaxDepth is the default limit on pending work frames. Left
// recursion under exhausted entropy grows the stack by one frame per step,
// so this bounds memory well before the step quota would.
const DefaultMaxDepth = 1 << 20

// DefaultMaxRetries is the default number of re-derivations a colliding
// negative constraint gets before the zero-entropy fallback.
const DefaultMaxRetries = 8

// Engine generates strings from one grammar.
//
// INVARIANTS:
//   - the grammar is frozen and never mutated by the engine
//   - choice tables are built once in New and only read afterwards
type Engine struct {
	g          *grammar.Grammar
	cs         *grammar.ConstraintSet
	logger     *slog.Logger
	maxSteps   int
	maxDepth   int
	maxRetries int

	choices map[grammar.Symbol]choice
	// maxWindow is the longest forbidden string of any constraint.
	maxWindow int
}

// choice is the precomputed selection table of a nonterminal with weighted
// alternatives. cum[i] is the sum of weights 0..i.
type choice struct {
	cum   []int
	total int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for derivation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMaxSteps sets the step quota per derivation.
//
// Default: 10,000,000 steps (DefaultMaxSteps). A value <= 0 disables the quota.
func WithMaxSteps(maxSteps int) Option {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// WithMaxDepth sets the limit on pending work frames. Exceeding it fails
// the derivation with STEP_LIMIT_EXCEEDED. A value <= 0 disables it.
func WithMaxDepth(frames int) Option {
	return func(e *Engine) {
		e.maxDepth = frames
	}
}

// WithMaxRetries sets how many times a colliding negative constraint is
// re-derived with fresh entropy before the zero-entropy fallback.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n < 0 {
			n = 0
		}
		e.maxRetries = n
	}
}

// New creates an engine over g. A nil constraint set means no constraints.
//
// g is normally the normalized grammar of a compilation; a raw grammar works
// too and yields the same strings for the same entropy.
func New(g *grammar.Grammar, cs *grammar.ConstraintSet, opts ...Option) *Engine {
	e := &Engine{
		g:          g,
		cs:         cs,
		logger:     slog.Default(),
		maxSteps:   DefaultMaxSteps,
		maxDepth:   DefaultMaxDepth,
		maxRetries: DefaultMaxRetries,
		choices:    make(map[grammar.Symbol]choice),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, c := range cs.All() {
		e.maxWindow = max(e.maxWindow, c.MaxLen())
	}
	for _, lhs := range g.Nonterminals() {
		prods := g.Productions(lhs)
		weighted := false
		for _, p := range prods {
			if p.Weight != 0 {
				weighted = true
				break
			}
		}
		if !weighted {
			continue
		}
		c := choice{cum: make([]int, len(prods))}
		for i, p := range prods {
			c.total += int(p.Weight)
			c.cum[i] = c.total
		}
		e.choices[lhs] = c
	}
	return e
}

// Grammar returns the grammar the engine derives from.
func (e *Engine) Grammar() *grammar.Grammar {
	return e.g
}

// Result describes a successful derivation.
type Result struct {
	Output string
	// Consumed is the number of entropy bytes read. Replaying just that
	// prefix reproduces Output.
	Consumed int
	Steps    int
	// Retries counts negative-constraint re-derivations.
	Retries int
}

// Generate derives a string from the rule named start.
//
// Identical arguments always yield the identical string or the identical
// error. ceiling <= 0 (NoCeiling) disables the size ceiling. An unknown start
// rule is an *UnknownRuleError; derivation failures are *GenError.
func (e *Engine) Generate(start string, entropy []byte, ceiling int) (string, error) {
	res, err := e.GenerateResult(start, entropy, ceiling)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// GenerateResult is Generate with derivation statistics.
func (e *Engine) GenerateResult(start string, entropy []byte, ceiling int) (Result, error) {
	sym, ok := e.g.Symbols.Lookup(start)
	if !ok || !e.g.Defined(sym) {
		return Result{}, &UnknownRuleError{Name: start}
	}

	d := newDerivation(e, start, entropy, ceiling)
	out, err := d.run(sym)
	if err != nil {
		e.logger.Debug("derivation failed",
			"rule", start,
			"entropy_len", len(entropy),
			"code", CodeOf(err),
			"steps", d.quota.Current(),
		)
		return Result{}, err
	}
	return Result{
		Output:   string(out),
		Consumed: d.cur.Pos(),
		Steps:    d.quota.Current(),
		Retries:  d.retries,
	}, nil
}
